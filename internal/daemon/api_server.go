package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"icpquery/internal/config"
	"icpquery/internal/logging"
	"icpquery/internal/services"
)

const defaultRecordLimit = 50

type apiServer struct {
	bind      string
	listLimit int
	logger    *slog.Logger
	daemon    *Daemon
	handler   http.Handler
}

type credentialResponse struct {
	Identifier string `json:"identifier"`
	Sign       string `json:"sign"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		listLimit: cfg.Store.ListPageSize,
		logger:    logging.NewComponentLogger(logger, "api"),
		daemon:    d,
	}
	if srv.listLimit <= 0 {
		srv.listLimit = defaultRecordLimit
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)
	r.Use(srv.observe)

	r.Get("/healthz", srv.handleHealth)
	if cfg.Metrics.Enabled && d.metrics != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path, d.metrics.Handler())
	}
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(cfg.Paths.APIToken))
		r.Get("/solve_captcha", srv.handleSolveCaptcha)
		r.Get("/query", srv.handleQuery)
		r.Get("/records", srv.handleRecords)
		r.Get("/status", srv.handleStatus)
	})

	srv.handler = r
	return srv
}

// serve listens on the configured bind address until ctx ends, then shuts the
// server down gracefully.
func (s *apiServer) serve(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Acquiring a fresh credential may take several challenge rounds.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.store.Ping(r.Context()); err != nil {
		writeDetail(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSolveCaptcha hands a credential to the caller. The credential is not
// returned to the pool.
func (s *apiServer) handleSolveCaptcha(w http.ResponseWriter, r *http.Request) {
	cred, err := s.daemon.pool.Acquire(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialResponse{Identifier: cred.Identifier, Sign: cred.Sign})
}

func (s *apiServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	ctx := services.WithDomain(r.Context(), strings.TrimSpace(name))
	result, err := s.daemon.query.Lookup(ctx, name)
	if err != nil {
		s.writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit := s.listLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeDetail(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	rows, err := s.daemon.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": rows})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// Client went away; nothing useful to send.
		return
	}
	detail := err.Error()
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "api_error",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
		detail = "internal error"
	}
	writeDetail(w, status, detail)
}

// observe logs each request and records it in the request counter.
func (s *apiServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.daemon.metrics.ObserveRequest(route, strconv.Itoa(status))
		logging.WithContext(r.Context(), s.logger).Debug("request served",
			logging.String("method", r.Method),
			logging.String("route", route),
			logging.Int("status", status),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

// requestContext copies chi's request ID into the service context so log
// lines carry it.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(services.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
