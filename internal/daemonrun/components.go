package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"icpquery/internal/background"
	"icpquery/internal/config"
	"icpquery/internal/detect"
	"icpquery/internal/logging"
	"icpquery/internal/metrics"
	"icpquery/internal/miit"
	"icpquery/internal/pool"
	"icpquery/internal/query"
	"icpquery/internal/similarity"
	"icpquery/internal/solver"
	"icpquery/internal/store"
	"icpquery/internal/tracing"
)

// Components is the assembled lookup pipeline shared by the daemon and the
// one-shot CLI commands.
type Components struct {
	Logger    *slog.Logger
	Tracing   *tracing.Provider
	Metrics   *metrics.Metrics
	Registry  *miit.Client
	Templates *background.Store
	Scorer    *similarity.ONNXScorer
	Solver    *solver.Solver
	Pool      *pool.Pool
	Store     store.Store
	Query     *query.Service

	closers []func() error
}

// Build wires every component from cfg. The registry session is bootstrapped
// and the template library loaded before Build returns; an empty template
// library is fatal. The pool is created but not started.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Components{Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	c.Tracing = provider
	c.closers = append(c.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return provider.Shutdown(shutdownCtx)
	})
	tracer := provider.Tracer()

	if cfg.Metrics.Enabled {
		c.Metrics = metrics.New()
	}

	canvas := background.Canvas{Width: cfg.Captcha.CanvasWidth, Height: cfg.Captcha.CanvasHeight}
	templates, err := background.LoadTemplates(cfg.Captcha.TemplateDir, canvas)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	c.Templates = templates
	c.closers = append(c.closers, templates.Close)
	logger.Info("background templates loaded",
		logging.Int("templates", templates.Len()),
		logging.String("dir", cfg.Captcha.TemplateDir),
	)

	scorer, err := similarity.LoadONNX(cfg.Captcha.SimilarityModel, cfg.Captcha.SimilarityBackend)
	if err != nil {
		return nil, fmt.Errorf("load similarity model: %w", err)
	}
	c.Scorer = scorer
	c.closers = append(c.closers, scorer.Close)

	registry, err := miit.New(cfg, miit.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create registry client: %w", err)
	}
	if err := registry.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap registry session: %w", err)
	}
	c.Registry = registry

	detector := detect.NewHTTPDetector(cfg.Captcha.DetectorURL, time.Duration(cfg.Captcha.DetectorTimeout)*time.Second)
	c.Solver = solver.New(registry, background.NewMatcher(templates), detector, scorer,
		solver.WithLogger(logger),
		solver.WithTracer(tracer),
		solver.WithMetrics(c.Metrics),
		solver.WithCaptchaConfig(cfg.Captcha),
	)

	c.Pool = pool.New(c.Solver,
		pool.WithRetryInterval(cfg.RetryInterval()),
		pool.WithLogger(logger),
		pool.WithTracer(tracer),
		pool.WithMetrics(c.Metrics),
	)
	c.closers = append(c.closers, c.Pool.Close)

	records, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	c.Store = records
	c.closers = append(c.closers, records.Close)

	svc, err := query.New(c.Pool, registry, records,
		query.WithLogger(logger),
		query.WithTracer(tracer),
		query.WithMetrics(c.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("create query service: %w", err)
	}
	c.Query = svc

	ok = true
	return c, nil
}

// Close releases components in reverse construction order.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
