package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"icpquery/internal/logging"
	"icpquery/internal/metrics"
	"icpquery/internal/miit"
	"icpquery/internal/record"
	"icpquery/internal/services"
	"icpquery/internal/textutil"
	"icpquery/internal/tracing"
)

const component = "query"

// CredentialPool lends verified credentials.
type CredentialPool interface {
	Acquire(ctx context.Context) (miit.Credential, error)
	Release(cred miit.Credential)
}

// Registry runs one filing query. InvalidateToken discards the session token
// so the next call performs a fresh handshake.
type Registry interface {
	Query(ctx context.Context, cred miit.Credential, name string, page int) (*miit.QueryPage, error)
	InvalidateToken()
}

// Cache is the persisted record store.
type Cache interface {
	Find(ctx context.Context, domain string) (*record.Record, error)
	Save(ctx context.Context, rec *record.Record) error
}

// Result is a lookup answer.
type Result struct {
	Cached bool           `json:"cached"`
	Record *record.Record `json:"record"`
}

// Service performs cache-first lookups.
type Service struct {
	pool     CredentialPool
	registry Registry
	cache    Cache

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMetrics records cache and registry outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a Service. All three collaborators are required.
func New(pool CredentialPool, registry Registry, cache Cache, opts ...Option) (*Service, error) {
	switch {
	case pool == nil:
		return nil, errors.New("credential pool is required")
	case registry == nil:
		return nil, errors.New("registry is required")
	case cache == nil:
		return nil, errors.New("record cache is required")
	}
	s := &Service{
		pool:     pool,
		registry: registry,
		cache:    cache,
		logger:   logging.NewComponentLogger(nil, component),
		tracer:   tracing.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lookup returns the filing for name. The name is normalized before the
// cache is consulted; the cache match is exact.
func (s *Service) Lookup(ctx context.Context, name string) (result Result, err error) {
	domain := textutil.NormalizeLookup(name)
	if domain == "" {
		return Result{}, services.Wrap(services.ErrValidation, component, "lookup", "name must not be empty", nil)
	}
	ctx = services.WithDomain(ctx, domain)
	ctx, span := s.tracer.Start(ctx, tracing.SpanLookup, trace.WithAttributes(attribute.String(tracing.AttrDomain, domain)))
	defer func() {
		span.SetAttributes(attribute.Bool(tracing.AttrCached, result.Cached))
		tracing.End(span, err)
	}()
	logger := logging.WithContext(ctx, s.logger)

	cached, err := s.cache.Find(ctx, domain)
	switch {
	case err == nil:
		s.metrics.IncCacheHit()
		logger.Debug("record cache hit")
		return Result{Cached: true, Record: cached}, nil
	case !errors.Is(err, services.ErrNotFound):
		return Result{}, fmt.Errorf("lookup cache: %w", err)
	}
	s.metrics.IncCacheMiss()

	cred, err := s.pool.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}

	page, err := s.registry.Query(ctx, cred, domain, 1)
	if err != nil {
		s.metrics.IncRemoteFailure()
		if errors.Is(err, services.ErrRemote) {
			// A refusal is often an expired token; transport failures keep it.
			s.registry.InvalidateToken()
		}
		logging.WarnWithContext(logger, "registry query failed; credential dropped", "registry_query_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the registry may have revoked the credential"),
			logging.String(logging.FieldImpact, "next lookup on an empty pool solves a new challenge"),
		)
		return Result{}, err
	}
	s.pool.Release(cred)

	if page == nil || len(page.List) == 0 {
		s.metrics.IncNotFound()
		logger.Info("no filing found")
		return Result{}, services.Wrap(services.ErrNotFound, component, "lookup", "no filing for "+domain, nil)
	}

	rec, err := record.FromQueryResult(page.List[0])
	if err != nil {
		return Result{}, services.Wrap(services.ErrRemote, component, "decode filing", "", err)
	}
	if rec.Domain == "" {
		rec.Domain = domain
	}
	if err := s.cache.Save(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("save record: %w", err)
	}
	logger.Info("filing cached",
		logging.String("unit_name", rec.UnitName),
		logging.String("service_licence", rec.ServiceLicence),
	)
	return Result{Cached: false, Record: rec}, nil
}
