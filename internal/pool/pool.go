package pool

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"icpquery/internal/logging"
	"icpquery/internal/metrics"
	"icpquery/internal/miit"
	"icpquery/internal/services"
	"icpquery/internal/tracing"
)

const (
	component            = "pool"
	defaultRetryInterval = time.Second
)

// Solver produces one verified credential per successful attempt.
type Solver interface {
	Solve(ctx context.Context) (miit.Credential, error)
}

type state int

const (
	stateNew state = iota
	stateRunning
	stateClosed
)

// Pool is a set of verified credentials with a serialized solve loop.
type Pool struct {
	solver        Solver
	retryInterval time.Duration
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *metrics.Metrics

	solving *semaphore.Weighted

	mu       sync.Mutex
	state    state
	creds    []miit.Credential
	lifetime context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option customizes a Pool.
type Option func(*Pool)

// WithRetryInterval sets the pause between failed attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d >= 0 {
			p.retryInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pool) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithMetrics records pool size on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New returns an unstarted pool.
func New(solver Solver, opts ...Option) *Pool {
	p := &Pool{
		solver:        solver,
		retryInterval: defaultRetryInterval,
		logger:        logging.NewComponentLogger(nil, component),
		tracer:        tracing.Noop(),
		solving:       semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start makes the pool usable. Solve loops run until Close, regardless of
// the context of the caller that triggered them; ctx only seeds values such
// as the logger's correlation fields.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateRunning:
		return nil
	case stateClosed:
		return services.Wrap(services.ErrPoolUninitialized, component, "start", "pool already closed", nil)
	}
	p.lifetime, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.state = stateRunning
	p.logger.Info("credential pool started")
	return nil
}

// Close stops running solve loops and waits for them to exit. Parked
// credentials are discarded.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.state != stateRunning {
		p.state = stateClosed
		p.mu.Unlock()
		return nil
	}
	p.state = stateClosed
	p.cancel()
	dropped := len(p.creds)
	p.creds = nil
	p.mu.Unlock()

	p.wg.Wait()
	p.metrics.SetPoolSize(0)
	p.logger.Info("credential pool closed", logging.Int("discarded", dropped))
	return nil
}

// Len returns the number of parked credentials.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Release parks cred for reuse. Releasing a credential that is already
// parked, or releasing into a closed pool, is a no-op.
func (p *Pool) Release(cred miit.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == stateClosed || slices.Contains(p.creds, cred) {
		return
	}
	p.creds = append(p.creds, cred)
	p.metrics.SetPoolSize(len(p.creds))
}

// Acquire returns a parked credential, or solves a fresh one when the pool is
// empty. Callers queue behind any solve already in progress.
func (p *Pool) Acquire(ctx context.Context) (cred miit.Credential, err error) {
	ctx, span := p.tracer.Start(ctx, tracing.SpanPoolAcquire)
	defer func() { tracing.End(span, err) }()

	if _, err := p.running("acquire"); err != nil {
		return miit.Credential{}, err
	}
	if err := p.solving.Acquire(ctx, 1); err != nil {
		return miit.Credential{}, err
	}

	p.mu.Lock()
	if p.state != stateRunning {
		p.mu.Unlock()
		p.solving.Release(1)
		return miit.Credential{}, services.Wrap(services.ErrPoolUninitialized, component, "acquire", "pool is not running", nil)
	}
	if n := len(p.creds); n > 0 {
		cred = p.creds[n-1]
		p.creds = p.creds[:n-1]
		p.metrics.SetPoolSize(len(p.creds))
		p.mu.Unlock()
		p.solving.Release(1)
		span.SetAttributes(attribute.Bool("pool.reused", true))
		return cred, nil
	}
	lifetime := p.lifetime
	p.wg.Add(1)
	p.mu.Unlock()
	span.SetAttributes(attribute.Bool("pool.reused", false))

	type outcome struct {
		cred miit.Credential
		err  error
	}
	delivered := make(chan outcome)
	abandoned := make(chan struct{})
	logger := logging.WithContext(ctx, p.logger)

	go func() {
		defer p.wg.Done()
		defer p.solving.Release(1)

		// Attempts run on the pool lifetime but stay in the caller's trace.
		solveCtx := trace.ContextWithSpanContext(lifetime, span.SpanContext())
		cred, err := p.solveUntilSuccess(solveCtx, logger)
		select {
		case delivered <- outcome{cred: cred, err: err}:
		case <-abandoned:
			if err == nil {
				p.Release(cred)
				logger.Info("caller left before solve finished; credential parked")
			}
		}
	}()

	select {
	case res := <-delivered:
		return res.cred, res.err
	case <-ctx.Done():
		close(abandoned)
		return miit.Credential{}, ctx.Err()
	}
}

// Warm solves credentials until n are parked or ctx ends.
func (p *Pool) Warm(ctx context.Context, n int) error {
	lifetime, err := p.running("warm")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(lifetime, cancel)
	defer stop()

	logger := logging.WithContext(ctx, p.logger)
	for p.Len() < n {
		if err := p.solving.Acquire(ctx, 1); err != nil {
			return err
		}
		if p.Len() >= n {
			p.solving.Release(1)
			break
		}
		cred, err := p.solveUntilSuccess(ctx, logger)
		p.solving.Release(1)
		if err != nil {
			return err
		}
		p.Release(cred)
	}
	logger.Info("credential pool warmed", logging.Int("credentials", p.Len()))
	return nil
}

func (p *Pool) running(op string) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateRunning {
		return nil, services.Wrap(services.ErrPoolUninitialized, component, op, "pool is not running", nil)
	}
	return p.lifetime, nil
}

// solveUntilSuccess retries failed attempts after a fixed pause. Only ctx
// ending or a non-retriable error stops it.
func (p *Pool) solveUntilSuccess(ctx context.Context, logger *slog.Logger) (miit.Credential, error) {
	for attempt := 1; ; attempt++ {
		cred, err := p.solver.Solve(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("challenge solved after retries", logging.Attempt(attempt))
			}
			return cred, nil
		}
		if ctx.Err() != nil {
			return miit.Credential{}, services.Wrap(services.ErrPoolUninitialized, component, "solve", "pool stopped", ctx.Err())
		}
		if !services.Retriable(err) {
			logging.ErrorWithContext(logger, "challenge solving cannot continue", "captcha_solve_fatal",
				logging.Attempt(attempt),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check template directory and model configuration"),
			)
			return miit.Credential{}, err
		}
		logging.WarnWithContext(logger, "challenge attempt failed", "captcha_attempt_failed",
			logging.Attempt(attempt),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retrying with a fresh challenge"),
			logging.String(logging.FieldImpact, "callers wait for a credential"),
		)

		timer := time.NewTimer(p.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return miit.Credential{}, services.Wrap(services.ErrPoolUninitialized, component, "solve", "pool stopped", ctx.Err())
		case <-timer.C:
		}
	}
}
