package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gofrs/flock"

	"icpquery/internal/config"
	"icpquery/internal/logging"
	"icpquery/internal/metrics"
	"icpquery/internal/miit"
	"icpquery/internal/query"
	"icpquery/internal/store"
)

// CredentialPool is the pool lifecycle and lending surface the daemon drives.
type CredentialPool interface {
	Start(ctx context.Context) error
	Close() error
	Acquire(ctx context.Context) (miit.Credential, error)
	Release(cred miit.Credential)
	Len() int
}

// Lookuper answers filing lookups.
type Lookuper interface {
	Lookup(ctx context.Context, name string) (query.Result, error)
}

// Dependencies are the collaborators a Daemon serves.
type Dependencies struct {
	Store     store.Store
	Pool      CredentialPool
	Query     Lookuper
	Metrics   *metrics.Metrics
	Templates int
}

// Daemon owns the service lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store.Store
	pool    CredentialPool
	query   Lookuper
	metrics *metrics.Metrics

	templates int
	lockPath  string
	lock      *flock.Flock
	api       *apiServer

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool   `json:"running"`
	PoolSize     int    `json:"pool_size"`
	Templates    int    `json:"templates"`
	StoreDriver  string `json:"store_driver"`
	StoreHealthy bool   `json:"store_healthy"`
	StoreError   string `json:"store_error,omitempty"`
	LockFilePath string `json:"lock_file"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Pool == nil || deps.Query == nil {
		return nil, errors.New("daemon requires config, store, pool, and query service")
	}
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     deps.Store,
		pool:      deps.Pool,
		query:     deps.Query,
		metrics:   deps.Metrics,
		templates: deps.Templates,
		lockPath:  cfg.Paths.LockFile,
		lock:      flock.New(cfg.Paths.LockFile),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and starts the credential pool. It does not
// bind the API listener; Serve does.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another icpquery instance is already running")
	}

	if err := d.pool.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start credential pool: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("icpquery daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Serve runs the API server until ctx ends.
func (d *Daemon) Serve(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not started")
	}
	return d.api.serve(ctx)
}

// Handler returns the API router.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Stop closes the credential pool and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if err := d.pool.Close(); err != nil {
		d.logger.Warn("failed to close credential pool", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("icpquery daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PoolSize:     d.pool.Len(),
		Templates:    d.templates,
		StoreDriver:  d.cfg.Store.Driver,
		StoreHealthy: true,
		LockFilePath: d.lockPath,
	}
	if err := d.store.Ping(ctx); err != nil {
		status.StoreHealthy = false
		status.StoreError = err.Error()
	}
	return status
}
