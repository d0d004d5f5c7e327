package daemon_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icpquery/internal/config"
	"icpquery/internal/daemon"
	"icpquery/internal/logging"
	"icpquery/internal/metrics"
	"icpquery/internal/miit"
	"icpquery/internal/query"
	"icpquery/internal/store"
	"icpquery/internal/testsupport"
)

type stubPool struct {
	mu       sync.Mutex
	started  bool
	closed   bool
	next     int
	err      error
	released []miit.Credential
}

func (p *stubPool) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

func (p *stubPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *stubPool) Acquire(context.Context) (miit.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return miit.Credential{}, p.err
	}
	p.next++
	return miit.Credential{Identifier: fmt.Sprintf("id-%d", p.next), Sign: fmt.Sprintf("sign-%d", p.next)}, nil
}

func (p *stubPool) Release(cred miit.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, cred)
}

func (p *stubPool) Len() int { return 0 }

type stubLookup struct {
	result query.Result
	err    error
	names  []string
}

func (l *stubLookup) Lookup(_ context.Context, name string) (query.Result, error) {
	l.names = append(l.names, name)
	return l.result, l.err
}

type fixture struct {
	cfg    *config.Config
	pool   *stubPool
	lookup *stubLookup
	store  store.Store
	m      *metrics.Metrics
	daemon *daemon.Daemon
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	f := &fixture{
		cfg:    testsupport.NewConfig(t, opts...),
		pool:   &stubPool{},
		lookup: &stubLookup{},
		m:      metrics.New(),
	}
	f.store = testsupport.MustOpenStore(t, f.cfg)
	d, err := daemon.New(f.cfg, daemon.Dependencies{
		Store:     f.store,
		Pool:      f.pool,
		Query:     f.lookup,
		Metrics:   f.m,
		Templates: 3,
	}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { d.Stop() })
	f.daemon = d
	return f
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemon.New(cfg, daemon.Dependencies{}, logging.NewNop())
	require.Error(t, err)
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.daemon.Start(ctx))
	assert.True(t, f.pool.started)

	status := f.daemon.Status(ctx)
	assert.True(t, status.Running)
	assert.Equal(t, 3, status.Templates)
	assert.Equal(t, config.StoreMemory, status.StoreDriver)
	assert.True(t, status.StoreHealthy)

	require.Error(t, f.daemon.Start(ctx), "second start should fail")

	f.daemon.Stop()
	assert.True(t, f.pool.closed)
	assert.False(t, f.daemon.Status(ctx).Running)
}

func TestDaemonLockIsExclusive(t *testing.T) {
	first := newFixture(t)
	require.NoError(t, first.daemon.Start(context.Background()))

	second, err := daemon.New(first.cfg, daemon.Dependencies{
		Store: store.NewMemory(),
		Pool:  &stubPool{},
		Query: &stubLookup{},
	}, logging.NewNop())
	require.NoError(t, err)

	err = second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	first.daemon.Stop()
	require.NoError(t, second.Start(context.Background()))
	second.Stop()
}

func TestServeRequiresStart(t *testing.T) {
	f := newFixture(t)
	require.Error(t, f.daemon.Serve(context.Background()))
}

func TestServeStopsWithContext(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.daemon.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.daemon.Serve(ctx) }()
	cancel()
	require.NoError(t, <-done)
}
