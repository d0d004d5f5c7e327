package testsupport

import (
	"path/filepath"
	"testing"

	"icpquery/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The store defaults to the in-memory driver and the API binds an ephemeral
// loopback port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LockFile = filepath.Join(base, "icpquery.lock")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Captcha.TemplateDir = filepath.Join(base, "templates")
	cfgVal.Store.Driver = config.StoreMemory
	cfgVal.Store.SQLitePath = filepath.Join(base, "data", "records.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStoreDriver selects the record store backend.
func WithStoreDriver(driver string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Driver = driver
	}
}

// WithAPIToken enables bearer authentication on the API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithMetrics toggles the Prometheus endpoint.
func WithMetrics(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Enabled = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LockFile)
}
