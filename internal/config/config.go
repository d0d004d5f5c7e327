package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
	LockFile string `toml:"lock_file"`
}

// Registry contains configuration for the MIIT filing registry endpoints.
type Registry struct {
	PortalURL         string  `toml:"portal_url"`
	APIBaseURL        string  `toml:"api_base_url"`
	UserAgent         string  `toml:"user_agent"`
	AuthSecret        string  `toml:"auth_secret"`
	PageSize          int     `toml:"page_size"`
	ServiceType       int     `toml:"service_type"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	TokenTTLSeconds   int     `toml:"token_ttl_seconds"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// Captcha contains configuration for the click-challenge solving pipeline.
type Captcha struct {
	TemplateDir         string  `toml:"template_dir"`
	CanvasWidth         int     `toml:"canvas_width"`
	CanvasHeight        int     `toml:"canvas_height"`
	GlyphOffsets        []int   `toml:"glyph_offsets"`
	Threshold           float64 `toml:"threshold"`
	RetryIntervalMillis int     `toml:"retry_interval_ms"`
	DetectorURL         string  `toml:"detector_url"`
	DetectorTimeout     int     `toml:"detector_timeout_seconds"`
	SimilarityModel     string  `toml:"similarity_model"`
	SimilarityBackend   string  `toml:"similarity_backend"`
	WarmCredentials     int     `toml:"warm_credentials"`
}

// Store contains configuration for the record cache.
type Store struct {
	Driver       string `toml:"driver"`
	SQLitePath   string `toml:"sqlite_path"`
	PostgresDSN  string `toml:"postgres_dsn"`
	RedisURL     string `toml:"redis_url"`
	MaxConns     int    `toml:"max_conns"`
	MaxOverflow  int    `toml:"max_overflow"`
	ListPageSize int    `toml:"list_page_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Tracing contains OpenTelemetry export settings.
type Tracing struct {
	Enabled     bool    `toml:"enabled"`
	Exporter    string  `toml:"exporter"`
	ServiceName string  `toml:"service_name"`
	SampleRate  float64 `toml:"sample_rate"`
}

// Metrics contains Prometheus exposition settings.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all configuration values for icpquery.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, lock file and API bind address
//   - Registry: MIIT endpoints, handshake secret and request pacing
//   - Captcha: template library, detector sidecar and similarity model
//   - Store: record cache backend selection
//   - Logging: log format and level
//   - Tracing: OpenTelemetry exporter
//   - Metrics: Prometheus endpoint
type Config struct {
	Environment string   `toml:"environment"`
	Paths       Paths    `toml:"paths"`
	Registry    Registry `toml:"registry"`
	Captcha     Captcha  `toml:"captcha"`
	Store       Store    `toml:"store"`
	Logging     Logging  `toml:"logging"`
	Tracing     Tracing  `toml:"tracing"`
	Metrics     Metrics  `toml:"metrics"`
}

// DefaultConfigPath returns the expanded ~/.config location of the config file.
func DefaultConfigPath() (string, error) {
	return ExpandPath(defaultConfigPath)
}

// Load resolves the config file, decodes it over Default, applies ICPQUERY_*
// environment overrides, then normalizes and validates the result. It also
// reports the path considered and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	for _, step := range []func() error{cfg.applyEnv, cfg.normalize, cfg.Validate} {
		if err := step(); err != nil {
			return nil, "", false, err
		}
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// resolveConfigPath honours an explicit path even when the file is missing.
// Otherwise the first existing candidate wins, falling back to the default
// location.
func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(expanded)
		return expanded, exists, err
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	}
	return !info.IsDir(), nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Store.Driver == StoreSQLite {
		if err := os.MkdirAll(filepath.Dir(c.Store.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	return nil
}

// Production reports whether the service runs in the production environment.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// RetryInterval returns the fixed wait between failed challenge attempts.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Captcha.RetryIntervalMillis) * time.Millisecond
}

// TokenTTL returns how long a registry auth token is reused before refreshing.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Registry.TokenTTLSeconds) * time.Second
}

// RegistryTimeout returns the per-request timeout for registry calls.
func (c *Config) RegistryTimeout() time.Duration {
	return time.Duration(c.Registry.TimeoutSeconds) * time.Second
}

// ExpandPath resolves a leading ~ against the home directory and returns an
// absolute, cleaned path. Empty input stays empty.
func ExpandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, strings.TrimLeft(value[1:], `/\`))
	}
	absolute, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
