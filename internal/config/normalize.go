package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "ICPQUERY_"

// envOverrides maps environment variables onto config fields. Nested sections
// use a double underscore, e.g. ICPQUERY_STORE__DRIVER.
var envOverrides = map[string]func(*Config, string) error{
	"ENVIRONMENT":              func(c *Config, v string) error { c.Environment = v; return nil },
	"PATHS__API_BIND":          func(c *Config, v string) error { c.Paths.APIBind = v; return nil },
	"PATHS__API_TOKEN":         func(c *Config, v string) error { c.Paths.APIToken = v; return nil },
	"PATHS__DATA_DIR":          func(c *Config, v string) error { c.Paths.DataDir = v; return nil },
	"REGISTRY__API_BASE_URL":   func(c *Config, v string) error { c.Registry.APIBaseURL = v; return nil },
	"REGISTRY__PORTAL_URL":     func(c *Config, v string) error { c.Registry.PortalURL = v; return nil },
	"CAPTCHA__TEMPLATE_DIR":    func(c *Config, v string) error { c.Captcha.TemplateDir = v; return nil },
	"CAPTCHA__DETECTOR_URL":    func(c *Config, v string) error { c.Captcha.DetectorURL = v; return nil },
	"CAPTCHA__SIMILARITY_MODEL": func(c *Config, v string) error {
		c.Captcha.SimilarityModel = v
		return nil
	},
	"CAPTCHA__WARM_CREDENTIALS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Captcha.WarmCredentials = n
		return nil
	},
	"STORE__DRIVER":       func(c *Config, v string) error { c.Store.Driver = v; return nil },
	"STORE__SQLITE_PATH":  func(c *Config, v string) error { c.Store.SQLitePath = v; return nil },
	"STORE__POSTGRES_DSN": func(c *Config, v string) error { c.Store.PostgresDSN = v; return nil },
	"STORE__REDIS_URL":    func(c *Config, v string) error { c.Store.RedisURL = v; return nil },
	"STORE__MAX_CONNS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Store.MaxConns = n
		return nil
	},
	"LOGGING__LEVEL":  func(c *Config, v string) error { c.Logging.Level = v; return nil },
	"LOGGING__FORMAT": func(c *Config, v string) error { c.Logging.Format = v; return nil },
	"TRACING__ENABLED": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Tracing.Enabled = b
		return nil
	},
}

// applyEnv layers environment variables over file values.
func (c *Config) applyEnv() error {
	for key, apply := range envOverrides {
		value, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			continue
		}
		if err := apply(c, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRegistry()
	if err := c.normalizeCaptcha(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeTracing()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = ExpandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockFile) == "" {
		c.Paths.LockFile = defaultLockFile
	}
	if c.Paths.LockFile, err = ExpandPath(c.Paths.LockFile); err != nil {
		return fmt.Errorf("paths.lock_file: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeRegistry() {
	c.Registry.PortalURL = strings.TrimSpace(c.Registry.PortalURL)
	if c.Registry.PortalURL == "" {
		c.Registry.PortalURL = defaultPortalURL
	}
	c.Registry.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Registry.APIBaseURL), "/")
	if c.Registry.APIBaseURL == "" {
		c.Registry.APIBaseURL = defaultAPIBaseURL
	}
	if strings.TrimSpace(c.Registry.UserAgent) == "" {
		c.Registry.UserAgent = defaultUserAgent
	}
	if c.Registry.PageSize <= 0 {
		c.Registry.PageSize = defaultPageSize
	}
	if c.Registry.Burst <= 0 {
		c.Registry.Burst = defaultBurst
	}
}

func (c *Config) normalizeCaptcha() error {
	var err error
	if c.Captcha.TemplateDir, err = ExpandPath(c.Captcha.TemplateDir); err != nil {
		return fmt.Errorf("captcha.template_dir: %w", err)
	}
	if strings.TrimSpace(c.Captcha.SimilarityModel) != "" {
		if c.Captcha.SimilarityModel, err = ExpandPath(c.Captcha.SimilarityModel); err != nil {
			return fmt.Errorf("captcha.similarity_model: %w", err)
		}
	}
	c.Captcha.DetectorURL = strings.TrimRight(strings.TrimSpace(c.Captcha.DetectorURL), "/")
	c.Captcha.SimilarityBackend = strings.ToLower(strings.TrimSpace(c.Captcha.SimilarityBackend))
	if c.Captcha.SimilarityBackend == "" {
		c.Captcha.SimilarityBackend = defaultSimilarityBackend
	}
	if len(c.Captcha.GlyphOffsets) == 0 {
		c.Captcha.GlyphOffsets = append([]int(nil), defaultGlyphOffsets...)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = defaultSQLitePath
	}
	var err error
	if c.Store.SQLitePath, err = ExpandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	if c.Store.ListPageSize <= 0 {
		c.Store.ListPageSize = defaultListPageSize
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
		if c.Production() {
			format = "json"
		}
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func (c *Config) normalizeTracing() {
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaultTracingExporter
	}
	if strings.TrimSpace(c.Tracing.ServiceName) == "" {
		c.Tracing.ServiceName = defaultServiceName
	}
}
