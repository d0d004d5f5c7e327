package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateCaptcha(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateTracing(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRegistry() error {
	for name, raw := range map[string]string{
		"registry.portal_url":   c.Registry.PortalURL,
		"registry.api_base_url": c.Registry.APIBaseURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.Registry.RequestsPerSecond < 0 {
		return errors.New("registry.requests_per_second must be >= 0")
	}
	if c.Registry.TokenTTLSeconds <= 0 {
		return errors.New("registry.token_ttl_seconds must be positive")
	}
	if c.Registry.TimeoutSeconds <= 0 {
		return errors.New("registry.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateCaptcha() error {
	if strings.TrimSpace(c.Captcha.TemplateDir) == "" {
		return errors.New("captcha.template_dir must be set")
	}
	if c.Captcha.CanvasWidth <= 0 || c.Captcha.CanvasHeight <= 0 {
		return errors.New("captcha canvas dimensions must be positive")
	}
	if c.Captcha.Threshold <= 0 || c.Captcha.Threshold > 1 {
		return errors.New("captcha.threshold must be in (0, 1]")
	}
	if c.Captcha.RetryIntervalMillis < 0 {
		return errors.New("captcha.retry_interval_ms must be >= 0")
	}
	if c.Captcha.WarmCredentials < 0 {
		return errors.New("captcha.warm_credentials must be >= 0")
	}
	if strings.TrimSpace(c.Captcha.DetectorURL) == "" {
		return errors.New("captcha.detector_url must be set")
	}
	switch c.Captcha.SimilarityBackend {
	case "cpu", "cuda":
	default:
		return fmt.Errorf("captcha.similarity_backend must be cpu or cuda, got %q", c.Captcha.SimilarityBackend)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return errors.New("store.postgres_dsn must be set when store.driver is postgres")
		}
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisURL) == "" {
			return errors.New("store.redis_url must be set when store.driver is redis")
		}
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}
	if c.Store.MaxConns < 0 || c.Store.MaxOverflow < 0 {
		return errors.New("store pool sizes must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported logging.level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateTracing() error {
	if !c.Tracing.Enabled {
		return nil
	}
	switch c.Tracing.Exporter {
	case "stdout", "noop":
	default:
		return fmt.Errorf("tracing.exporter must be stdout or noop, got %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.New("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}
