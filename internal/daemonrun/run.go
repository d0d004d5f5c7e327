package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"icpquery/internal/config"
	"icpquery/internal/daemon"
	"icpquery/internal/logging"
	"icpquery/internal/preflight"
	"icpquery/internal/services"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the icpquery service and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	for _, check := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "challenge solving or lookups may fail"),
		)
	}

	components, err := Build(signalCtx, cfg, logger)
	if err != nil {
		if errors.Is(err, services.ErrTemplateStoreEmpty) {
			logging.ErrorWithContext(logger, "template library is empty", "templates_missing",
				logging.String("dir", cfg.Captcha.TemplateDir),
				logging.String(logging.FieldErrorHint, "place background PNGs in captcha.template_dir"),
				logging.String(logging.FieldImpact, "no challenge can be solved"),
			)
		}
		return err
	}
	defer components.Close()

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:     components.Store,
		Pool:      components.Pool,
		Query:     components.Query,
		Metrics:   components.Metrics,
		Templates: components.Templates.Len(),
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	// components.Close owns the store; Stop only releases the pool and lock.
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return d.Serve(ctx)
	})
	if n := cfg.Captcha.WarmCredentials; n > 0 {
		group.Go(func() error {
			err := components.Pool.Warm(ctx, n)
			if err != nil && ctx.Err() == nil {
				logging.WarnWithContext(logger, "credential warm-up stopped", "pool_warm_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "first lookups will solve challenges on demand"),
				)
			}
			return nil
		})
	}

	err = group.Wait()
	logger.Info("icpquery daemon shutting down")
	return err
}
