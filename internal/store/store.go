package store

import (
	"context"
	"fmt"
	"log/slog"

	"icpquery/internal/config"
	"icpquery/internal/record"
	"icpquery/internal/services"
)

// ErrNotFound is returned by Find when no row exists for a domain.
var ErrNotFound = services.ErrNotFound

// Store persists filing records. Rows are append-only: Save always inserts and
// Find returns the oldest row for a domain, so concurrent saves for the same
// domain may leave duplicates.
type Store interface {
	Find(ctx context.Context, domain string) (*record.Record, error)
	Save(ctx context.Context, rec *record.Record) error
	List(ctx context.Context, limit int) ([]record.Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.Store.Driver and applies any
// pending migrations.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	switch cfg.Store.Driver {
	case config.StoreSQLite, "":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	case config.StorePostgres:
		return OpenPostgres(ctx, cfg.Store.PostgresDSN, int32(cfg.Store.MaxConns+cfg.Store.MaxOverflow))
	case config.StoreRedis:
		return OpenRedis(ctx, cfg.Store.RedisURL, cfg.Store.MaxConns)
	case config.StoreMemory:
		if logger != nil {
			logger.Warn("using in-memory record store; cached records are lost on restart",
				"event_type", "store_memory",
				"error_hint", "set store.driver to sqlite, postgres or redis for persistence",
				"impact", "every restart re-queries the registry")
		}
		return NewMemory(), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", fmt.Sprintf("unsupported driver %q", cfg.Store.Driver), nil)
	}
}

func validateRecord(rec *record.Record) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	if rec.Domain == "" {
		return services.Wrap(services.ErrValidation, "store", "save", "record domain is required", nil)
	}
	return nil
}

// restoreZones puts times read back from a backend into the zones a fresh
// lookup produces: filing time in the registry zone, cache time in UTC.
func restoreZones(rec *record.Record) {
	rec.UpdateRecordTime = rec.UpdateRecordTime.In(record.RegistryZone)
	rec.CachedAt = rec.CachedAt.UTC()
}
