package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"icpquery/internal/record"
)

// Postgres persists records in PostgreSQL through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to dsn, sizes the pool and applies migrations.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	s := NewPostgres(pool)
	if err := s.applyMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool. Migrations are not applied.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
			return fmt.Errorf("ensure schema_migrations: %w", err)
		}
		for _, m := range migrations {
			var applied bool
			if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", m.version).Scan(&applied); err != nil {
				return fmt.Errorf("scan migration version: %w", err)
			}
			if applied {
				continue
			}
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.version, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
				return fmt.Errorf("record migration %s: %w", m.version, err)
			}
		}
		return nil
	})
}

// Find returns the oldest record for domain.
func (s *Postgres) Find(ctx context.Context, domain string) (*record.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM icp_records WHERE domain = $1 ORDER BY id LIMIT 1`, domain)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return rec, nil
}

// Save inserts rec and assigns its ID and CachedAt.
func (s *Postgres) Save(ctx context.Context, rec *record.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.CachedAt.IsZero() {
		rec.CachedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO icp_records (
            domain, unit_name, main_licence, service_licence, content_type_name,
            nature_name, leader_name, limit_access, main_id, service_id,
            update_record_time, cached_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id`,
		rec.Domain,
		rec.UnitName,
		rec.MainLicence,
		rec.ServiceLicence,
		rec.ContentTypeName,
		rec.NatureName,
		rec.LeaderName,
		rec.LimitAccess,
		rec.MainID,
		rec.ServiceID,
		rec.UpdateRecordTime,
		rec.CachedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first. A non-positive limit lists all.
func (s *Postgres) List(ctx context.Context, limit int) ([]record.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM icp_records ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Ping verifies the pool can reach the server.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Postgres) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func scanPostgresRecord(row pgx.Row) (*record.Record, error) {
	var rec record.Record
	if err := row.Scan(
		&rec.ID,
		&rec.Domain,
		&rec.UnitName,
		&rec.MainLicence,
		&rec.ServiceLicence,
		&rec.ContentTypeName,
		&rec.NatureName,
		&rec.LeaderName,
		&rec.LimitAccess,
		&rec.MainID,
		&rec.ServiceID,
		&rec.UpdateRecordTime,
		&rec.CachedAt,
	); err != nil {
		return nil, err
	}
	restoreZones(&rec)
	return &rec, nil
}
