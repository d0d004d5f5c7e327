package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"icpquery/internal/record"
)

const recordColumns = "id, domain, unit_name, main_licence, service_licence, content_type_name, nature_name, leader_name, limit_access, main_id, service_id, update_record_time, cached_at"

// SQLite persists records in a local SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// Find returns the oldest record for domain.
func (s *SQLite) Find(ctx context.Context, domain string) (*record.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM icp_records WHERE domain = ? ORDER BY id LIMIT 1`, domain)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return rec, nil
}

// Save inserts rec and assigns its ID and CachedAt.
func (s *SQLite) Save(ctx context.Context, rec *record.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.CachedAt.IsZero() {
		rec.CachedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO icp_records (
            domain, unit_name, main_licence, service_licence, content_type_name,
            nature_name, leader_name, limit_access, main_id, service_id,
            update_record_time, cached_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Domain,
		rec.UnitName,
		rec.MainLicence,
		rec.ServiceLicence,
		nullableString(rec.ContentTypeName),
		rec.NatureName,
		nullableString(rec.LeaderName),
		rec.LimitAccess,
		nullableInt(rec.MainID),
		nullableInt(rec.ServiceID),
		rec.UpdateRecordTime.UTC().Format(time.RFC3339Nano),
		rec.CachedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// List returns up to limit records, newest first.
func (s *SQLite) List(ctx context.Context, limit int) ([]record.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM icp_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanSQLiteRecord(scanner interface{ Scan(dest ...any) error }) (*record.Record, error) {
	var (
		rec         record.Record
		contentType sql.NullString
		leaderName  sql.NullString
		mainID      sql.NullInt64
		serviceID   sql.NullInt64
		updatedRaw  string
		cachedRaw   string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.Domain,
		&rec.UnitName,
		&rec.MainLicence,
		&rec.ServiceLicence,
		&contentType,
		&rec.NatureName,
		&leaderName,
		&rec.LimitAccess,
		&mainID,
		&serviceID,
		&updatedRaw,
		&cachedRaw,
	); err != nil {
		return nil, err
	}
	rec.ContentTypeName = stringPtr(contentType)
	rec.LeaderName = stringPtr(leaderName)
	rec.MainID = intPtr(mainID)
	rec.ServiceID = intPtr(serviceID)

	var err error
	if rec.UpdateRecordTime, err = time.Parse(time.RFC3339Nano, updatedRaw); err != nil {
		return nil, fmt.Errorf("parse update_record_time: %w", err)
	}
	if rec.CachedAt, err = time.Parse(time.RFC3339Nano, cachedRaw); err != nil {
		return nil, fmt.Errorf("parse cached_at: %w", err)
	}
	restoreZones(&rec)
	return &rec, nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func intPtr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	return &value.Int64
}
