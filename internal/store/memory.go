package store

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"icpquery/internal/record"
)

// Memory keeps records in process memory. Nothing expires; rows live until
// the process exits.
type Memory struct {
	mu     sync.Mutex
	cache  *gocache.Cache
	rows   []record.Record
	nextID int64
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{cache: gocache.New(gocache.NoExpiration, 0)}
}

// Find returns the oldest record for domain.
func (m *Memory) Find(_ context.Context, domain string) (*record.Record, error) {
	value, found := m.cache.Get(domain)
	if !found {
		return nil, ErrNotFound
	}
	rec, ok := value.(record.Record)
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Save appends rec and assigns its ID and CachedAt. The first row saved for a
// domain stays the one Find returns.
func (m *Memory) Save(_ context.Context, rec *record.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	rec.ID = m.nextID
	if rec.CachedAt.IsZero() {
		rec.CachedAt = time.Now().UTC()
	}
	m.rows = append(m.rows, *rec)
	// Add fails when the key exists, which keeps the oldest row addressable.
	_ = m.cache.Add(rec.Domain, *rec, gocache.NoExpiration)
	return nil
}

// List returns up to limit records, newest first.
func (m *Memory) List(_ context.Context, limit int) ([]record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]record.Record, 0, n)
	for i := len(m.rows) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.rows[i])
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}
