package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"icpquery/internal/record"
)

const (
	redisSeqKey    = "icp:records:seq"
	redisIndexKey  = "icp:records:by_id"
	redisRowPrefix = "icp:record:id:"
	redisDomainKey = "icp:record:domain:"
)

// Redis persists records as JSON blobs. Each domain keeps a list of row IDs
// in insertion order; a sorted set indexes all rows for listing.
type Redis struct {
	client *redis.Client
}

var _ Store = (*Redis)(nil)

// OpenRedis parses url, connects and verifies the server answers PING.
func OpenRedis(ctx context.Context, url string, poolSize int) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedis(client), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Find returns the oldest record for domain.
func (s *Redis) Find(ctx context.Context, domain string) (*record.Record, error) {
	id, err := s.client.LIndex(ctx, redisDomainKey+domain, 0).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	raw, err := s.client.Get(ctx, redisRowPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}
	return decodeRedisRecord(raw)
}

// Save inserts rec and assigns its ID and CachedAt.
func (s *Redis) Save(ctx context.Context, rec *record.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	id, err := s.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return fmt.Errorf("allocate record id: %w", err)
	}
	rec.ID = id
	if rec.CachedAt.IsZero() {
		rec.CachedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	member := strconv.FormatInt(id, 10)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisRowPrefix+member, payload, 0)
		pipe.RPush(ctx, redisDomainKey+rec.Domain, member)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(id), Member: member})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first. A non-positive limit lists all.
func (s *Redis) List(ctx context.Context, limit int) ([]record.Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list record ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisRowPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	out := make([]record.Record, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		rec, err := decodeRedisRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Ping verifies the server answers.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Redis) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func decodeRedisRecord(raw []byte) (*record.Record, error) {
	var rec record.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	restoreZones(&rec)
	return &rec, nil
}
