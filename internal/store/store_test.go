package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icpquery/internal/config"
	"icpquery/internal/miit"
	"icpquery/internal/record"
	"icpquery/internal/store"
)

func sampleRecord(domain string) *record.Record {
	content := "综合门户"
	mainID := int64(110000000001)
	return &record.Record{
		Domain:           domain,
		UnitName:         "北京百度网讯科技有限公司",
		MainLicence:      "京ICP证030173号",
		ServiceLicence:   "京ICP证030173号-1",
		ContentTypeName:  &content,
		NatureName:       "企业",
		LimitAccess:      false,
		MainID:           &mainID,
		UpdateRecordTime: time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Find(ctx, "baidu.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	first := sampleRecord("baidu.com")
	require.NoError(t, s.Save(ctx, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CachedAt.IsZero())

	second := sampleRecord("baidu.com")
	second.UnitName = "duplicate"
	require.NoError(t, s.Save(ctx, second), "duplicate domains are allowed")
	assert.Greater(t, second.ID, first.ID)

	require.NoError(t, s.Save(ctx, sampleRecord("qq.com")))

	found, err := s.Find(ctx, "baidu.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID, "Find returns the oldest row")
	assert.Equal(t, first.UnitName, found.UnitName)
	assert.Equal(t, "综合门户", record.Deref(found.ContentTypeName))
	assert.Nil(t, found.LeaderName)
	assert.Nil(t, found.ServiceID)
	require.NotNil(t, found.MainID)
	assert.Equal(t, int64(110000000001), *found.MainID)
	assert.True(t, found.UpdateRecordTime.Equal(first.UpdateRecordTime))

	listed, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "qq.com", listed[0].Domain, "newest first")

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.Error(t, s.Save(ctx, &record.Record{}))
	require.NoError(t, s.Ping(ctx))

	exerciseRegistryTime(t, s)
}

// exerciseRegistryTime checks that a cached row renders the same filing time
// as the fresh registry row, including early-morning times whose UTC date
// is the previous day.
func exerciseRegistryTime(t *testing.T, s store.Store) {
	ctx := context.Background()

	fresh, err := record.FromQueryResult(miit.QueryResult{
		Domain:           "zone.cn",
		UnitName:         "zone",
		LimitAccess:      "否",
		UpdateRecordTime: "2024-03-01 06:30:00",
	})
	require.NoError(t, err)
	want, err := json.Marshal(fresh.UpdateRecordTime)
	require.NoError(t, err)
	require.JSONEq(t, `"2024-03-01T06:30:00+08:00"`, string(want))

	require.NoError(t, s.Save(ctx, fresh))
	cached, err := s.Find(ctx, "zone.cn")
	require.NoError(t, err)

	got, err := json.Marshal(cached.UpdateRecordTime)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	assert.Equal(t, "2024-03-01", cached.UpdateRecordTime.Format("2006-01-02"))

	listed, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "2024-03-01 06:30:00", listed[0].UpdateRecordTime.Format(record.UpdateTimeLayout))
}

func TestSQLiteStore(t *testing.T) {
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	ctx := context.Background()

	s, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleRecord("baidu.com")))
	require.NoError(t, s.Close())

	reopened, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	found, err := reopened.Find(ctx, "baidu.com")
	require.NoError(t, err)
	assert.Equal(t, "baidu.com", found.Domain)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, store.NewMemory())
}

func TestMemoryStoreConcurrentSaves(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Save(ctx, sampleRecord("race.cn")))
		}()
	}
	wg.Wait()

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 20)

	found, err := s.Find(ctx, "race.cn")
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.ID)
}

func TestOpenSelectsDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = filepath.Join(cfg.Paths.DataDir, "logs")
	cfg.Store.SQLitePath = filepath.Join(cfg.Paths.DataDir, "db", "records.db")

	s, err := store.Open(context.Background(), &cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.IsType(t, &store.SQLite{}, s)

	cfg.Store.Driver = config.StoreMemory
	mem, err := store.Open(context.Background(), &cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, mem)

	cfg.Store.Driver = "cassandra"
	_, err = store.Open(context.Background(), &cfg, nil)
	require.Error(t, err)
}
