package testsupport

import (
	"context"
	"testing"

	"icpquery/internal/config"
	"icpquery/internal/store"
)

// MustOpenStore opens the configured record store for tests and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
