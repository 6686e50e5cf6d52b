package testutil

import (
	"testing"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/duckdb"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/history"
)

// NewTestHistory creates an in-memory capture history.
// The database is automatically closed when the test completes.
func NewTestHistory(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.Open(duckdb.Memory, NewTestLogger(t))
	if err != nil {
		t.Fatalf("failed to create test history: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test history: %v", err)
		}
	})

	return store
}
