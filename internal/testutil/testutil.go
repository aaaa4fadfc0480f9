// Package testutil provides shared test helpers for setting up cache
// directories and history databases.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/vebland/clipvault/internal/history"
	"github.com/vebland/clipvault/internal/recordstore"
)

// Logger returns a logger that discards all output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStore creates a record store over a temporary directory.
func TestStore(t *testing.T) *recordstore.Store {
	t.Helper()
	store, err := recordstore.New(t.TempDir(), Logger())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// TestHistory creates a temporary lookup-history database that is
// automatically cleaned up.
func TestHistory(t *testing.T) *history.Log {
	t.Helper()
	l, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}
