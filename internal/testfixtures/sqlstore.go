package testfixtures

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/readingattendance/readingd/internal/persistence/sqlstore"
)

// NewSQLStoreHarness opens a migrated SQLite store in a temporary directory
// and closes it when the test finishes.
func NewSQLStoreHarness(tb testing.TB) *sqlstore.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "reading.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", path)

	store, err := sqlstore.Open(context.Background(), sqlstore.Config{
		Driver:       sqlstore.DriverSQLite,
		DSN:          dsn,
		MaxOpenConns: 1,
	}, nil)
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if _, err := store.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate store: %v", err)
	}
	return store
}
