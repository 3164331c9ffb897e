package sqlite

import (
	"context"
	"net/url"
	"testing"
)

// setupTestDB opens a migrated in-memory database private to the test. The
// escaped test name keeps parallel tests on separate shared-cache databases.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	name := url.PathEscape(t.Name())
	db, err := openDB(context.Background(), name, memoryDSN(name))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}
