package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	version, err := RunMigrations(db.Writer)

	require.NoError(t, err)
	assert.Equal(t, uint(5), version)
}

func TestRunMigrations_CreatesSyncTables(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{
		"external_credentials",
		"sync_queue",
		"hourly_sales",
		"analytic_lines",
		"payments",
		"scheduled_payables",
		"sync_runs",
		"sync_batch_clears",
	} {
		var name string
		err := db.Reader.QueryRowContext(context.Background(),
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}
