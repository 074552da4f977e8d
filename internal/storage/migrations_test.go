package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, s *SQLiteStore, kind, name string) bool {
	t.Helper()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestApplyMigrations_RecordsCurrentVersion(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	v, err := currentVersion(ctx, store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	// Re-applying is a no-op
	require.NoError(t, ApplyMigrations(ctx, store.db))
	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)
}

func TestRollbackMigration(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, store.db))
	v, err := currentVersion(ctx, store.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())
	assert.False(t, tableExists(t, store, "index", "idx_sessions_subject"))
	assert.True(t, tableExists(t, store, "table", "messages"))

	require.NoError(t, RollbackMigration(ctx, store.db))
	assert.False(t, tableExists(t, store, "table", "messages"))
	assert.True(t, tableExists(t, store, "table", "schema_version"))

	assert.Error(t, RollbackMigration(ctx, store.db))

	// Everything can be re-applied from scratch
	require.NoError(t, ApplyMigrations(ctx, store.db))
	assert.True(t, tableExists(t, store, "table", "messages"))
	assert.True(t, tableExists(t, store, "index", "idx_sessions_subject"))
}
