// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database_test

import (
	"path/filepath"
	"testing"

	"codeberg.org/oliverandrich/qr-registration/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countUsersTable(t *testing.T, dsn string) int64 {
	t.Helper()
	db, err := database.Open(dsn)
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	var count int64
	err = db.Get(&count, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name='users'")
	require.NoError(t, err)
	return count
}

func TestOpen_InMemory(t *testing.T) {
	assert.Equal(t, int64(1), countUsersTable(t, ":memory:"))
}

func TestOpen_ModeMemory(t *testing.T) {
	assert.Equal(t, int64(1), countUsersTable(t, "file::memory:?mode=memory"))
}

func TestOpen_FileDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "test.db")

	assert.Equal(t, int64(1), countUsersTable(t, dbPath))
	// Re-opening must not re-apply migrations
	assert.Equal(t, int64(1), countUsersTable(t, dbPath))
}

func TestMigrateDown(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	require.NoError(t, database.MigrateDown(db.DB))

	var count int64
	err = db.Get(&count, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name='users'")
	require.NoError(t, err)
	assert.Zero(t, count)
}
