package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/tabula/errors"
)

func TestOpen(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer conn.Close()

	var journalMode string
	require.NoError(t, conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, conn.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
}

func TestOpen_InvalidPath(t *testing.T) {
	conn, err := Open("/invalid/nonexistent/path/db.sqlite", nil)
	if err == nil {
		err = conn.Ping()
		conn.Close()
	}
	assert.Error(t, err)
}

func TestOpenWithMigrations(t *testing.T) {
	conn, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"schema_migrations", "generation_calls", "pipeline_runs"} {
		var n int
		err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	defer conn.Close()

	require.NoError(t, Migrate(conn, nil))
	require.NoError(t, Migrate(conn, nil))

	files, err := migrationFiles()
	require.NoError(t, err)

	var applied int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, len(files), applied)
	assert.Equal(t, "000_create_schema_migrations.sql", files[0])
}

func TestIsDatabaseClosed(t *testing.T) {
	assert.False(t, IsDatabaseClosed(nil))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "record run")))
	assert.True(t, IsDatabaseClosed(errors.New("sql: database is closed")))
	assert.False(t, IsDatabaseClosed(errors.New("no such table")))

	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.Close()
	_, err = conn.Exec("SELECT 1")
	assert.True(t, IsDatabaseClosed(err))
}
