package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("data/procureflow.db")

	assert.Contains(t, dsn, "file:data/procureflow.db?")
	assert.Contains(t, dsn, "_foreign_keys=on")
	assert.Contains(t, dsn, "_txlock=immediate")
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpen_PostgresRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: DriverPostgres}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn is required")
}

func TestMigrator_UpDown(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: MemoryDSN(t.Name()), MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	migrator := NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.Up())
	// running again is a no-op
	require.NoError(t, migrator.Up())

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	var tables int
	require.NoError(t, db.Get(&tables,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('approval_instances', 'procurement_logs')`))
	assert.Equal(t, 2, tables)

	require.NoError(t, migrator.Down())
	require.NoError(t, db.Get(&tables,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'approval_instances'`))
	assert.Equal(t, 0, tables)
}
