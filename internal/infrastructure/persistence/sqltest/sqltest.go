// Package sqltest opens migrated in-memory databases for repository and engine tests.
package sqltest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/infrastructure/persistence/sqlstore"
	"github.com/garyjia/procureflow/pkg/database"
)

// Open returns a freshly migrated private sqlite database.
// A single connection keeps the shared-cache database alive and serialises writers.
func Open(t testing.TB) *sqlstore.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Driver:       database.DriverSQLite,
		DSN:          database.MemoryDSN("test_" + uuid.NewString()),
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).Up())
	return sqlstore.NewDB(db, zap.NewNop())
}

// SeedUser inserts a user row and returns its id
func SeedUser(t testing.TB, db *sqlstore.DB, name, role string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowx(db.Rebind(`INSERT INTO users (name, role, lark_open_id, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		name, role, "ou_"+name, time.Now().UTC()).Scan(&id)
	require.NoError(t, err)
	return id
}
