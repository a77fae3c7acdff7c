package sqlstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procureflow/internal/infrastructure/persistence/sqlstore"
	"github.com/garyjia/procureflow/internal/infrastructure/persistence/sqltest"
)

func countUsers(t *testing.T, db *sqlstore.DB) int {
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM users`))
	return n
}

func TestWithTransaction_Commit(t *testing.T) {
	db := sqltest.Open(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		assert.True(t, sqlstore.InTransaction(txCtx))
		_, err := db.Executor(txCtx).ExecContext(txCtx,
			db.Rebind(`INSERT INTO users (name, role, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`), "sato", "sales")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countUsers(t, db))
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db := sqltest.Open(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		_, err := db.Executor(txCtx).ExecContext(txCtx,
			db.Rebind(`INSERT INTO users (name, role, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`), "sato", "sales")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countUsers(t, db))
}

func TestWithTransaction_NestedJoinsOuter(t *testing.T) {
	db := sqltest.Open(t)
	ctx := context.Background()
	boom := errors.New("outer failed")

	err := db.WithTransaction(ctx, func(outer context.Context) error {
		inner := db.WithTransaction(outer, func(innerCtx context.Context) error {
			_, err := db.Executor(innerCtx).ExecContext(innerCtx,
				db.Rebind(`INSERT INTO users (name, role, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`), "sato", "sales")
			return err
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	// the inner write rolled back with the outer transaction
	assert.Equal(t, 0, countUsers(t, db))
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	db := sqltest.Open(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = db.WithTransaction(ctx, func(txCtx context.Context) error {
			_, _ = db.Executor(txCtx).ExecContext(txCtx,
				db.Rebind(`INSERT INTO users (name, role, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`), "sato", "sales")
			panic("unexpected")
		})
	})
	assert.Equal(t, 0, countUsers(t, db))
}

func TestExecutor_OutsideTransaction(t *testing.T) {
	db := sqltest.Open(t)
	assert.False(t, sqlstore.InTransaction(context.Background()))
	assert.NotNil(t, db.Executor(context.Background()))
}
