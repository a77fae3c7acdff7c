package sqlstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/garyjia/procureflow/internal/domain/apperr"
)

// Classify maps a driver error onto the core taxonomy.
// Uniqueness and serialization conflicts mean a concurrent writer won, which callers see as invalid_state.
// Everything else is a persistence failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	if isConflict(err) {
		return &apperr.Error{Code: apperr.CodeInvalidState, Message: "concurrent modification", Cause: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &apperr.Error{Code: apperr.CodePersistence, Message: "operation cancelled", Cause: err}
	}
	return &apperr.Error{Code: apperr.CodePersistence, Message: err.Error(), Cause: err}
}

func isConflict(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505", "40001", "40P01":
			return true
		}
	}
	return false
}
