package repository

import (
	"database/sql"
	"fmt"
)

// affected reports whether a conditional UPDATE matched exactly one row
func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}
