package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openclaw/channel-session-go/internal/database"
)

// getOne scans a single-row query into a new T. A query matching no row
// yields nil, nil.
func getOne[T any](ctx context.Context, db database.DBTX, query string, args ...any) (*T, error) {
	var out T
	err := db.GetContext(ctx, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// rowsAffected collapses an Exec result into the number of rows it touched.
func rowsAffected(result sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
