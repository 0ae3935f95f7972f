package repository

import (
	"context"
	"database/sql"
	"errors"
)

// HandleNotFound turns sql.ErrNoRows from a single-row Get into (nil, nil).
// Callers decide whether a missing row is an error.
func HandleNotFound[T any](result *T, err error) (*T, error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return result, nil
	}
}

// queryer is the subset of *sqlx.DB and *sqlx.Tx the repositories use.
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
