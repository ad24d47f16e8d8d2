package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func asPgError(err error, target **pgconn.PgError) bool {
	return errors.As(err, target)
}

// IsNoRows signale une ligne absente.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
