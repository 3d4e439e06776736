package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// TransactionManager executes fn inside a database transaction and passes the
// backend's tx handle through tx. Backends without transactions do not
// implement it; document stores that need atomic read-check-write use it
// internally (conditional updates in Postgres).
//
// Repositories must accept a nil tx and fall back to the non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
