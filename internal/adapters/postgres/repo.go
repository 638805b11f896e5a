package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketline/booking/internal/booking"
	"github.com/ticketline/booking/internal/domain"
	"github.com/ticketline/booking/internal/observability"
)

const (
	serializationFailureCode = "40001"
	lockNotAvailableCode     = "55P03"
	uniqueViolationCode      = "23505"
	checkViolationCode       = "23514"
)

type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// InTx runs fn in a single transaction and rolls everything back if fn
// fails. The lock timeout bounds how long a reservation waits on a
// contended event row before giving up with a retryable failure.
func (r *Repository) InTx(ctx context.Context, fn func(booking.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ErrTransient
	}
	defer tx.Rollback(ctx)

	if r.lockTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds()))
		if err != nil {
			return mapPgError(err)
		}
	}

	if err := fn(&invTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

// mapPgError folds Postgres failure codes into the domain taxonomy: lock
// timeouts, serialization failures and constraint backstops all roll back
// and surface as retryable; unique violations surface as conflicts.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailureCode, lockNotAvailableCode, checkViolationCode:
			return domain.ErrTransient
		case uniqueViolationCode:
			return domain.ErrConflict
		}
	}
	return err
}
