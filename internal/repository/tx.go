package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Travelintrips/travelpage-sub004/internal/db"
)

var writeTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

// txRunner opens a transaction per call. Built on a caller's transaction it
// has no pool and runs on that transaction instead.
type txRunner struct {
	pool *pgxpool.Pool
	q    *db.Queries
}

func newTxRunner(pool *pgxpool.Pool, q *db.Queries) txRunner {
	return txRunner{pool: pool, q: q}
}

func (r txRunner) run(ctx context.Context, fn func(q *db.Queries) error) error {
	if r.pool == nil {
		return fn(r.q)
	}

	err := pgx.BeginTxFunc(ctx, r.pool, writeTxOptions, func(tx pgx.Tx) error {
		return fn(r.q.WithTx(tx))
	})
	if err != nil {
		return fmt.Errorf("pgx.BeginTxFunc: %w", err)
	}

	return nil
}
