package main

import (
	"context"
	"database/sql"
	"time"

	"padron/internal/records"
	dErrors "padron/pkg/domain-errors"
	"padron/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// postgresTx runs mutation pipelines inside a database transaction. The open
// *sql.Tx travels down to the store through the context.
type postgresTx struct {
	db      *sql.DB
	store   records.Store
	timeout time.Duration
}

func newPostgresTx(db *sql.DB, store records.Store) *postgresTx {
	return &postgresTx{db: db, store: store}
}

func (t *postgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store records.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx), t.store); err != nil {
		return err
	}

	return sqlTx.Commit()
}
