package service

import (
	"context"
	"sync"
	"time"

	dErrors "padron/pkg/domain-errors"

	"padron/internal/records"
	"padron/internal/records/store/memory"
)

// StoreTx provides the transactional boundary for pipeline mutations.
// Implementations wrap a database transaction (see cmd/server) or, in-memory,
// a coarse lock with snapshot rollback. The context handed to fn carries the
// transaction so the store sees its own uncommitted writes.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store records.Store) error) error
}

// defaultTxTimeout is the maximum duration for a pipeline transaction.
const defaultTxTimeout = 5 * time.Second

type memoryTx struct {
	mu      sync.Mutex
	store   *memory.Store
	timeout time.Duration
}

// NewMemoryTx builds a StoreTx over the in-memory store. A single mutex
// serializes transactions and a snapshot taken up front restores the store when
// fn fails, matching the rollback contract of the SQL runner. Because a restore
// rewinds the whole store, every service write must go through the runner;
// a write landing between snapshot and restore would be erased.
func NewMemoryTx(store *memory.Store) StoreTx {
	return &memoryTx{store: store}
}

func (t *memoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store records.Store) error) error {
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

	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.store.Snapshot()
	if err := fn(ctx, t.store); err != nil {
		t.store.Restore(snap)
		return err
	}
	return nil
}
