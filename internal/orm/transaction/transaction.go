// Package transaction manages database transactions for the import pipeline:
// one outer transaction per import, with savepoint-backed nested scopes for
// individual rows and hooks so a failing row can roll back without aborting
// its siblings.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrAlreadyCommitted is returned when finishing a finished transaction
	ErrAlreadyCommitted = errors.New("transaction already committed")
	// ErrNoTransaction is returned when nesting requires an open transaction
	ErrNoTransaction = errors.New("no open transaction to nest in")
)

// savepointCounter provides unique savepoint names across all transactions
var savepointCounter atomic.Uint64

// Manager opens transactions on one database handle
type Manager struct {
	db *sql.DB
}

// NewManager creates a transaction manager
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Begin starts a top-level transaction
func (m *Manager) Begin(ctx context.Context) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx, ctx: ctx}, nil
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	t, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			t.Rollback()
			panic(p)
		}
	}()

	if err := fn(t.Tx()); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}
	return t.Commit()
}

// Transaction is an open transaction or savepoint scope
type Transaction struct {
	tx            *sql.Tx
	ctx           context.Context
	level         int // 0 = top-level, 1+ = savepoint
	savepointName string
	committed     atomic.Bool
	rolledBack    atomic.Bool
}

// Tx returns the underlying sql.Tx
func (t *Transaction) Tx() *sql.Tx {
	return t.tx
}

// Level returns the nesting level of the transaction
func (t *Transaction) Level() int {
	return t.level
}

// BeginNested opens a savepoint scope inside this transaction
func (t *Transaction) BeginNested(ctx context.Context) (*Transaction, error) {
	if t.tx == nil {
		return nil, ErrNoTransaction
	}

	name := fmt.Sprintf("sp_%d_%d", savepointCounter.Add(1), t.level+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	return &Transaction{
		tx:            t.tx,
		ctx:           ctx,
		level:         t.level + 1,
		savepointName: name,
	}, nil
}

// Commit commits the transaction, or releases the savepoint for nested scopes
func (t *Transaction) Commit() error {
	if t.committed.Load() {
		return ErrAlreadyCommitted
	}
	if t.rolledBack.Load() {
		return errors.New("transaction already rolled back")
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(t.ctx, "RELEASE SAVEPOINT "+t.savepointName); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
		t.committed.Store(true)
		return nil
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.committed.Store(true)
	return nil
}

// Rollback rolls back the transaction, or rolls back to the savepoint for
// nested scopes. Rolling back twice is a no-op.
func (t *Transaction) Rollback() error {
	if t.committed.Load() {
		return ErrAlreadyCommitted
	}
	if t.rolledBack.Load() {
		return nil
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(t.ctx, "ROLLBACK TO SAVEPOINT "+t.savepointName); err != nil {
			return fmt.Errorf("failed to rollback to savepoint: %w", err)
		}
		t.rolledBack.Store(true)
		return nil
	}

	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.rolledBack.Store(true)
	return nil
}

// IsCommitted returns true if the transaction has been committed
func (t *Transaction) IsCommitted() bool {
	return t.committed.Load()
}

// IsRolledBack returns true if the transaction has been rolled back
func (t *Transaction) IsRolledBack() bool {
	return t.rolledBack.Load()
}
