package transaction

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewManager(db), mock
}

func TestWithTransactionCommits(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE things").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := m.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE things SET x = 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := m.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRollsBackOnPanic(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = m.WithTransaction(context.Background(), func(tx *sql.Tx) error {
			panic("boom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNestedSavepointCommit(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RELEASE SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	outer, err := m.Begin(ctx)
	require.NoError(t, err)

	inner, err := outer.BeginNested(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.Level())

	require.NoError(t, inner.Commit())
	require.NoError(t, outer.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNestedSavepointRollbackKeepsOuterAlive(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	outer, err := m.Begin(ctx)
	require.NoError(t, err)

	inner, err := outer.BeginNested(ctx)
	require.NoError(t, err)

	require.NoError(t, inner.Rollback())
	assert.True(t, inner.IsRolledBack())
	assert.False(t, outer.IsRolledBack())

	require.NoError(t, outer.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDoubleCommit(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, tx.Commit(), ErrAlreadyCommitted)
}

func TestDoubleRollbackIsNoop(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())
}
