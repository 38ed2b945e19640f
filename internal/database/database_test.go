package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithTxCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE incidents").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), mock, zap.NewNop().Sugar(), func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE incidents SET title = $1", "x")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE incidents").WillReturnError(boom)
	mock.ExpectRollback()

	err = WithTx(context.Background(), mock, zap.NewNop().Sugar(), func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE incidents SET title = $1", "x")
		return err
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), mock, zap.NewNop().Sugar(), func(tx pgx.Tx) error {
			panic("unexpected")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxBeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	called := false
	err = WithTx(context.Background(), mock, zap.NewNop().Sugar(), func(tx pgx.Tx) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "begin tx")
	assert.False(t, called)
}

func TestPgErrorClassification(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
}

func TestMigrateURL(t *testing.T) {
	got, err := migrateURL("postgres://u:p@db:5432/incidents?sslmode=disable", "schema_migrations")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://u:p@db:5432/incidents?sslmode=disable&x-migrations-table=schema_migrations", got)

	_, err = migrateURL("mysql://u:p@db/incidents", "")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2)
}
