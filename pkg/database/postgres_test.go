package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert detail: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxdb := sqlx.NewDb(db, "sqlmock")

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, WithTx(context.Background(), sqlxdb, func(tx *sqlx.Tx) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	failure := errors.New("insert failed")
	err = WithTx(context.Background(), sqlxdb, func(tx *sqlx.Tx) error { return failure })
	assert.ErrorIs(t, err, failure)

	assert.NoError(t, mock.ExpectationsWereMet())
}
