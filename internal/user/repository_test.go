package user

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrackhq/fintrack-api/internal/database"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewRepository(database.NewBunDB(sqlDB)), mock
}

func TestAdjustBalanceReturnsNewValue(t *testing.T) {
	repo, mock := newMockRepository(t)
	userID := uuid.New()

	mock.ExpectQuery(`UPDATE "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("69.50"))

	balance, err := repo.AdjustBalance(context.Background(), userID, decimal.NewFromInt(-30))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("69.50")), "balance = %s", balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBalanceUnknownUser(t *testing.T) {
	// The UPDATE matches no row, so the RETURNING scan comes back empty. That
	// must read as ErrNotFound, not as an internal error.
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`UPDATE "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	_, err := repo.AdjustBalance(context.Background(), uuid.New(), decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
