package auth

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrackhq/fintrack-api/internal/database"
)

func newMockResetRepository(t *testing.T) (*ResetSessionRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewResetSessionRepository(database.NewBunDB(sqlDB)), mock
}

func TestConsumeReturnsOwner(t *testing.T) {
	repo, mock := newMockResetRepository(t)
	ownerID := uuid.New()

	mock.ExpectQuery(`UPDATE "reset_sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(ownerID.String()))

	got, err := repo.Consume(context.Background(), "fresh-token")
	require.NoError(t, err)
	assert.Equal(t, ownerID, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeSingleUse(t *testing.T) {
	repo, mock := newMockResetRepository(t)
	ownerID := uuid.New()

	// First redemption flips the row; the second matches nothing and the
	// RETURNING scan comes back empty.
	mock.ExpectQuery(`UPDATE "reset_sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(ownerID.String()))
	mock.ExpectQuery(`UPDATE "reset_sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	got, err := repo.Consume(context.Background(), "the-token")
	require.NoError(t, err)
	require.Equal(t, ownerID, got)

	_, err = repo.Consume(context.Background(), "the-token")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeDeadToken(t *testing.T) {
	// Unknown, already used, and expired tokens all fail the UPDATE predicate
	// and must come back as ErrResetTokenInvalid, never as an internal error.
	repo, mock := newMockResetRepository(t)

	mock.ExpectQuery(`UPDATE "reset_sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err := repo.Consume(context.Background(), "dead-token")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
	require.NoError(t, mock.ExpectationsWereMet())
}
