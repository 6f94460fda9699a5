package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/fintrackhq/fintrack-api/internal/database"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Repository handles user data persistence
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user. The account starts unverified with a zero balance.
func (r *Repository) Create(ctx context.Context, email, name, passwordHash string) (*User, error) {
	dbUser := &database.User{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Verified:     false,
		Balance:      decimal.Zero,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email (exact, case-sensitive match)
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", email).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// MarkVerified flips verified to true and records the timestamp of the first
// transition. Calling it on an already verified user is a no-op that still
// succeeds, so verification reads as idempotent to callers.
func (r *Repository) MarkVerified(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("verified = ?", true).
		Set("verified_at = NOW()").
		Set("activation_code = NULL").
		Set("activation_sent_at = NULL").
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Where("verified = ?", false).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to mark user as verified: %w", err)
	}

	return nil
}

// SetActivationCode stores the activation code issued with the latest
// activation email, along with when it was sent.
func (r *Repository) SetActivationCode(ctx context.Context, userID uuid.UUID, code string) error {
	now := time.Now()
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("activation_code = ?", code).
		Set("activation_sent_at = ?", now).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to set activation code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdatePassword updates a user's password hash
func (r *Repository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// AdjustBalance applies delta to the cached balance and returns the new value.
// The increment is evaluated inside Postgres in a single statement; two
// concurrent adjustments for the same user serialize on the row and neither
// update is lost. Reading the balance into the application and writing back a
// computed value would not have that property.
func (r *Repository) AdjustBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	_, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("balance = balance + ?", delta).
		Set("updated_at = NOW()").
		Where("id = ?", userID).
		Returning("balance").
		Exec(ctx, &balance)

	if err != nil {
		// A zero-row RETURNING scan surfaces as sql.ErrNoRows
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to adjust balance: %w", err)
	}

	return balance, nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:               dbu.ID,
		Email:            dbu.Email,
		Name:             dbu.Name,
		PasswordHash:     dbu.PasswordHash,
		Verified:         dbu.Verified,
		ActivationCode:   dbu.ActivationCode,
		ActivationSentAt: dbu.ActivationSentAt,
		Balance:          dbu.Balance,
		CreatedAt:        dbu.CreatedAt,
		VerifiedAt:       dbu.VerifiedAt,
	}
}
