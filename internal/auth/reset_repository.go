package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/fintrackhq/fintrack-api/internal/database"
)

var ErrResetTokenInvalid = errors.New("invalid or expired reset token")

// ResetSessionRepository persists password reset sessions. Several live
// sessions may exist for the same user; requesting a new reset does not
// invalidate older tokens.
type ResetSessionRepository struct {
	db *bun.DB
}

func NewResetSessionRepository(db *bun.DB) *ResetSessionRepository {
	return &ResetSessionRepository{db: db}
}

// CreateSession stores a new reset session for the user. Only the token hash
// is persisted.
func (r *ResetSessionRepository) CreateSession(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error {
	session := &database.ResetSession{
		UserID:    userID,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(ttl),
		Used:      false,
	}

	_, err := r.db.NewInsert().
		Model(session).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create reset session: %w", err)
	}

	return nil
}

// Consume redeems a reset token and returns the owning user id. The
// used=false -> used=true transition happens in one conditional UPDATE gated
// on the expiry predicate, so concurrent redemptions of the same token get
// exactly one winner; every other caller sees ErrResetTokenInvalid.
func (r *ResetSessionRepository) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	var userID uuid.UUID
	_, err := r.db.NewUpdate().
		Model((*database.ResetSession)(nil)).
		Set("used = ?", true).
		Where("token_hash = ?", hashToken(token)).
		Where("used = ?", false).
		Where("expires_at > NOW()").
		Returning("user_id").
		Exec(ctx, &userID)

	if err != nil {
		// A zero-row RETURNING scan surfaces as sql.ErrNoRows: the token is
		// unknown, already used, or expired.
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrResetTokenInvalid
		}
		return uuid.Nil, fmt.Errorf("failed to consume reset token: %w", err)
	}

	return userID, nil
}

// DeleteExpired reaps dead sessions. Correctness never depends on this; the
// Consume predicate already refuses used and expired tokens.
func (r *ResetSessionRepository) DeleteExpired(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*database.ResetSession)(nil)).
		WhereOr("expires_at < NOW()").
		WhereOr("used = ?", true).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete expired reset sessions: %w", err)
	}

	return nil
}
