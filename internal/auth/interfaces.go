package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack-api/internal/user"
)

// TokenService defines the interface for identity token creation and
// validation. PasetoService (PASETO v4.local) is the production implementation.
type TokenService interface {
	CreateToken(userID uuid.UUID, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// UserStore is the slice of the user repository the auth service depends on.
type UserStore interface {
	Create(ctx context.Context, email, name, passwordHash string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	MarkVerified(ctx context.Context, userID uuid.UUID) error
	SetActivationCode(ctx context.Context, userID uuid.UUID, code string) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// ResetTokenStore persists single-use, time-bounded password reset sessions.
// Consume must be atomic: of any number of concurrent calls with the same
// token, exactly one may succeed.
type ResetTokenStore interface {
	CreateSession(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error
	Consume(ctx context.Context, token string) (uuid.UUID, error)
}

// EmailService defines the outbound email collaborator. SendActivationEmail
// returns the activation code it mailed so the caller can persist it.
type EmailService interface {
	SendActivationEmail(ctx context.Context, toEmail string, userID uuid.UUID) (string, error)
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}
