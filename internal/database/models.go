package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// User is the bun model for the users table. Balance is a denormalized cache
// over the transactions table; it is only ever written through an in-database
// increment (see user.Repository.AdjustBalance).
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID               uuid.UUID       `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Email            string          `bun:"email,notnull,unique"`
	Name             string          `bun:"name,notnull"`
	PasswordHash     string          `bun:"password_hash,notnull"`
	Verified         bool            `bun:"verified,notnull,default:false"`
	ActivationCode   *string         `bun:"activation_code"`
	ActivationSentAt *time.Time      `bun:"activation_sent_at"`
	Balance          decimal.Decimal `bun:"balance,notnull,default:0"`
	CreatedAt        time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	VerifiedAt       *time.Time      `bun:"verified_at"`
	UpdatedAt        time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

// ResetSession is the bun model for password reset sessions. Tokens are stored
// hashed; Used flips false -> true exactly once via a conditional update.
type ResetSession struct {
	bun.BaseModel `bun:"table:reset_sessions"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	UserID    uuid.UUID `bun:"user_id,notnull,type:uuid"`
	TokenHash string    `bun:"token_hash,notnull,unique"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	Used      bool      `bun:"used,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Transaction is the bun model for ledger records. Amount is always a positive
// magnitude; the sign of its contribution to the balance comes from Type.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID          uuid.UUID       `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	UserID      uuid.UUID       `bun:"user_id,notnull,type:uuid"`
	Amount      decimal.Decimal `bun:"amount,notnull"`
	Description string          `bun:"description,notnull"`
	Type        string          `bun:"type,notnull"`
	Category    string          `bun:"category,notnull,default:'uncategorized'"`
	Date        time.Time       `bun:"date,notnull"`
	CreatedAt   time.Time       `bun:"created_at,notnull,default:current_timestamp"`
}
