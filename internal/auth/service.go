package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/fintrackhq/fintrack-api/internal/logging"
	"github.com/fintrackhq/fintrack-api/internal/user"
)

var (
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrEmailRequired         = errors.New("email is required")
	ErrNameRequired          = errors.New("name is required")
	ErrPasswordRequired      = errors.New("password is required")
	ErrPasswordTooShort      = errors.New("password must be at least 8 characters")
	ErrEmailNotVerified      = errors.New("email not verified, please check your inbox")
	ErrInvalidEmailFormat    = errors.New("invalid email format")
	ErrCodeRequired          = errors.New("activation code is required")
	ErrInvalidActivationCode = errors.New("invalid or expired activation code")
	ErrAlreadyVerified       = errors.New("email already verified")
	ErrActivationEmailFailed = errors.New("failed to send activation email")
)

// Argon2id parameters - tuned for security vs performance balance
// Time: 3, Memory: 64MB, Threads: 4, KeyLen: 32 bytes
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// Service handles the credential lifecycle: registration, login, email
// verification, and password recovery.
type Service struct {
	userStore           UserStore
	resetStore          ResetTokenStore
	tokenService        TokenService
	emailService        EmailService
	logger              *logging.Logger
	accessTokenDuration time.Duration
	requireVerification bool
	resetTokenTTL       time.Duration
	activationCodeTTL   time.Duration
}

func NewService(
	userStore UserStore,
	resetStore ResetTokenStore,
	tokenService TokenService,
	emailService EmailService,
	logger *logging.Logger,
	accessTokenDuration time.Duration,
	requireVerification bool,
	resetTokenTTL time.Duration,
	activationCodeTTL time.Duration,
) *Service {
	return &Service{
		userStore:           userStore,
		resetStore:          resetStore,
		tokenService:        tokenService,
		emailService:        emailService,
		logger:              logger,
		accessTokenDuration: accessTokenDuration,
		requireVerification: requireVerification,
		resetTokenTTL:       resetTokenTTL,
		activationCodeTTL:   activationCodeTTL,
	}
}

// Register creates a new user account, attempts the activation email, and
// returns the user along with a freshly issued identity token. A failed
// activation email never fails registration; the user can request a resend.
func (s *Service) Register(ctx context.Context, email, name, password string) (*user.User, string, error) {
	if email == "" {
		return nil, "", ErrEmailRequired
	}
	if len(email) > 254 {
		return nil, "", ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", ErrInvalidEmailFormat
	}
	if name == "" {
		return nil, "", ErrNameRequired
	}
	if password == "" {
		return nil, "", ErrPasswordRequired
	}
	if len(password) < 8 {
		return nil, "", ErrPasswordTooShort
	}

	passwordHash, err := s.hashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.userStore.Create(ctx, email, name, passwordHash)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, "", user.ErrDuplicateEmail
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	// The activation code only exists once the email actually went out, so the
	// send happens before the code is stored.
	code, err := s.emailService.SendActivationEmail(ctx, email, newUser.ID)
	if err != nil {
		s.logger.Warn("failed to send activation email", "email", email, "error", err)
	} else if err := s.userStore.SetActivationCode(ctx, newUser.ID, code); err != nil {
		s.logger.Warn("failed to store activation code", "user_id", newUser.ID, "error", err)
	}

	token, err := s.tokenService.CreateToken(newUser.ID, s.accessTokenDuration)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create token: %w", err)
	}

	return newUser, token, nil
}

// Login authenticates a user and returns the user with an identity token.
// Unknown email and wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, string, error) {
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	existingUser, err := s.userStore.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}

	if !s.verifyPassword(existingUser.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	if s.requireVerification && !existingUser.Verified {
		return nil, "", ErrEmailNotVerified
	}

	token, err := s.tokenService.CreateToken(existingUser.ID, s.accessTokenDuration)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create token: %w", err)
	}

	return existingUser, token, nil
}

// VerifyEmail checks the activation code for the authenticated user and marks
// the account verified. Re-verifying an already verified account reports
// ErrAlreadyVerified, which callers treat as success.
func (s *Service) VerifyEmail(ctx context.Context, userID uuid.UUID, code string) error {
	existingUser, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if existingUser.Verified {
		return ErrAlreadyVerified
	}

	if code == "" {
		return ErrCodeRequired
	}

	if existingUser.ActivationCode == nil || existingUser.ActivationSentAt == nil {
		return ErrInvalidActivationCode
	}
	if time.Now().After(existingUser.ActivationSentAt.Add(s.activationCodeTTL)) {
		return ErrInvalidActivationCode
	}
	if subtle.ConstantTimeCompare([]byte(*existingUser.ActivationCode), []byte(code)) != 1 {
		return ErrInvalidActivationCode
	}

	if err := s.userStore.MarkVerified(ctx, userID); err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}

	return nil
}

// RequestPasswordReset initiates the password reset process.
// Always returns nil to prevent email enumeration attacks.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	existingUser, err := s.userStore.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		s.logger.Warn("failed to get user for password reset", "error", err)
		return nil
	}

	token, err := generateRandomToken()
	if err != nil {
		s.logger.Warn("failed to generate password reset token", "error", err)
		return nil
	}

	// Earlier outstanding sessions stay valid; each token is single-use on its own.
	if err := s.resetStore.CreateSession(ctx, existingUser.ID, token, s.resetTokenTTL); err != nil {
		s.logger.Warn("failed to store password reset token", "error", err)
		return nil
	}

	go func() {
		emailCtx := context.Background()
		if err := s.emailService.SendPasswordResetEmail(emailCtx, email, token); err != nil {
			s.logger.Warn("failed to send password reset email", "email", email, "error", err)
		}
	}()

	return nil
}

// ResetPassword redeems a reset token and sets a new password. The token is
// burnt by Consume before the password changes, so a racing duplicate request
// fails cleanly instead of double-applying.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return ErrPasswordRequired
	}
	if len(newPassword) < 8 {
		return ErrPasswordTooShort
	}

	userID, err := s.resetStore.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, ErrResetTokenInvalid) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	passwordHash, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userStore.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

// ResendActivation sends a fresh activation email to the authenticated user.
// Unlike the enumeration-sensitive public endpoints, this one reports email
// delivery failure to the caller.
func (s *Service) ResendActivation(ctx context.Context, userID uuid.UUID) error {
	existingUser, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if existingUser.Verified {
		return ErrAlreadyVerified
	}

	code, err := s.emailService.SendActivationEmail(ctx, existingUser.Email, userID)
	if err != nil {
		s.logger.Error("failed to resend activation email", "email", existingUser.Email, "error", err)
		return ErrActivationEmailFailed
	}

	if err := s.userStore.SetActivationCode(ctx, userID, code); err != nil {
		return fmt.Errorf("failed to store activation code: %w", err)
	}

	return nil
}

// hashPassword creates an argon2id hash of the password
func (s *Service) hashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLen,
	)

	// Encode as: $argon2id$v=19$m=65536,t=3,p=4$salt$hash
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		encodedSalt,
		encodedHash,
	), nil
}

// verifyPassword checks if a password matches the stored hash
func (s *Service) verifyPassword(encodedHash, password string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	inputHash := argon2.IDKey(
		[]byte(password),
		salt,
		timeCost,
		memory,
		threads,
		uint32(len(decodedHash)),
	)

	// Compare hashes using constant-time comparison
	return subtle.ConstantTimeCompare(decodedHash, inputHash) == 1
}
