package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrackhq/fintrack-api/internal/logging"
	"github.com/fintrackhq/fintrack-api/internal/user"
)

// memUserStore is an in-memory UserStore keyed by email and id.
type memUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[uuid.UUID]*user.User)}
}

func (s *memUserStore) Create(ctx context.Context, email, name, passwordHash string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return nil, user.ErrDuplicateEmail
		}
	}

	u := &user.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *memUserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *memUserStore) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memUserStore) MarkVerified(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[userID]; ok && !u.Verified {
		now := time.Now().UTC()
		u.Verified = true
		u.VerifiedAt = &now
	}
	return nil
}

func (s *memUserStore) SetActivationCode(ctx context.Context, userID uuid.UUID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	now := time.Now().UTC()
	u.ActivationCode = &code
	u.ActivationSentAt = &now
	return nil
}

func (s *memUserStore) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// backdateActivation rewinds the stored activation timestamp.
func (s *memUserStore) backdateActivation(userID uuid.UUID, by time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[userID]; ok && u.ActivationSentAt != nil {
		past := u.ActivationSentAt.Add(-by)
		u.ActivationSentAt = &past
	}
}

type resetSession struct {
	userID    uuid.UUID
	expiresAt time.Time
	used      bool
}

// memResetStore is an in-memory ResetTokenStore with an atomic Consume.
type memResetStore struct {
	mu        sync.Mutex
	sessions  map[string]*resetSession
	lastToken string
}

func newMemResetStore() *memResetStore {
	return &memResetStore{sessions: make(map[string]*resetSession)}
}

func (s *memResetStore) CreateSession(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[token] = &resetSession{userID: userID, expiresAt: time.Now().Add(ttl)}
	s.lastToken = token
	return nil
}

func (s *memResetStore) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok || sess.used || time.Now().After(sess.expiresAt) {
		return uuid.Nil, ErrResetTokenInvalid
	}
	sess.used = true
	return sess.userID, nil
}

// fakeEmailService records sends and hands out a fixed activation code.
type fakeEmailService struct {
	mu              sync.Mutex
	activationSends int
	resetSends      int
	failActivation  bool
}

func (f *fakeEmailService) SendActivationEmail(ctx context.Context, toEmail string, userID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failActivation {
		return "", errors.New("smtp: connection refused")
	}
	f.activationSends++
	return "123456", nil
}

func (f *fakeEmailService) SendPasswordResetEmail(ctx context.Context, toEmail, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resetSends++
	return nil
}

type serviceFixture struct {
	service *Service
	users   *memUserStore
	resets  *memResetStore
	email   *fakeEmailService
}

func newServiceFixture(t *testing.T, requireVerification bool) *serviceFixture {
	t.Helper()

	tokenService, err := NewPasetoService([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	users := newMemUserStore()
	resets := newMemResetStore()
	emailSvc := &fakeEmailService{}

	svc := NewService(
		users,
		resets,
		tokenService,
		emailSvc,
		logging.NewLogger(true),
		time.Hour,
		requireVerification,
		time.Hour,
		24*time.Hour,
	)

	return &serviceFixture{service: svc, users: users, resets: resets, email: emailSvc}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	registered, token, err := f.service.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.False(t, registered.Verified)
	assert.Equal(t, 1, f.email.activationSends)

	loggedIn, loginToken, err := f.service.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, loggedIn.ID)
	assert.NotEmpty(t, loginToken)
}

func TestRegisterValidation(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		userName string
		password string
		wantErr  error
	}{
		{"missing email", "", "Alice", "long enough", ErrEmailRequired},
		{"malformed email", "not-an-email", "Alice", "long enough", ErrInvalidEmailFormat},
		{"missing name", "alice@example.com", "", "long enough", ErrNameRequired},
		{"missing password", "alice@example.com", "Alice", "", ErrPasswordRequired},
		{"short password", "alice@example.com", "Alice", "short", ErrPasswordTooShort},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.service.Register(ctx, tc.email, tc.userName, tc.password)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	_, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)

	_, _, err = f.service.Register(ctx, "alice@example.com", "Alice Again", "another pass")
	require.ErrorIs(t, err, user.ErrDuplicateEmail)
}

func TestRegisterSurvivesEmailOutage(t *testing.T) {
	f := newServiceFixture(t, false)
	f.email.failActivation = true
	ctx := context.Background()

	registered, token, err := f.service.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	stored, err := f.users.GetByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ActivationCode, "no code is stored when the email never went out")
}

func TestLoginDoesNotRevealWhichFieldFailed(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	_, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)

	_, _, unknownErr := f.service.Login(ctx, "nobody@example.com", "correct horse")
	_, _, wrongErr := f.service.Login(ctx, "alice@example.com", "wrong password")

	require.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestLoginVerificationGate(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()

	registered, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)

	_, _, err = f.service.Login(ctx, "alice@example.com", "correct horse")
	require.ErrorIs(t, err, ErrEmailNotVerified)

	require.NoError(t, f.service.VerifyEmail(ctx, registered.ID, "123456"))

	_, _, err = f.service.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
}

func TestVerifyEmail(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	registered, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)

	err = f.service.VerifyEmail(ctx, registered.ID, "")
	require.ErrorIs(t, err, ErrCodeRequired)

	err = f.service.VerifyEmail(ctx, registered.ID, "000000")
	require.ErrorIs(t, err, ErrInvalidActivationCode)

	require.NoError(t, f.service.VerifyEmail(ctx, registered.ID, "123456"))

	stored, err := f.users.GetByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.NotNil(t, stored.VerifiedAt)

	err = f.service.VerifyEmail(ctx, registered.ID, "123456")
	require.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestVerifyEmailExpiredCode(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	registered, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)

	f.users.backdateActivation(registered.ID, 25*time.Hour)

	err = f.service.VerifyEmail(ctx, registered.ID, "123456")
	require.ErrorIs(t, err, ErrInvalidActivationCode)
}

func TestVerifyEmailUnknownUser(t *testing.T) {
	f := newServiceFixture(t, false)

	err := f.service.VerifyEmail(context.Background(), uuid.New(), "123456")
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestResetPasswordFlow(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	_, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "old password")
	require.NoError(t, err)

	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@example.com"))
	token := f.resets.lastToken
	require.NotEmpty(t, token)

	require.NoError(t, f.service.ResetPassword(ctx, token, "new password"))

	_, _, err = f.service.Login(ctx, "alice@example.com", "old password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = f.service.Login(ctx, "alice@example.com", "new password")
	require.NoError(t, err)

	err = f.service.ResetPassword(ctx, token, "third password")
	require.ErrorIs(t, err, ErrResetTokenInvalid, "a reset token is single-use")
}

func TestResetPasswordConcurrentRedemption(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	_, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "old password")
	require.NoError(t, err)

	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@example.com"))
	token := f.resets.lastToken

	const n = 8
	results := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			results <- f.service.ResetPassword(ctx, token, "new password")
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, ErrResetTokenInvalid)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent redemption may win")
}

func TestResetPasswordValidation(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	err := f.service.ResetPassword(ctx, "whatever", "")
	require.ErrorIs(t, err, ErrPasswordRequired)

	err = f.service.ResetPassword(ctx, "whatever", "short")
	require.ErrorIs(t, err, ErrPasswordTooShort)

	err = f.service.ResetPassword(ctx, "no-such-token", "long enough")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	registered, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "old password")
	require.NoError(t, err)

	require.NoError(t, f.resets.CreateSession(ctx, registered.ID, "stale-token", -time.Minute))

	err = f.service.ResetPassword(ctx, "stale-token", "new password")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	f := newServiceFixture(t, false)

	err := f.service.RequestPasswordReset(context.Background(), "nobody@example.com")
	require.NoError(t, err, "unknown emails must be indistinguishable from known ones")
	assert.Empty(t, f.resets.sessions)
}

func TestResendActivation(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	registered, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, 1, f.email.activationSends)

	require.NoError(t, f.service.ResendActivation(ctx, registered.ID))
	assert.Equal(t, 2, f.email.activationSends)

	require.NoError(t, f.service.VerifyEmail(ctx, registered.ID, "123456"))

	err = f.service.ResendActivation(ctx, registered.ID)
	require.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestResendActivationEmailFailure(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	registered, _, err := f.service.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)

	f.email.failActivation = true
	err = f.service.ResendActivation(ctx, registered.ID)
	require.ErrorIs(t, err, ErrActivationEmailFailed)
}
