package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"campus-auth/internal/hashing"
	"campus-auth/internal/store"
	"campus-auth/internal/token"
	"campus-auth/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

// captureNotifier records messages and can be told to fail the next send.
type captureNotifier struct {
	mu       sync.Mutex
	sent     []sentMessage
	failNext error
}

func (n *captureNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNext != nil {
		err := n.failNext
		n.failNext = nil
		return err
	}
	n.sent = append(n.sent, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// denyLimiter refuses everything, for exercising the throttle paths.
type denyLimiter struct {
	denySend    bool
	denyAttempt bool
	failures    int
}

func (l *denyLimiter) AllowSend(ctx context.Context, email string) (bool, error) {
	return !l.denySend, nil
}

func (l *denyLimiter) AllowAttempt(ctx context.Context, email string) (bool, error) {
	return !l.denyAttempt, nil
}

func (l *denyLimiter) RecordFailedAttempt(ctx context.Context, email string) error {
	l.failures++
	return nil
}

func (l *denyLimiter) ClearAttempts(ctx context.Context, email string) error {
	l.failures = 0
	return nil
}

type fixture struct {
	svc      *AuthService
	store    *store.Memory
	notifier *captureNotifier
	signer   *token.Signer
	clock    *time.Time
}

func newFixture(t *testing.T, opts AuthServiceOptions) *fixture {
	t.Helper()

	mem := store.NewMemory()
	notifier := &captureNotifier{}
	signer := token.NewSigner("test-secret", 24*time.Hour)
	hasher := hashing.NewHasher(hashing.DefaultParams)

	svc := NewAuthService(mem, notifier, signer, hasher, zap.NewNop(), opts)

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := &start
	svc.now = func() time.Time { return *clock }

	return &fixture{
		svc:      svc,
		store:    mem,
		notifier: notifier,
		signer:   signer,
		clock:    clock,
	}
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *fixture) storedOTP(t *testing.T, email string) string {
	t.Helper()
	rec, err := f.store.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, rec.OTP)
	return *rec.OTP
}

func (f *fixture) storedResetOTP(t *testing.T, email string) string {
	t.Helper()
	rec, err := f.store.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, rec.PasswordResetOTP)
	return *rec.PasswordResetOTP
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	cases := []struct {
		name                      string
		email, username, password string
	}{
		{"missing email", "", "alice", "pw1"},
		{"missing username", "a@x.com", "", "pw1"},
		{"missing password", "a@x.com", "alice", ""},
		{"suspicious username", "a@x.com", "<script>alert(1)</script>", "pw1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.Register(ctx, tc.email, tc.username, tc.password)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	// no side effects for rejected input
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.notifier.count())
}

func TestRegisterCreatesUnverifiedRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))

	rec, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, rec.Verified)
	assert.Equal(t, "alice", rec.Username)
	assert.NotEmpty(t, rec.ID)

	require.NotNil(t, rec.OTP)
	assert.Regexp(t, otpPattern, *rec.OTP)
	require.NotNil(t, rec.OTPExpiry)
	assert.True(t, rec.OTPExpiry.Equal(f.clock.Add(10*time.Minute)))

	// password is stored hashed, never verbatim
	assert.NotEqual(t, "pw1", rec.PasswordHash)
	assert.NotEmpty(t, rec.PasswordHash)

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, "a@x.com", f.notifier.sent[0].To)
	assert.Contains(t, f.notifier.sent[0].Body, *rec.OTP)
}

func TestRegisterVerifiedEmailFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	_, err := f.svc.VerifyOTP(ctx, "a@x.com", f.storedOTP(t, "a@x.com"))
	require.NoError(t, err)

	// rejected regardless of whether the password matches
	err = f.svc.Register(ctx, "a@x.com", "alice", "pw1")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	err = f.svc.Register(ctx, "a@x.com", "mallory", "other")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestReRegisterOverwritesOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	firstOTP := f.storedOTP(t, "a@x.com")

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice-two", "pw2"))
	secondOTP := f.storedOTP(t, "a@x.com")

	rec, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice-two", rec.Username)

	if firstOTP != secondOTP {
		_, err = f.svc.VerifyOTP(ctx, "a@x.com", firstOTP)
		assert.ErrorIs(t, err, ErrInvalidOTP, "superseded OTP must no longer verify")
	}

	tok, err := f.svc.VerifyOTP(ctx, "a@x.com", secondOTP)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestRegisterNotifierFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	f.notifier.failNext = errors.New("smtp down")
	err := f.svc.Register(ctx, "a@x.com", "alice", "pw1")
	assert.ErrorIs(t, err, ErrNotification)

	// the record and its OTP survive the failed send; re-registration is the
	// recovery path and resends a fresh code
	rec, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, rec.OTP)

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	assert.Equal(t, 1, f.notifier.count())

	tok, err := f.svc.VerifyOTP(ctx, "a@x.com", f.storedOTP(t, "a@x.com"))
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestVerifyOTPValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	_, err := f.svc.VerifyOTP(ctx, "", "123456")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.VerifyOTP(ctx, "a@x.com", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestVerifyOTPUnknownEmail(t *testing.T) {
	f := newFixture(t, AuthServiceOptions{})
	_, err := f.svc.VerifyOTP(context.Background(), "missing@x.com", "123456")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyOTPSucceedsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	otp := f.storedOTP(t, "a@x.com")

	tok, err := f.svc.VerifyOTP(ctx, "a@x.com", otp)
	require.NoError(t, err)

	claims, err := f.signer.Verify(tok)
	require.NoError(t, err)
	rec, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, claims.UserID)
	assert.True(t, rec.Verified)
	assert.Nil(t, rec.OTP)
	assert.Nil(t, rec.OTPExpiry)

	// replaying the consumed code fails: the record is already verified
	_, err = f.svc.VerifyOTP(ctx, "a@x.com", otp)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestVerifyOTPWrongCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	otp := f.storedOTP(t, "a@x.com")

	wrong := "000000"
	if wrong == otp {
		wrong = "000001"
	}
	_, err := f.svc.VerifyOTP(ctx, "a@x.com", wrong)
	assert.ErrorIs(t, err, ErrInvalidOTP)

	// the stored code is untouched and still works
	tok, err := f.svc.VerifyOTP(ctx, "a@x.com", otp)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestVerifyOTPExpiryBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("at exactly the expiry instant", func(t *testing.T) {
		f := newFixture(t, AuthServiceOptions{})
		require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
		otp := f.storedOTP(t, "a@x.com")

		f.advance(10 * time.Minute)
		tok, err := f.svc.VerifyOTP(ctx, "a@x.com", otp)
		require.NoError(t, err, "expiry check is strict greater-than")
		assert.NotEmpty(t, tok)
	})

	t.Run("just past the expiry instant", func(t *testing.T) {
		f := newFixture(t, AuthServiceOptions{})
		require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
		otp := f.storedOTP(t, "a@x.com")

		f.advance(10*time.Minute + time.Nanosecond)
		_, err := f.svc.VerifyOTP(ctx, "a@x.com", otp)
		assert.ErrorIs(t, err, ErrInvalidOTP)
	})
}

func TestLoginCollapsesFailureModes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	// unknown user
	_, err := f.svc.Login(ctx, "nobody@x.com", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// unverified user, even with the right password
	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	_, err = f.svc.Login(ctx, "a@x.com", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// wrong password on a verified user
	_, err = f.svc.VerifyOTP(ctx, "a@x.com", f.storedOTP(t, "a@x.com"))
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	_, err := f.svc.VerifyOTP(ctx, "a@x.com", f.storedOTP(t, "a@x.com"))
	require.NoError(t, err)

	tok, err := f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	claims, err := f.signer.Verify(tok)
	require.NoError(t, err)
	rec, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, claims.UserID)
}

func TestForgotPasswordValidationAndLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	assert.ErrorIs(t, f.svc.ForgotPassword(ctx, ""), ErrValidation)
	assert.ErrorIs(t, f.svc.ForgotPassword(ctx, "missing@x.com"), ErrNotFound)
}

func TestForgotPasswordLeavesRegistrationOTPAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	registrationOTP := f.storedOTP(t, "a@x.com")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))

	rec, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, rec.OTP)
	assert.Equal(t, registrationOTP, *rec.OTP, "reset flow must not disturb the registration pair")
	require.NotNil(t, rec.PasswordResetOTP)
	assert.Regexp(t, otpPattern, *rec.PasswordResetOTP)
	require.NotNil(t, rec.PasswordResetExpiry)
}

func TestResetPasswordFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	_, err := f.svc.VerifyOTP(ctx, "a@x.com", f.storedOTP(t, "a@x.com"))
	require.NoError(t, err)

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	resetOTP := f.storedResetOTP(t, "a@x.com")

	tok, err := f.svc.ResetPassword(ctx, "a@x.com", resetOTP, "pw2")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	// old password no longer authenticates, new one does
	_, err = f.svc.Login(ctx, "a@x.com", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "a@x.com", "pw2")
	require.NoError(t, err)

	// the reset pair is cleared, verified stays true, and the consumed code
	// cannot be replayed
	rec, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, rec.Verified)
	assert.Nil(t, rec.PasswordResetOTP)
	assert.Nil(t, rec.PasswordResetExpiry)

	_, err = f.svc.ResetPassword(ctx, "a@x.com", resetOTP, "pw3")
	assert.ErrorIs(t, err, ErrInvalidOTP)
	_, err = f.svc.Login(ctx, "a@x.com", "pw2")
	require.NoError(t, err)
}

func TestResetPasswordExpiredOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	_, err := f.svc.VerifyOTP(ctx, "a@x.com", f.storedOTP(t, "a@x.com"))
	require.NoError(t, err)

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	resetOTP := f.storedResetOTP(t, "a@x.com")

	f.advance(10*time.Minute + time.Second)
	_, err = f.svc.ResetPassword(ctx, "a@x.com", resetOTP, "pw2")
	assert.ErrorIs(t, err, ErrInvalidOTP)

	// a fresh code supersedes the expired one
	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	_, err = f.svc.ResetPassword(ctx, "a@x.com", f.storedResetOTP(t, "a@x.com"), "pw2")
	require.NoError(t, err)
}

func TestResetPasswordValidationAndLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	_, err := f.svc.ResetPassword(ctx, "", "123456", "pw")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.ResetPassword(ctx, "a@x.com", "", "pw")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.ResetPassword(ctx, "a@x.com", "123456", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.ResetPassword(ctx, "missing@x.com", "123456", "pw")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendBudgetEnforcedBeforeStoreMutation(t *testing.T) {
	ctx := context.Background()
	limiter := &denyLimiter{denySend: true}
	f := newFixture(t, AuthServiceOptions{Limiter: limiter})

	err := f.svc.Register(ctx, "a@x.com", "alice", "pw1")
	assert.ErrorIs(t, err, ErrTooManyRequests)
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.notifier.count())
}

func TestAttemptLockout(t *testing.T) {
	ctx := context.Background()
	limiter := &denyLimiter{}
	f := newFixture(t, AuthServiceOptions{Limiter: limiter})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))
	otp := f.storedOTP(t, "a@x.com")

	wrong := "000000"
	if wrong == otp {
		wrong = "000001"
	}
	_, err := f.svc.VerifyOTP(ctx, "a@x.com", wrong)
	assert.ErrorIs(t, err, ErrInvalidOTP)
	assert.Equal(t, 1, limiter.failures)

	limiter.denyAttempt = true
	_, err = f.svc.VerifyOTP(ctx, "a@x.com", otp)
	assert.ErrorIs(t, err, ErrTooManyRequests)

	limiter.denyAttempt = false
	_, err = f.svc.VerifyOTP(ctx, "a@x.com", otp)
	require.NoError(t, err)
	assert.Equal(t, 0, limiter.failures, "success clears the failure counter")
}

// Full lifecycle walk: register, fail a verify, verify, log in, reject a bad
// login.
func TestCredentialLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AuthServiceOptions{})

	require.NoError(t, f.svc.Register(ctx, "a@x.com", "alice", "pw1"))

	rec, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, rec.Verified)
	require.NotNil(t, rec.OTP)
	assert.Regexp(t, otpPattern, *rec.OTP)
	otp := *rec.OTP

	wrong := "999999"
	if wrong == otp {
		wrong = "999998"
	}
	_, err = f.svc.VerifyOTP(ctx, "a@x.com", wrong)
	assert.ErrorIs(t, err, ErrInvalidOTP)

	tok, err := f.svc.VerifyOTP(ctx, "a@x.com", otp)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	tok, err = f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	_, err = f.svc.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEmailHashStability(t *testing.T) {
	assert.Equal(t, util.HashEmail("a@x.com"), util.HashEmail("a@x.com"))
	assert.NotEqual(t, util.HashEmail("a@x.com"), util.HashEmail("A@x.com"))
}
