package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus-auth/internal/hashing"
	"campus-auth/internal/model"
	"campus-auth/internal/notify"
	"campus-auth/internal/store"
	"campus-auth/internal/token"
	"campus-auth/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrValidation         = errors.New("missing or malformed input")
	ErrNotFound           = errors.New("user not found")
	ErrAlreadyRegistered  = errors.New("user already exists")
	ErrAlreadyVerified    = errors.New("user already verified")
	ErrInvalidOTP         = errors.New("invalid or expired OTP")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotification       = errors.New("failed to deliver notification")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrInternal           = errors.New("internal error")
)

// OTPLimiter throttles OTP delivery and verification attempts per email.
// All methods are called before the corresponding store mutation.
type OTPLimiter interface {
	// AllowSend reports whether another OTP may be delivered to the email,
	// counting the send when it is allowed.
	AllowSend(ctx context.Context, email string) (bool, error)
	// AllowAttempt reports whether the email is currently allowed to attempt
	// an OTP check (i.e. not locked out).
	AllowAttempt(ctx context.Context, email string) (bool, error)
	// RecordFailedAttempt counts a failed OTP check, locking the email once
	// the failure budget is exhausted.
	RecordFailedAttempt(ctx context.Context, email string) error
	// ClearAttempts resets the failure counter after a successful check.
	ClearAttempts(ctx context.Context, email string) error
}

// EventRecorder receives the security trail. Implementations must not block
// the auth flow on sink failures.
type EventRecorder interface {
	Record(ctx context.Context, event *model.AuthEvent)
}

// AuthService is the credential and OTP lifecycle manager. It owns every
// mutation of a UserCredential: registration, OTP verification, login, and
// password reset. The store is the single source of truth; the service holds
// no state of its own, so concurrent requests race only on store writes
// (last writer wins, which is how a newer OTP supersedes an older one).
type AuthService struct {
	store    store.UserStore
	notifier notify.Notifier
	signer   *token.Signer
	hasher   *hashing.Hasher
	limiter  OTPLimiter
	recorder EventRecorder
	logger   *zap.Logger

	otpLength int
	otpTTL    time.Duration

	now func() time.Time
}

// AuthServiceOptions carries the optional collaborators. Limiter and Recorder
// may be nil; the service runs without throttling or an event trail.
type AuthServiceOptions struct {
	Limiter   OTPLimiter
	Recorder  EventRecorder
	OTPLength int
	OTPTTL    time.Duration
}

func NewAuthService(
	userStore store.UserStore,
	notifier notify.Notifier,
	signer *token.Signer,
	hasher *hashing.Hasher,
	logger *zap.Logger,
	opts AuthServiceOptions,
) *AuthService {
	if opts.OTPLength <= 0 {
		opts.OTPLength = 6
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}

	return &AuthService{
		store:     userStore,
		notifier:  notifier,
		signer:    signer,
		hasher:    hasher,
		limiter:   opts.Limiter,
		recorder:  opts.Recorder,
		logger:    logger,
		otpLength: opts.OTPLength,
		otpTTL:    opts.OTPTTL,
		now:       time.Now,
	}
}

// Register creates or refreshes an unverified credential record and delivers
// a registration OTP. Re-registering an unverified email overwrites username,
// password hash, and the outstanding OTP pair; a verified email is rejected.
// The record is persisted before the notification goes out, so a delivery
// failure leaves a valid OTP behind — re-registering regenerates and resends.
func (s *AuthService) Register(ctx context.Context, email, username, password string) error {
	if email == "" || username == "" || password == "" {
		return fmt.Errorf("%w: email, username, and password are required", ErrValidation)
	}
	if util.ContainsSuspicious(username) {
		return fmt.Errorf("%w: username contains disallowed characters", ErrValidation)
	}
	username = util.SanitizeInput(username)
	if username == "" {
		return fmt.Errorf("%w: email, username, and password are required", ErrValidation)
	}

	if err := s.checkSendBudget(ctx, email); err != nil {
		return err
	}

	existing, err := s.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil && existing.Verified {
		s.record(ctx, model.EventRegister, existing.ID, email, false, "already registered")
		return ErrAlreadyRegistered
	}

	otp, err := GenerateOTP(s.otpLength)
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.otpTTL).UTC()

	passwordHash, err := s.hasher.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var userID string
	if existing == nil {
		user := &model.UserCredential{
			ID:           uuid.New().String(),
			Email:        email,
			Username:     username,
			PasswordHash: passwordHash,
			Verified:     false,
			OTP:          &otp,
			OTPExpiry:    &expiry,
		}
		if err := s.store.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		userID = user.ID
	} else {
		upd := store.UserUpdate{
			Username:     &username,
			PasswordHash: &passwordHash,
			OTP:          &otp,
			OTPExpiry:    &expiry,
		}
		if err := s.store.UpdateByEmail(ctx, email, upd); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		userID = existing.ID
	}

	s.logger.Info("registration OTP issued",
		util.String("user_id", userID),
		util.String("email_hash", util.HashEmail(email)),
		util.Time("otp_expiry", expiry),
	)

	body := fmt.Sprintf("Your OTP for registration is: %s", otp)
	if err := s.notifier.Send(ctx, email, "Your Registration OTP", body); err != nil {
		s.record(ctx, model.EventRegister, userID, email, false, "notification failed")
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}

	s.record(ctx, model.EventRegister, userID, email, true, "")
	return nil
}

// VerifyOTP confirms the registration code, marks the record verified, clears
// the OTP pair, and issues a token. This is the only path that flips Verified.
func (s *AuthService) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	if email == "" || otp == "" {
		return "", fmt.Errorf("%w: email and OTP are required", ErrValidation)
	}

	if err := s.checkAttemptBudget(ctx, email); err != nil {
		return "", err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user.Verified {
		return "", ErrAlreadyVerified
	}

	if !s.otpMatches(user.OTP, user.OTPExpiry, otp) {
		s.countFailure(ctx, email)
		s.record(ctx, model.EventVerifyOTP, user.ID, email, false, "invalid or expired OTP")
		return "", ErrInvalidOTP
	}

	verified := true
	upd := store.UserUpdate{
		Verified: &verified,
		ClearOTP: true,
	}
	if err := s.store.UpdateByEmail(ctx, email, upd); err != nil {
		return "", fmt.Errorf("failed to mark user verified: %w", err)
	}
	s.clearFailures(ctx, email)

	signed, err := s.signer.Sign(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.record(ctx, model.EventVerifyOTP, user.ID, email, true, "")
	return signed, nil
}

// Login authenticates a verified user. A missing record, an unverified
// record, and a wrong password all surface as the same error so the endpoint
// cannot be used to enumerate accounts.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.record(ctx, model.EventLogin, "", email, false, "unknown user")
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.Verified {
		s.record(ctx, model.EventLogin, user.ID, email, false, "unverified user")
		return "", ErrInvalidCredentials
	}

	ok, err := s.hasher.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.record(ctx, model.EventLogin, user.ID, email, false, "wrong password")
		return "", ErrInvalidCredentials
	}

	signed, err := s.signer.Sign(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.record(ctx, model.EventLogin, user.ID, email, true, "")
	return signed, nil
}

// ForgotPassword issues a fresh reset OTP in the reset pair, independent of
// any outstanding registration OTP. Same delivery-failure semantics as
// Register: the stored OTP survives a failed send.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	if err := s.checkSendBudget(ctx, email); err != nil {
		return err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	otp, err := GenerateOTP(s.otpLength)
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.otpTTL).UTC()

	upd := store.UserUpdate{
		PasswordResetOTP:    &otp,
		PasswordResetExpiry: &expiry,
	}
	if err := s.store.UpdateByEmail(ctx, email, upd); err != nil {
		return fmt.Errorf("failed to store reset OTP: %w", err)
	}

	body := fmt.Sprintf("Your OTP for password reset is: %s", otp)
	if err := s.notifier.Send(ctx, email, "Password Reset OTP", body); err != nil {
		s.record(ctx, model.EventForgotPassword, user.ID, email, false, "notification failed")
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}

	s.record(ctx, model.EventForgotPassword, user.ID, email, true, "")
	return nil
}

// ResetPassword confirms the reset code, replaces the password hash, clears
// the reset pair, and issues a token. Verified status is left untouched.
func (s *AuthService) ResetPassword(ctx context.Context, email, otp, newPassword string) (string, error) {
	if email == "" || otp == "" || newPassword == "" {
		return "", fmt.Errorf("%w: email, OTP, and new password are required", ErrValidation)
	}

	if err := s.checkAttemptBudget(ctx, email); err != nil {
		return "", err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.otpMatches(user.PasswordResetOTP, user.PasswordResetExpiry, otp) {
		s.countFailure(ctx, email)
		s.record(ctx, model.EventResetPassword, user.ID, email, false, "invalid or expired OTP")
		return "", ErrInvalidOTP
	}

	passwordHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	upd := store.UserUpdate{
		PasswordHash:       &passwordHash,
		ClearPasswordReset: true,
	}
	if err := s.store.UpdateByEmail(ctx, email, upd); err != nil {
		return "", fmt.Errorf("failed to update password: %w", err)
	}
	s.clearFailures(ctx, email)

	signed, err := s.signer.Sign(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.record(ctx, model.EventResetPassword, user.ID, email, true, "")
	return signed, nil
}

// Logout is stateless: the caller discards its token and the handler clears
// the cookie. There is no server-side revocation, so a token that leaks after
// logout still authenticates until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, userID string) {
	s.record(ctx, model.EventLogout, userID, "", true, "")
}

// otpMatches applies the one-time-code check shared by verification and
// reset: a code must be outstanding, equal byte for byte, and not past its
// expiry. Expiry is strict greater-than — a check at exactly the expiry
// instant still passes.
func (s *AuthService) otpMatches(stored *string, expiry *time.Time, supplied string) bool {
	if stored == nil || expiry == nil {
		return false
	}
	if *stored != supplied {
		return false
	}
	return !s.now().After(*expiry)
}

func (s *AuthService) checkSendBudget(ctx context.Context, email string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.AllowSend(ctx, email)
	if err != nil {
		s.logger.Warn("OTP send limiter unavailable, allowing request",
			util.ErrorField(err),
			util.String("email_hash", util.HashEmail(email)),
		)
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: OTP delivery limit reached", ErrTooManyRequests)
	}
	return nil
}

func (s *AuthService) checkAttemptBudget(ctx context.Context, email string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.AllowAttempt(ctx, email)
	if err != nil {
		s.logger.Warn("OTP attempt limiter unavailable, allowing request",
			util.ErrorField(err),
			util.String("email_hash", util.HashEmail(email)),
		)
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: too many failed OTP attempts", ErrTooManyRequests)
	}
	return nil
}

func (s *AuthService) countFailure(ctx context.Context, email string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordFailedAttempt(ctx, email); err != nil {
		s.logger.Warn("failed to record OTP attempt", util.ErrorField(err))
	}
}

func (s *AuthService) clearFailures(ctx context.Context, email string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.ClearAttempts(ctx, email); err != nil {
		s.logger.Warn("failed to clear OTP attempts", util.ErrorField(err))
	}
}

func (s *AuthService) record(ctx context.Context, eventType, userID, email string, success bool, reason string) {
	if s.recorder == nil {
		return
	}

	event := &model.AuthEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		UserID:     userID,
		Success:    success,
		Reason:     reason,
		RemoteAddr: RemoteAddrFromContext(ctx),
		CreatedAt:  s.now().UTC(),
	}
	if email != "" {
		event.EmailHash = util.HashEmail(email)
	}

	s.recorder.Record(ctx, event)
}
