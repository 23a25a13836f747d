package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"campus-auth/internal/client"
	"campus-auth/internal/util"
)

const (
	sendCountPrefix = "otp_send:"
	attemptPrefix   = "otp_attempts:"
	lockPrefix      = "otp_lock:"
)

// OTPLimiterConfig carries the throttle knobs: how many codes may be sent per
// window, and how many failed guesses trip the temporary lock.
type OTPLimiterConfig struct {
	MaxSends      int
	SendWindow    time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
	LockDuration  time.Duration
}

// OTPLimiter throttles OTP issuance and verification per account. Keys are
// derived from the email hash so raw addresses never reach Redis.
type OTPLimiter struct {
	client *client.RedisClient
	cfg    OTPLimiterConfig
	logger *zap.Logger
}

func NewOTPLimiter(c *client.RedisClient, cfg OTPLimiterConfig, logger *zap.Logger) *OTPLimiter {
	if cfg.MaxSends <= 0 {
		cfg.MaxSends = 5
	}
	if cfg.SendWindow <= 0 {
		cfg.SendWindow = time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = 15 * time.Minute
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 15 * time.Minute
	}
	return &OTPLimiter{client: c, cfg: cfg, logger: logger}
}

// AllowSend reports whether another OTP may be emailed to this account. Each
// call that is allowed consumes one unit of the send budget.
func (l *OTPLimiter) AllowSend(ctx context.Context, email string) (bool, error) {
	key := sendCountPrefix + util.HashEmail(email)

	count, err := l.client.IncrWithExpire(ctx, key, l.cfg.SendWindow)
	if err != nil {
		return false, fmt.Errorf("failed to bump OTP send counter: %w", err)
	}
	if count > int64(l.cfg.MaxSends) {
		l.logger.Warn("OTP send budget exhausted",
			util.String("email_hash", util.HashEmail(email)),
			util.Int64("count", count))
		return false, nil
	}
	return true, nil
}

// AllowAttempt reports whether a verification attempt may proceed. Accounts
// with an active lock are refused until the lock expires.
func (l *OTPLimiter) AllowAttempt(ctx context.Context, email string) (bool, error) {
	locked, err := l.client.Exists(ctx, lockPrefix+util.HashEmail(email))
	if err != nil {
		return false, fmt.Errorf("failed to check OTP lock: %w", err)
	}
	return !locked, nil
}

// RecordFailedAttempt counts a wrong guess. Crossing the attempt threshold
// sets a temporary lock on the account.
func (l *OTPLimiter) RecordFailedAttempt(ctx context.Context, email string) error {
	hash := util.HashEmail(email)

	count, err := l.client.IncrWithExpire(ctx, attemptPrefix+hash, l.cfg.AttemptWindow)
	if err != nil {
		return fmt.Errorf("failed to bump OTP attempt counter: %w", err)
	}
	if count < int64(l.cfg.MaxAttempts) {
		return nil
	}

	if _, err := l.client.SetNX(ctx, lockPrefix+hash, "locked", l.cfg.LockDuration); err != nil {
		return fmt.Errorf("failed to set OTP lock: %w", err)
	}
	l.logger.Warn("account locked after repeated OTP failures",
		util.String("email_hash", hash),
		util.Int64("failures", count),
		util.Duration("lock_duration", l.cfg.LockDuration))
	return nil
}

// ClearAttempts wipes the failure counter and any lock after a successful
// verification.
func (l *OTPLimiter) ClearAttempts(ctx context.Context, email string) error {
	hash := util.HashEmail(email)
	if err := l.client.Del(ctx, attemptPrefix+hash, lockPrefix+hash); err != nil {
		return fmt.Errorf("failed to clear OTP attempt state: %w", err)
	}
	return nil
}
