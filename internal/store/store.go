package store

import (
	"context"
	"errors"
	"time"

	"campus-auth/internal/model"
)

// ErrNotFound is returned when no credential record exists for an email.
var ErrNotFound = errors.New("credential record not found")

// UserUpdate is a partial update applied by email. Nil fields are left
// untouched. The Clear flags drop an OTP pair in the same write that performs
// the rest of the update, keeping code and expiry in lockstep.
type UserUpdate struct {
	Username     *string
	PasswordHash *string
	Verified     *bool

	OTP       *string
	OTPExpiry *time.Time
	ClearOTP  bool

	PasswordResetOTP    *string
	PasswordResetExpiry *time.Time
	ClearPasswordReset  bool
}

// UserStore persists credential records. Emails are compared exactly as
// stored; the store performs no normalization. Conflicting writes for the same
// email are serialized by the implementation (last writer wins), which is what
// lets a newer OTP supersede an older one.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.UserCredential, error)
	Create(ctx context.Context, user *model.UserCredential) error
	UpdateByEmail(ctx context.Context, email string, upd UserUpdate) error
}

// Apply copies the update onto a credential record in place.
func (u UserUpdate) Apply(rec *model.UserCredential) {
	if u.Username != nil {
		rec.Username = *u.Username
	}
	if u.PasswordHash != nil {
		rec.PasswordHash = *u.PasswordHash
	}
	if u.Verified != nil {
		rec.Verified = *u.Verified
	}

	if u.ClearOTP {
		rec.OTP = nil
		rec.OTPExpiry = nil
	} else {
		if u.OTP != nil {
			rec.OTP = u.OTP
		}
		if u.OTPExpiry != nil {
			rec.OTPExpiry = u.OTPExpiry
		}
	}

	if u.ClearPasswordReset {
		rec.PasswordResetOTP = nil
		rec.PasswordResetExpiry = nil
	} else {
		if u.PasswordResetOTP != nil {
			rec.PasswordResetOTP = u.PasswordResetOTP
		}
		if u.PasswordResetExpiry != nil {
			rec.PasswordResetExpiry = u.PasswordResetExpiry
		}
	}

	rec.UpdatedAt = time.Now().UTC()
}
