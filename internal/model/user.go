package model

import "time"

// UserCredential is the credential record owned by the user store and mutated
// only by the auth service.
//
// The OTP pairs are set and cleared together: a code is never present without
// its expiry. Registration and password-reset codes live in independent pairs
// so the two flows cannot interfere. Once Verified flips to true it never
// reverts.
type UserCredential struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`

	PasswordHash string `json:"-"`

	Verified bool `json:"verified"`

	OTP       *string    `json:"-"`
	OTPExpiry *time.Time `json:"-"`

	PasswordResetOTP    *string    `json:"-"`
	PasswordResetExpiry *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPendingOTP reports whether a registration code is outstanding.
func (u *UserCredential) HasPendingOTP() bool {
	return u.OTP != nil && u.OTPExpiry != nil
}

// HasPendingReset reports whether a password-reset code is outstanding.
func (u *UserCredential) HasPendingReset() bool {
	return u.PasswordResetOTP != nil && u.PasswordResetExpiry != nil
}
