package model

import "time"

// Auth event types emitted by the credential lifecycle.
const (
	EventRegister       = "register"
	EventVerifyOTP      = "verify_otp"
	EventLogin          = "login"
	EventForgotPassword = "forgot_password"
	EventResetPassword  = "reset_password"
	EventLogout         = "logout"
)

// AuthEvent is the security-trail record written to kafka, clickhouse, and
// elasticsearch. The email is carried only as a SHA-256 hash.
type AuthEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id,omitempty"`
	EmailHash  string    `json:"email_hash"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
