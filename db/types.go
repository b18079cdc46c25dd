package db

import (
	"encoding/json"
	"time"
)

// User represents a user from the database.
// Timestamps (Created and Updated) use RFC3339 format in UTC timezone.
// Example: "2024-03-07T15:04:05Z"
type User struct {
	ID       string
	Username string
	Email    string
	// Phone is optional; it is the canonical identity when the auth method is "phone".
	Phone string
	// Password holds the bcrypt hash. Never the plaintext.
	Password string
	Name     string
	Gender   string
	Roles    []Role
	Created  time.Time
	Updated  time.Time
}

// Role is a named capability grant. Admin marks roles that carry
// administrative privileges.
type Role struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// IsAdmin reports whether any of the user's roles is an admin role.
func (u *User) IsAdmin() bool {
	for _, r := range u.Roles {
		if r.Admin {
			return true
		}
	}
	return false
}

// ValidationToken is a one-time passcode record.
//
// A token is usable only while Valid is true and the wall clock is before
// Expires. The Valid flag transitions exactly once, from true to false, at
// consumption or at expiry, whichever comes first. Rows are kept for audit
// and never deleted here.
type ValidationToken struct {
	ID int64
	// Token is the OTP value presented by the caller.
	Token string
	// UserID is set when the token is bound to an existing user (password reset).
	UserID string
	// Identity is the bare contact string (email or phone) for tokens that
	// precede user existence (registration).
	Identity string
	Valid    bool
	Expires  time.Time
	// Reason classifies why the token was issued, overwritten with a terminal
	// annotation at consumption.
	Reason  string
	Created time.Time
}

// Job represents a job in the processing queue.
type Job struct {
	ID           int64           `json:"id"`
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	LockedAt     time.Time       `json:"locked_at,omitempty"`
	CompletedAt  time.Time       `json:"completed_at,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
}
