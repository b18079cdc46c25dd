package db

import (
	"errors"
	"time"
)

// TimeFormat is the canonical storage format for timestamps: RFC3339 in UTC.
const TimeFormat = time.RFC3339

var (
	// ErrUserNotFound is returned by lookups that require an existing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenNotFound is returned when no validation token matches the value.
	ErrTokenNotFound = errors.New("token not found")
	// ErrConstraintUnique is returned when an insert violates a unique
	// constraint (duplicate email, phone, username or job dedup key).
	ErrConstraintUnique = errors.New("unique constraint violation")
	// ErrMissingFields is returned when a record lacks required fields.
	ErrMissingFields = errors.New("missing required fields")
)

// TimeParse parses a stored timestamp. Empty strings map to the zero time.
func TimeParse(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimeFormat, s)
}

// DbAuth is the credential store: it owns user records.
type DbAuth interface {
	GetUserById(id string) (*User, error)
	GetUserByUsername(username string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByPhone(phone string) (*User, error)
	// CreateUser inserts a new user and returns the persisted form.
	// Returns ErrConstraintUnique if username, email or phone already exist.
	CreateUser(user User) (*User, error)
	UpdatePassword(userId string, newPassword string) error
	UpdateRoles(userId string, roles []Role) error
	ListUsersByRole(role string, limit, offset int) ([]*User, error)
}

// DbToken is the token store: it owns validation token records.
//
// InvalidateToken and ConsumeToken are the only writes to the Valid flag and
// both are conditional on Valid still being true, so concurrent expiry and
// consumption attempts linearize: exactly one caller observes flipped=true.
type DbToken interface {
	GetTokenByValue(token string) (*ValidationToken, error)
	InsertToken(t ValidationToken) (*ValidationToken, error)
	// ConsumeToken flips Valid false and records a terminal reason, only if
	// the token is still valid. Reports whether this call did the flip.
	ConsumeToken(token string, reason string) (bool, error)
	// InvalidateToken flips Valid false if still true, keeping the original
	// reason. Used by the background expiry task.
	InvalidateToken(token string) (bool, error)
	// ConsumeTokenSetPassword atomically consumes the token and stores the
	// new password hash for the user. Either both commit or neither does.
	ConsumeTokenSetPassword(token, reason, userId, newPassword string) (bool, error)
	CountTokensByIdentitySince(identity string, since time.Time) (int, error)
	CountTokensByUserSince(userId string, since time.Time) (int, error)
}

// DbQueue is the job queue store.
type DbQueue interface {
	InsertJob(job Job) error
	// Claim atomically marks up to limit due jobs as processing and returns them.
	Claim(limit int) ([]*Job, error)
	MarkCompleted(jobID int64) error
	MarkFailed(jobID int64, errMsg string) error
}

// DbApp combines the required DB roles for the application. The concrete
// implementations (*zombiezen.Db, *crawshaw.Db) must satisfy this interface.
type DbApp interface {
	DbAuth
	DbToken
	DbQueue
	Close()
}
