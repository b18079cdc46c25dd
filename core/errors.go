package core

import "errors"

// Error taxonomy returned by the credential and token operations. Callers
// (a presentation layer, a CLI) classify with errors.Is and decide their own
// status mapping.
var (
	// ErrInvalidIdentity reports a malformed phone number or email address.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrTokenInvalid covers unknown, expired and already-consumed tokens.
	// Callers cannot distinguish the three cases; a consumed token and an
	// expired one look the same on purpose.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenOwnerMismatch reports a token presented by an identity other
	// than the one it was issued to.
	ErrTokenOwnerMismatch = errors.New("token owner mismatch")

	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// ErrAuthorizationFailed reports a password mismatch or a username that
	// does not own the presented token.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrPolicyViolation reports a new password below the configured
	// minimum length.
	ErrPolicyViolation = errors.New("password policy violation")

	ErrRateLimited = errors.New("rate limited")

	// ErrDeliveryFailed reports an undelivered reset code. Only the reset
	// flow surfaces delivery failure; registration OTP delivery reports its
	// outcome as a boolean instead.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrUnknown wraps unexpected downstream failures (store I/O, transport).
	ErrUnknown = errors.New("internal error")
)
