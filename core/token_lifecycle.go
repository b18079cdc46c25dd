package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caasmo/identity/crypto"
	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/queue"
)

// Reason codes annotating why a token was issued or consumed. Stored on the
// token record for audit, never interpreted by the consumption logic.
const (
	ReasonRegistration          = "registration"
	ReasonRegistrationConfirmed = "registration confirmed"
	ReasonOtpConfirmation       = "otp-confirmation"
	ReasonResetInitiated        = "password-reset-initiated"
	ReasonResetCompleted        = "password-reset-completed"
)

// TokenOwner identifies who a token is bound to: a stored user (reset flow)
// or a bare contact identity that precedes user existence (registration
// flow). Exactly one field is set.
type TokenOwner struct {
	UserID   string
	Identity string
}

// TokenLifecycle owns every validation-token state transition. Tokens move
// one way, valid to invalid, flipped either by consumption or by the
// deferred expiry job, whichever lands first. Nothing outside this type
// writes token state, with the single exception of the expiry job handler
// which shares the same conditional store update.
type TokenLifecycle struct {
	dbToken db.DbToken
	dbQueue db.DbQueue
	logger  *slog.Logger
}

func NewTokenLifecycle(dbToken db.DbToken, dbQueue db.DbQueue, logger *slog.Logger) *TokenLifecycle {
	return &TokenLifecycle{
		dbToken: dbToken,
		dbQueue: dbQueue,
		logger:  logger,
	}
}

// otpInsertAttempts bounds the regeneration loop when a fresh OTP collides
// with a retained historical one.
const otpInsertAttempts = 5

// Issue creates a numeric OTP token bound to owner, persists it and
// schedules a deferred expiry job to fire at the expiry time. The job is
// idempotent: if the token was consumed first, the job is a no-op. Rate
// limiting is the caller's concern; Issue assumes permission was granted.
func (tl *TokenLifecycle) Issue(owner TokenOwner, reason string, validity time.Duration) (*db.ValidationToken, error) {
	now := time.Now()
	token := db.ValidationToken{
		UserID:   owner.UserID,
		Identity: owner.Identity,
		Valid:    true,
		Expires:  now.Add(validity),
		Reason:   reason,
		Created:  now,
	}

	// token rows are retained forever and the value is unique, so a
	// six-digit OTP will eventually collide with an old row; regenerate
	// instead of failing the issuance
	var persisted *db.ValidationToken
	var err error
	for attempt := 1; ; attempt++ {
		token.Token = crypto.GenerateOtp()
		persisted, err = tl.dbToken.InsertToken(token)
		if err == nil {
			break
		}
		if !errors.Is(err, db.ErrConstraintUnique) || attempt == otpInsertAttempts {
			return nil, fmt.Errorf("%w: failed to persist token: %v", ErrUnknown, err)
		}
	}

	payload, err := json.Marshal(queue.PayloadTokenExpiry{Token: persisted.Token})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal expiry payload: %v", ErrUnknown, err)
	}

	// the job fires at or after the expiry time; consumption always
	// re-checks the wall clock so a late job cannot extend validity
	err = tl.dbQueue.InsertJob(db.Job{
		JobType:      queue.JobTypeTokenExpiry,
		Payload:      payload,
		ScheduledFor: persisted.Expires,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to schedule expiry: %v", ErrUnknown, err)
	}

	tl.logger.Info("token issued", "reason", reason, "expires", persisted.Expires)
	return persisted, nil
}

// ValidateAndConsume flips a valid, unexpired token to invalid and annotates
// it with the terminal reason. The flip is a conditional store update, so a
// concurrent consumption or expiry job wins at most once; the loser observes
// ErrTokenInvalid. On success the returned record reflects the consumed
// state, kept for audit linkage.
func (tl *TokenLifecycle) ValidateAndConsume(tokenValue string, expected TokenOwner, terminalReason string) (*db.ValidationToken, error) {
	token, err := tl.checkToken(tokenValue, expected)
	if err != nil {
		return nil, err
	}

	flipped, err := tl.dbToken.ConsumeToken(tokenValue, terminalReason)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to consume token: %v", ErrUnknown, err)
	}
	if !flipped {
		// lost the race against the expiry job or another consumer
		return nil, ErrTokenInvalid
	}

	token.Valid = false
	token.Reason = terminalReason
	return token, nil
}

// ConsumeWithPassword is ValidateAndConsume fused with a password update in
// one store transaction. The reset flow needs both to commit or neither.
func (tl *TokenLifecycle) ConsumeWithPassword(tokenValue string, expected TokenOwner, terminalReason, userId, passwordHash string) (*db.ValidationToken, error) {
	token, err := tl.checkToken(tokenValue, expected)
	if err != nil {
		return nil, err
	}

	flipped, err := tl.dbToken.ConsumeTokenSetPassword(tokenValue, terminalReason, userId, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to consume token: %v", ErrUnknown, err)
	}
	if !flipped {
		return nil, ErrTokenInvalid
	}

	token.Valid = false
	token.Reason = terminalReason
	return token, nil
}

// IsTokenValid is a read-only check of the validity flag and the wall
// clock. Store failures read as invalid.
func (tl *TokenLifecycle) IsTokenValid(tokenValue string) bool {
	token, err := tl.dbToken.GetTokenByValue(tokenValue)
	if err != nil {
		tl.logger.Error("token lookup failed", "err", err)
		return false
	}
	if token == nil {
		return false
	}
	return token.Valid && time.Now().Before(token.Expires)
}

// GetToken returns the token record without touching its state. Used by
// flows that need the bound user before deciding how to consume.
func (tl *TokenLifecycle) GetToken(tokenValue string) (*db.ValidationToken, error) {
	token, err := tl.dbToken.GetTokenByValue(tokenValue)
	if err != nil {
		return nil, fmt.Errorf("%w: token lookup failed: %v", ErrUnknown, err)
	}
	if token == nil {
		return nil, ErrTokenInvalid
	}
	return token, nil
}

// checkToken performs the read-side validation shared by the consume
// variants: existence, validity flag, expiry, owner binding.
func (tl *TokenLifecycle) checkToken(tokenValue string, expected TokenOwner) (*db.ValidationToken, error) {
	token, err := tl.GetToken(tokenValue)
	if err != nil {
		return nil, err
	}
	if !token.Valid || !time.Now().Before(token.Expires) {
		return nil, ErrTokenInvalid
	}
	if !ownerMatches(token, expected) {
		return nil, ErrTokenOwnerMismatch
	}
	return token, nil
}

// ownerMatches compares the token's binding against the expected owner.
// A user-bound token matches on user id; a pre-registration token matches
// on the raw contact identity.
func ownerMatches(token *db.ValidationToken, expected TokenOwner) bool {
	if token.UserID != "" {
		return token.UserID == expected.UserID
	}
	return token.Identity == expected.Identity
}
