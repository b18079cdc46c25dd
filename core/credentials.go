package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caasmo/identity/config"
	"github.com/caasmo/identity/crypto"
	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/queue"
)

// DefaultRoleName is assigned to users created by registration or social
// reconciliation.
const DefaultRoleName = "unrestricted"

// adminNotifyBriefMax caps the message body of the registration broadcast.
const adminNotifyBriefMax = 100

// RequestRegistrationOtp issues a registration OTP for a not-yet-registered
// contact identity and delivers it over the configured channel (SMS for
// phone auth, email otherwise). The returned bool is the delivery outcome;
// a failed delivery does not void the token, the rate limiter caps retries.
func (a *App) RequestRegistrationOtp(ctx context.Context, identity string) (bool, error) {
	cfg := a.Config()

	if err := ValidateIdentity(cfg.AuthMethod, identity); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	existing, err := a.getUserByIdentity(cfg.AuthMethod, identity)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, ErrUserAlreadyExists
	}

	allowed, err := a.limiter.CanIssueForIdentity(identity,
		cfg.RateLimits.RegistrationOtpWindow.Duration, cfg.RateLimits.RegistrationOtpMax)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, ErrRateLimited
	}

	token, err := a.tokens.Issue(TokenOwner{Identity: identity}, ReasonRegistration, cfg.TokenValidity.Duration)
	if err != nil {
		return false, err
	}

	if err := a.deliverOtp(ctx, cfg, identity, token.Token); err != nil {
		a.logger.Error("otp delivery failed", "identity", identity, "err", err)
		return false, nil
	}
	return true, nil
}

// CompleteRegistration consumes a registration token issued to the
// candidate's canonical identity and persists the candidate as a new user.
// The existence check runs before consumption so an already-registered
// identity never burns its token. A registration race on the same identity
// is resolved by the store's uniqueness constraints.
func (a *App) CompleteRegistration(ctx context.Context, tokenValue string, candidate db.User) (*db.User, error) {
	cfg := a.Config()

	identity := canonicalIdentity(cfg.AuthMethod, &candidate)
	if identity == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidIdentity, cfg.AuthMethod)
	}

	existing, err := a.getUserByIdentity(cfg.AuthMethod, identity)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	if _, err := a.tokens.ValidateAndConsume(tokenValue, TokenOwner{Identity: identity}, ReasonRegistrationConfirmed); err != nil {
		return nil, err
	}

	candidate.ID = uuid.NewString()
	if candidate.Password != "" {
		hash, err := crypto.GenerateHash(candidate.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to hash password: %v", ErrUnknown, err)
		}
		candidate.Password = hash
	}
	if len(candidate.Roles) == 0 {
		candidate.Roles = []db.Role{{Name: DefaultRoleName}}
	}

	user, err := a.dbAuth.CreateUser(candidate)
	if err != nil {
		if errors.Is(err, db.ErrConstraintUnique) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("%w: failed to create user: %v", ErrUnknown, err)
	}

	a.notifyAdminsOfRegistration(user)

	a.logger.Info("registration completed", "user", user.ID)
	return user, nil
}

// ChangePassword is the already-authenticated path: no token, the current
// password authorizes the change.
func (a *App) ChangePassword(ctx context.Context, userId, currentPassword, newPassword string) (*db.User, error) {
	user, err := a.getUserById(userId)
	if err != nil {
		return nil, err
	}

	if !crypto.CheckPassword(currentPassword, user.Password) {
		return nil, ErrAuthorizationFailed
	}

	if err := validatePasswordPolicy(newPassword, a.Config().PasswordMinLength); err != nil {
		return nil, err
	}

	hash, err := crypto.GenerateHash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to hash password: %v", ErrUnknown, err)
	}
	if err := a.dbAuth.UpdatePassword(user.ID, hash); err != nil {
		return nil, fmt.Errorf("%w: failed to store password: %v", ErrUnknown, err)
	}

	user.Password = hash
	a.logger.Info("password changed", "user", user.ID)
	return user, nil
}

// RequestPasswordReset issues a reset OTP bound to the user and delivers
// it. Unlike registration, failed delivery is surfaced: an undelivered
// reset code is useless to the caller. The token stays persisted either
// way, for audit and for the rate limiter's window count.
func (a *App) RequestPasswordReset(ctx context.Context, username string) error {
	cfg := a.Config()

	user, err := a.dbAuth.GetUserByUsername(username)
	if err != nil {
		return fmt.Errorf("%w: user lookup failed: %v", ErrUnknown, err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	allowed, err := a.limiter.CanIssueForUser(user.ID,
		cfg.RateLimits.PasswordResetWindow.Duration, cfg.RateLimits.PasswordResetMax)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrRateLimited
	}

	token, err := a.tokens.Issue(TokenOwner{UserID: user.ID}, ReasonResetInitiated, cfg.TokenValidity.Duration)
	if err != nil {
		return err
	}

	message := otpMessage(cfg.ApplicationName, token.Token)
	switch {
	case user.Phone != "" && a.smser != nil:
		err = a.smser.SendSms(ctx, user.Phone, message)
	case user.Email != "" && a.mailer != nil:
		err = a.mailer.SendEmail(ctx, user.Email, cfg.ApplicationName+" password reset", message)
	default:
		err = fmt.Errorf("no delivery channel for user %s", user.ID)
	}
	if err != nil {
		a.logger.Error("reset code delivery failed", "user", user.ID, "err", err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	a.logger.Info("password reset requested", "user", user.ID)
	return nil
}

// ResetPassword consumes a reset token and stores the new password in one
// transaction: either both commit or neither. The supplied username must
// match the token's bound user, a guard against token and identity
// confusion.
func (a *App) ResetPassword(ctx context.Context, username, tokenValue, newPassword string) (*db.User, error) {
	if err := validatePasswordPolicy(newPassword, a.Config().PasswordMinLength); err != nil {
		return nil, err
	}

	token, err := a.tokens.GetToken(tokenValue)
	if err != nil {
		return nil, err
	}
	if token.UserID == "" {
		// a pre-registration token cannot reset anyone's password
		return nil, ErrTokenInvalid
	}

	user, err := a.getUserById(token.UserID)
	if err != nil {
		return nil, err
	}
	if user.Username != username {
		return nil, ErrAuthorizationFailed
	}

	hash, err := crypto.GenerateHash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to hash password: %v", ErrUnknown, err)
	}

	if _, err := a.tokens.ConsumeWithPassword(tokenValue, TokenOwner{UserID: user.ID}, ReasonResetCompleted, user.ID, hash); err != nil {
		return nil, err
	}

	user.Password = hash
	a.logger.Info("password reset completed", "user", user.ID)
	return user, nil
}

// notifyAdminsOfRegistration enqueues the admin broadcast for a new
// registration. Fire-and-forget: a queue failure is logged, never surfaced,
// registration success does not depend on it.
func (a *App) notifyAdminsOfRegistration(user *db.User) {
	cfg := a.Config()

	message := "Username: " + user.Username + ", On: " + time.Now().Format("2006-01-02 15:04")
	if runes := []rune(message); len(runes) > adminNotifyBriefMax {
		message = string(runes[:adminNotifyBriefMax])
	}

	payload, err := json.Marshal(queue.PayloadAdminNotify{
		Topic:   cfg.Notify.AdminTopic,
		Title:   "New Registration -:- " + user.Name,
		Message: message,
	})
	if err != nil {
		a.logger.Error("failed to marshal admin notification", "err", err)
		return
	}

	if err := a.dbQueue.InsertJob(db.Job{JobType: queue.JobTypeAdminNotify, Payload: payload}); err != nil {
		a.logger.Error("failed to enqueue admin notification", "err", err)
	}
}

func (a *App) deliverOtp(ctx context.Context, cfg *config.Config, identity, otp string) error {
	message := otpMessage(cfg.ApplicationName, otp)
	if cfg.AuthMethod == config.AuthMethodPhone {
		if a.smser == nil {
			return fmt.Errorf("no sms sender configured")
		}
		return a.smser.SendSms(ctx, identity, message)
	}
	if a.mailer == nil {
		return fmt.Errorf("no mailer configured")
	}
	return a.mailer.SendEmail(ctx, identity, cfg.ApplicationName+" verification", message)
}

func otpMessage(applicationName, otp string) string {
	return fmt.Sprintf("Your %s token is: %s", applicationName, otp)
}

func canonicalIdentity(authMethod string, user *db.User) string {
	if authMethod == config.AuthMethodPhone {
		return user.Phone
	}
	return user.Email
}

func (a *App) getUserByIdentity(authMethod, identity string) (*db.User, error) {
	var user *db.User
	var err error
	if authMethod == config.AuthMethodPhone {
		user, err = a.dbAuth.GetUserByPhone(identity)
	} else {
		user, err = a.dbAuth.GetUserByEmail(identity)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: user lookup failed: %v", ErrUnknown, err)
	}
	return user, nil
}

func (a *App) getUserById(userId string) (*db.User, error) {
	user, err := a.dbAuth.GetUserById(userId)
	if err != nil {
		return nil, fmt.Errorf("%w: user lookup failed: %v", ErrUnknown, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
