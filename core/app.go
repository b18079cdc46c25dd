package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/caasmo/identity/cache"
	"github.com/caasmo/identity/config"
	"github.com/caasmo/identity/crypto"
	"github.com/caasmo/identity/db"
)

// EmailSender delivers a plain-text message to an email address.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SmsSender delivers a text message to a phone number.
type SmsSender interface {
	SendSms(ctx context.Context, to, message string) error
}

// App is the application wide context: the credential manager and its
// collaborators. db connections and permanent structs go here; all
// credential operations have App as receiver.
type App struct {
	dbAuth         db.DbAuth
	dbToken        db.DbToken
	dbQueue        db.DbQueue
	tokens         *TokenLifecycle
	limiter        *RateLimiter
	mailer         EmailSender
	smser          SmsSender
	cache          cache.Cache[string, bool]
	configProvider *config.Provider
	logger         *slog.Logger
}

func NewApp(opts ...Option) (*App, error) {
	a := &App{}
	for _, opt := range opts {
		opt(a)
	}

	if a.dbAuth == nil || a.dbToken == nil || a.dbQueue == nil {
		return nil, fmt.Errorf("database is required but was not provided (use WithDbApp)")
	}
	if a.configProvider == nil {
		return nil, fmt.Errorf("config provider is required but was not provided (use WithConfigProvider)")
	}
	if a.logger == nil {
		return nil, fmt.Errorf("logger is required but was not provided (use WithLogger)")
	}

	a.tokens = NewTokenLifecycle(a.dbToken, a.dbQueue, a.logger)
	a.limiter = NewRateLimiter(a.dbToken, a.cache, a.logger)

	return a, nil
}

// Config returns the current config snapshot.
func (a *App) Config() *config.Config {
	return a.configProvider.Get()
}

func (a *App) Logger() *slog.Logger {
	return a.logger
}

func (a *App) DbAuth() db.DbAuth {
	return a.dbAuth
}

func (a *App) DbToken() db.DbToken {
	return a.dbToken
}

func (a *App) DbQueue() db.DbQueue {
	return a.dbQueue
}

// Tokens exposes the token lifecycle manager, the only writer of token
// state.
func (a *App) Tokens() *TokenLifecycle {
	return a.tokens
}

// NewAuthToken creates a session JWT for an authenticated user and returns
// it with its expiry. The presentation layer attaches it to responses after
// a successful registration or reset.
func (a *App) NewAuthToken(user *db.User) (string, time.Time, error) {
	cfg := a.Config()
	token, expires, err := crypto.NewAuthToken(user.ID, []byte(cfg.Jwt.AuthSecret), cfg.Jwt.AuthTokenDuration.Duration)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: failed to sign auth token: %v", ErrUnknown, err)
	}
	return token, expires, nil
}
