package core

import (
	"log/slog"

	"github.com/caasmo/identity/cache"
	"github.com/caasmo/identity/config"
	"github.com/caasmo/identity/db"
)

type Option func(*App)

// WithDbApp sets all database roles from a single implementation.
func WithDbApp(d db.DbApp) Option {
	return func(a *App) {
		a.dbAuth = d
		a.dbToken = d
		a.dbQueue = d
	}
}

// WithDbAuth sets the credential store implementation
func WithDbAuth(d db.DbAuth) Option {
	return func(a *App) {
		a.dbAuth = d
	}
}

// WithDbToken sets the token store implementation
func WithDbToken(d db.DbToken) Option {
	return func(a *App) {
		a.dbToken = d
	}
}

// WithDbQueue sets the job queue implementation
func WithDbQueue(d db.DbQueue) Option {
	return func(a *App) {
		a.dbQueue = d
	}
}

// WithCache sets the cache used by the rate limiter's denial fast path.
// Optional; without it every decision hits the token store.
func WithCache(c cache.Cache[string, bool]) Option {
	return func(a *App) {
		a.cache = c
	}
}

// WithMailer sets the email delivery implementation
func WithMailer(m EmailSender) Option {
	return func(a *App) {
		a.mailer = m
	}
}

// WithSmsSender sets the SMS delivery implementation
func WithSmsSender(s SmsSender) Option {
	return func(a *App) {
		a.smser = s
	}
}

// WithConfigProvider sets the application's configuration provider.
func WithConfigProvider(p *config.Provider) Option {
	return func(a *App) {
		a.configProvider = p
	}
}

// WithLogger sets the logger implementation
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}
