package identity

import (
	"log/slog"
	"os"

	"github.com/caasmo/identity/cache/ristretto"
	"github.com/caasmo/identity/core"
	"github.com/caasmo/identity/db/crawshaw"
	"github.com/caasmo/identity/db/zombiezen"
	phuslog "github.com/phuslu/log"
)

// WithDBZombiezen opens (or creates) the SQLite database at dbPath with the
// zombiezen driver, the default choice.
func WithDBZombiezen(dbPath string) core.Option {
	db, err := zombiezen.New(dbPath)
	if err != nil {
		slog.Error("failed to open zombiezen database", "path", dbPath, "err", err)
		os.Exit(1)
	}
	return core.WithDbApp(db)
}

// WithDBCrawshaw opens the SQLite database with the crawshaw driver, for
// applications already holding a crawshaw pool.
func WithDBCrawshaw(dbPath string) core.Option {
	db, err := crawshaw.New(dbPath)
	if err != nil {
		slog.Error("failed to open crawshaw database", "path", dbPath, "err", err)
		os.Exit(1)
	}
	return core.WithDbApp(db)
}

// WithCacheRistretto enables the rate limiter's denial cache. level is one
// of the ristretto sizing presets ("small", "medium", "large",
// "very-large").
func WithCacheRistretto(level string) core.Option {
	c, err := ristretto.New[bool](level)
	if err != nil {
		slog.Error("failed to create ristretto cache", "level", level, "err", err)
		os.Exit(1)
	}
	return core.WithCache(c)
}

// DefaultLoggerOptions provides default settings for slog handlers.
var DefaultLoggerOptions = &slog.HandlerOptions{
	Level: slog.LevelInfo,
}

// WithPhusLogger configures slog with phuslu/log's JSON handler.
// Uses DefaultLoggerOptions if opts is nil.
func WithPhusLogger(opts *slog.HandlerOptions) core.Option {
	if opts == nil {
		opts = DefaultLoggerOptions
	}
	logger := slog.New(phuslog.SlogNewJSONHandler(os.Stderr, opts))
	return core.WithLogger(logger)
}

// WithTextLogger configures slog with the standard library's text handler.
func WithTextLogger(opts *slog.HandlerOptions) core.Option {
	if opts == nil {
		opts = DefaultLoggerOptions
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	return core.WithLogger(logger)
}
