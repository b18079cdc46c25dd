package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caasmo/identity/cache"
	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/queue"
)

// RateLimiter decides whether a new token may be issued for a scoping key,
// based on the token history in the trailing window. It never mutates
// state: the issued tokens themselves are the counter.
//
// An optional cache remembers denials for the remainder of their window
// bucket so repeated probes from a throttled caller skip the store.
type RateLimiter struct {
	dbToken db.DbToken
	cache   cache.Cache[string, bool]
	logger  *slog.Logger
}

func NewRateLimiter(dbToken db.DbToken, c cache.Cache[string, bool], logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		dbToken: dbToken,
		cache:   c,
		logger:  logger,
	}
}

// CanIssueForIdentity reports whether a registration OTP may be issued for
// a bare contact identity.
func (rl *RateLimiter) CanIssueForIdentity(identity string, window time.Duration, max int) (bool, error) {
	return rl.canIssue("identity:"+identity, window, max, func(since time.Time) (int, error) {
		return rl.dbToken.CountTokensByIdentitySince(identity, since)
	})
}

// CanIssueForUser reports whether a reset token may be issued for a stored
// user.
func (rl *RateLimiter) CanIssueForUser(userId string, window time.Duration, max int) (bool, error) {
	return rl.canIssue("user:"+userId, window, max, func(since time.Time) (int, error) {
		return rl.dbToken.CountTokensByUserSince(userId, since)
	})
}

func (rl *RateLimiter) canIssue(key string, window time.Duration, max int, count func(since time.Time) (int, error)) (bool, error) {
	now := time.Now()

	denialKey := fmt.Sprintf("%s:%d", key, queue.CoolDownBucket(window, now))
	if rl.cache != nil {
		if _, denied := rl.cache.Get(denialKey); denied {
			return false, nil
		}
	}

	issued, err := count(now.Add(-window))
	if err != nil {
		return false, fmt.Errorf("%w: token history lookup failed: %v", ErrUnknown, err)
	}

	if issued >= max {
		if rl.cache != nil {
			rl.cache.SetWithTTL(denialKey, true, 1, window)
		}
		rl.logger.Info("token issuance throttled", "key", key, "issued", issued, "max", max)
		return false, nil
	}
	return true, nil
}
