package queue

import "time"

// Job types
const (
	// JobTypeTokenExpiry is the deferred expiry task scheduled once per
	// issued validation token, at the token's expiry time.
	JobTypeTokenExpiry = "job_type_token_expiry"
	// JobTypeAdminNotify is the fire-and-forget admin broadcast after a
	// registration completes.
	JobTypeAdminNotify = "job_type_admin_notify"
)

// Job statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// PayloadTokenExpiry identifies the token the expiry task should invalidate.
type PayloadTokenExpiry struct {
	Token string `json:"token"`
}

// PayloadAdminNotify carries the admin broadcast content.
type PayloadAdminNotify struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Topic   string `json:"topic"`
}

// CoolDownBucket calculates which time bucket t falls into for the given
// duration period: floor(t.Unix() / duration in seconds).
//
// Requests in the same bucket map to the same number, so the bucket can be
// embedded in a unique key (job payload, cache key) to allow at most one
// action per window. The bucket number increases monotonically over time.
//
// Panics if duration is zero or negative to prevent undefined behavior.
func CoolDownBucket(duration time.Duration, t time.Time) int {
	if duration <= 0 {
		panic("duration must be positive")
	}
	return int(t.Unix() / int64(duration.Seconds()))
}
