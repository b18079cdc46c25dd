package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/caasmo/identity/notify"
)

// Options configures the Notifier.
type Options struct {
	URL          string
	APIRateLimit rate.Limit
	APIBurst     int
	SendTimeout  time.Duration
}

type payload struct {
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// maxMessageLength bounds the message body sent to the webhook endpoint.
const maxMessageLength = 2000

// Notifier implements the notify.Notifier interface by POSTing JSON to a
// webhook endpoint. It is safe for concurrent use: its fields are either
// immutable after creation or concurrency-safe types.
type Notifier struct {
	opts           Options
	logger         *slog.Logger
	httpClient     *http.Client
	apiRateLimiter *rate.Limiter
}

// New creates a new Notifier.
func New(opts Options, logger *slog.Logger) (*Notifier, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("webhook: URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("webhook: logger is required")
	}

	if opts.APIRateLimit == 0 {
		opts.APIRateLimit = rate.Every(2 * time.Second)
	}
	if opts.APIBurst <= 0 {
		opts.APIBurst = 5
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}

	return &Notifier{
		opts:           opts,
		logger:         logger,
		apiRateLimiter: rate.NewLimiter(opts.APIRateLimit, opts.APIBurst),
		httpClient:     &http.Client{},
	}, nil
}

// Send implements the notify.Notifier interface. Sends are synchronous so
// the queue can retry on failure; callers that must not wait should publish
// through the queue instead of calling Send directly.
func (wn *Notifier) Send(ctx context.Context, n notify.Notification) error {
	if !wn.apiRateLimiter.Allow() {
		wn.logger.Warn("webhook: rate limit reached, dropping notification",
			"topic", n.Topic, "title", n.Title)
		return nil // dropping under rate limit is policy, not failure
	}

	message := n.Message
	if len(message) > maxMessageLength {
		message = message[:maxMessageLength-3] + "..."
	}

	jsonBody, err := json.Marshal(payload{
		Topic:   n.Topic,
		Title:   n.Title,
		Type:    n.Type.String(),
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, wn.opts.SendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, wn.opts.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: failed to send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: received status %d", resp.StatusCode)
	}

	wn.logger.Debug("webhook: notification sent", "topic", n.Topic, "status", resp.StatusCode)
	return nil
}
