package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caasmo/identity/config"
)

// sendTimeout bounds a single gateway call.
const sendTimeout = 10 * time.Second

// Sender delivers text messages through an HTTP gateway that accepts a
// JSON POST. It is the SMS half of the notification gateway.
type Sender struct {
	configProvider *config.Provider
	logger         *slog.Logger
	httpClient     *http.Client
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// New creates a new Sender instance
func New(provider *config.Provider, logger *slog.Logger) (*Sender, error) {
	if provider.Get().Sms.URL == "" {
		return nil, fmt.Errorf("sms: gateway url is required")
	}
	return &Sender{
		configProvider: provider,
		logger:         logger,
		httpClient:     &http.Client{},
	}, nil
}

// SendSms delivers a text message to the destination number. The error
// reports delivery failure; callers decide whether that failure is
// surfaced or only logged.
func (s *Sender) SendSms(ctx context.Context, to, message string) error {
	cfg := s.configProvider.Get().Sms

	jsonBody, err := json.Marshal(sendRequest{
		To:      to,
		From:    cfg.From,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("sms: failed to marshal request: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, cfg.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("sms: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.ApiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: failed to send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms: gateway returned status %d", resp.StatusCode)
	}

	s.logger.Info("sms sent", "to", to)
	return nil
}
