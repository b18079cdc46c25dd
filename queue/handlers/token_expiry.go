package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/queue"
)

// TokenExpiryHandler invalidates validation tokens whose expiry time has
// passed. One such job is scheduled per issued token, at the expiry time.
//
// The store's conditional update makes the handler idempotent: if the token
// was already consumed (or expired by an earlier attempt), the flip is a
// no-op and a consumed token is never resurrected.
type TokenExpiryHandler struct {
	dbToken db.DbToken
	logger  *slog.Logger
}

// NewTokenExpiryHandler creates a new TokenExpiryHandler
func NewTokenExpiryHandler(dbToken db.DbToken, logger *slog.Logger) *TokenExpiryHandler {
	return &TokenExpiryHandler{
		dbToken: dbToken,
		logger:  logger,
	}
}

// Handle implements the executor.JobHandler interface for token expiry jobs
func (h *TokenExpiryHandler) Handle(ctx context.Context, job db.Job) error {
	var payload queue.PayloadTokenExpiry
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse token expiry payload: %w", err)
	}

	if payload.Token == "" {
		return fmt.Errorf("%w: token", db.ErrMissingFields)
	}

	flipped, err := h.dbToken.InvalidateToken(payload.Token)
	if err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	if flipped {
		h.logger.Info("token expired", "job_id", job.ID)
	} else {
		// already consumed or expired, nothing to do
		h.logger.Debug("token already invalid at expiry", "job_id", job.ID)
	}
	return nil
}
