package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/notify"
	"github.com/caasmo/identity/queue"
)

// AdminNotifyHandler fans out admin broadcast notifications. The broadcast
// is fire-and-forget from the caller's perspective: it runs here, after the
// triggering operation already returned.
type AdminNotifyHandler struct {
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewAdminNotifyHandler creates a new AdminNotifyHandler
func NewAdminNotifyHandler(notifier notify.Notifier, logger *slog.Logger) *AdminNotifyHandler {
	return &AdminNotifyHandler{
		notifier: notifier,
		logger:   logger,
	}
}

// Handle implements the executor.JobHandler interface for admin broadcasts
func (h *AdminNotifyHandler) Handle(ctx context.Context, job db.Job) error {
	var payload queue.PayloadAdminNotify
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse admin notify payload: %w", err)
	}

	n := notify.Notification{
		Type:    notify.AdminNotification,
		Topic:   payload.Topic,
		Title:   payload.Title,
		Message: payload.Message,
	}
	if err := h.notifier.Send(ctx, n); err != nil {
		return fmt.Errorf("failed to send admin notification: %w", err)
	}

	h.logger.Info("admin notification sent", "topic", payload.Topic, "title", payload.Title)
	return nil
}
