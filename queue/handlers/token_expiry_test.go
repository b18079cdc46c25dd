package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/db/mock"
	"github.com/caasmo/identity/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func expiryJob(t *testing.T, token string) db.Job {
	t.Helper()
	payload, err := json.Marshal(queue.PayloadTokenExpiry{Token: token})
	if err != nil {
		t.Fatal(err)
	}
	return db.Job{ID: 1, JobType: queue.JobTypeTokenExpiry, Payload: payload}
}

func TestTokenExpiryHandler_Handle(t *testing.T) {
	t.Run("invalidates valid token", func(t *testing.T) {
		var invalidated string
		mockDb := &mock.Db{
			InvalidateTokenFunc: func(token string) (bool, error) {
				invalidated = token
				return true, nil
			},
		}

		h := NewTokenExpiryHandler(mockDb, testLogger())
		if err := h.Handle(context.Background(), expiryJob(t, "123456")); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
		if invalidated != "123456" {
			t.Errorf("invalidated token = %q, want 123456", invalidated)
		}
	})

	t.Run("already consumed token is a no-op", func(t *testing.T) {
		mockDb := &mock.Db{
			InvalidateTokenFunc: func(token string) (bool, error) {
				return false, nil // someone consumed it first
			},
		}

		h := NewTokenExpiryHandler(mockDb, testLogger())
		if err := h.Handle(context.Background(), expiryJob(t, "123456")); err != nil {
			t.Errorf("Handle() error = %v, want nil for already-invalid token", err)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		h := NewTokenExpiryHandler(&mock.Db{}, testLogger())
		job := db.Job{ID: 1, Payload: json.RawMessage(`{`)}
		if err := h.Handle(context.Background(), job); err == nil {
			t.Error("Handle() should fail on malformed payload")
		}
	})

	t.Run("empty token", func(t *testing.T) {
		h := NewTokenExpiryHandler(&mock.Db{}, testLogger())
		if err := h.Handle(context.Background(), expiryJob(t, "")); err == nil {
			t.Error("Handle() should fail on empty token")
		}
	})
}
