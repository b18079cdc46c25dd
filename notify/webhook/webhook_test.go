package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/caasmo/identity/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{}, testLogger()); err == nil {
		t.Error("New() without URL should fail")
	}
	if _, err := New(Options{URL: "http://example.com"}, nil); err == nil {
		t.Error("New() without logger should fail")
	}
}

func TestSend(t *testing.T) {
	var received payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wn, err := New(Options{URL: srv.URL}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = wn.Send(context.Background(), notify.Notification{
		Type:    notify.AdminNotification,
		Topic:   "adminnotifications",
		Title:   "New Registration -:- alice",
		Message: "Username: alice",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if received.Topic != "adminnotifications" {
		t.Errorf("topic = %q, want adminnotifications", received.Topic)
	}
	if received.Type != "Admin" {
		t.Errorf("type = %q, want Admin", received.Type)
	}
}

func TestSendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wn, err := New(Options{URL: srv.URL}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := wn.Send(context.Background(), notify.Notification{Topic: "t"}); err == nil {
		t.Error("Send() should fail on 5xx response")
	}
}

func TestSendRateLimited(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	wn, err := New(Options{
		URL:          srv.URL,
		APIRateLimit: rate.Every(time.Hour),
		APIBurst:     1,
	}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := wn.Send(context.Background(), notify.Notification{Topic: "t"}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("server calls = %d, want 1 (rest dropped by rate limit)", calls)
	}
}
