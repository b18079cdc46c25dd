package sms

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caasmo/identity/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func providerWithGateway(url string) *config.Provider {
	cfg := config.NewDefaultConfig()
	cfg.Sms.URL = url
	cfg.Sms.From = "+15550000000"
	cfg.Sms.ApiKey = "test-key"
	return config.NewProvider(cfg)
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(config.NewProvider(config.NewDefaultConfig()), testLogger()); err == nil {
		t.Error("New() without gateway url should fail")
	}
}

func TestSendSms(t *testing.T) {
	var received sendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := New(providerWithGateway(srv.URL), testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.SendSms(context.Background(), "+15551234567", "Your identity token is: 123456"); err != nil {
		t.Fatalf("SendSms() error = %v", err)
	}

	if received.To != "+15551234567" {
		t.Errorf("to = %q, want +15551234567", received.To)
	}
	if received.From != "+15550000000" {
		t.Errorf("from = %q, want +15550000000", received.From)
	}
	if auth != "Bearer test-key" {
		t.Errorf("authorization = %q, want Bearer test-key", auth)
	}
}

func TestSendSmsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := New(providerWithGateway(srv.URL), testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.SendSms(context.Background(), "+15551234567", "msg"); err == nil {
		t.Error("SendSms() should fail on gateway error")
	}
}
