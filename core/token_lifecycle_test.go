package core

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/db/mock"
	"github.com/caasmo/identity/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTokenLifecycleIssue(t *testing.T) {
	var inserted db.ValidationToken
	var scheduled db.Job
	mockDb := &mock.Db{
		InsertTokenFunc: func(tok db.ValidationToken) (*db.ValidationToken, error) {
			inserted = tok
			tok.ID = 1
			return &tok, nil
		},
		InsertJobFunc: func(job db.Job) error {
			scheduled = job
			return nil
		},
	}

	tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
	before := time.Now()
	token, err := tl.Issue(TokenOwner{Identity: "a@x.com"}, ReasonRegistration, 3*time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if len(token.Token) != 6 {
		t.Errorf("token value %q, want 6 digit otp", token.Token)
	}
	if !inserted.Valid {
		t.Error("issued token must start valid")
	}
	if inserted.Identity != "a@x.com" || inserted.UserID != "" {
		t.Errorf("owner binding = (%q,%q), want identity only", inserted.UserID, inserted.Identity)
	}
	if inserted.Reason != ReasonRegistration {
		t.Errorf("reason = %q, want %q", inserted.Reason, ReasonRegistration)
	}
	wantExpiry := before.Add(3 * time.Minute)
	if inserted.Expires.Before(wantExpiry) || inserted.Expires.After(wantExpiry.Add(time.Second)) {
		t.Errorf("expiry = %v, want about %v", inserted.Expires, wantExpiry)
	}

	if scheduled.JobType != queue.JobTypeTokenExpiry {
		t.Errorf("scheduled job type = %q, want %q", scheduled.JobType, queue.JobTypeTokenExpiry)
	}
	if !scheduled.ScheduledFor.Equal(inserted.Expires) {
		t.Errorf("job scheduled for %v, want token expiry %v", scheduled.ScheduledFor, inserted.Expires)
	}
}

func TestTokenLifecycleIssueRetriesValueCollision(t *testing.T) {
	inserts := 0
	mockDb := &mock.Db{
		InsertTokenFunc: func(tok db.ValidationToken) (*db.ValidationToken, error) {
			inserts++
			if inserts == 1 {
				// a historical retained token holds the same value
				return nil, db.ErrConstraintUnique
			}
			tok.ID = 2
			return &tok, nil
		},
	}

	tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
	token, err := tl.Issue(TokenOwner{Identity: "a@x.com"}, ReasonRegistration, time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if inserts != 2 {
		t.Errorf("insert attempts = %d, want 2 (regenerated after collision)", inserts)
	}
	if len(token.Token) != 6 {
		t.Errorf("token value %q, want 6 digit otp", token.Token)
	}
}

func TestTokenLifecycleIssueCollisionExhaustion(t *testing.T) {
	inserts := 0
	mockDb := &mock.Db{
		InsertTokenFunc: func(tok db.ValidationToken) (*db.ValidationToken, error) {
			inserts++
			return nil, db.ErrConstraintUnique
		},
	}

	tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
	if _, err := tl.Issue(TokenOwner{Identity: "a@x.com"}, ReasonRegistration, time.Minute); !errors.Is(err, ErrUnknown) {
		t.Errorf("Issue() error = %v, want ErrUnknown", err)
	}
	if inserts != otpInsertAttempts {
		t.Errorf("insert attempts = %d, want %d", inserts, otpInsertAttempts)
	}
}

func TestTokenLifecycleIssueScheduleFailure(t *testing.T) {
	mockDb := &mock.Db{
		InsertJobFunc: func(job db.Job) error {
			return errors.New("queue full")
		},
	}

	tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
	if _, err := tl.Issue(TokenOwner{Identity: "a@x.com"}, ReasonRegistration, time.Minute); !errors.Is(err, ErrUnknown) {
		t.Errorf("Issue() error = %v, want ErrUnknown", err)
	}
}

func validStoredToken(owner TokenOwner) *db.ValidationToken {
	return &db.ValidationToken{
		ID:       1,
		Token:    "123456",
		UserID:   owner.UserID,
		Identity: owner.Identity,
		Valid:    true,
		Expires:  time.Now().Add(time.Minute),
		Reason:   ReasonRegistration,
		Created:  time.Now(),
	}
}

func TestValidateAndConsume(t *testing.T) {
	owner := TokenOwner{Identity: "a@x.com"}

	t.Run("success flips and annotates", func(t *testing.T) {
		var consumedReason string
		mockDb := &mock.Db{
			GetTokenByValueFunc: func(token string) (*db.ValidationToken, error) {
				return validStoredToken(owner), nil
			},
			ConsumeTokenFunc: func(token, reason string) (bool, error) {
				consumedReason = reason
				return true, nil
			},
		}

		tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
		token, err := tl.ValidateAndConsume("123456", owner, ReasonRegistrationConfirmed)
		if err != nil {
			t.Fatalf("ValidateAndConsume() error = %v", err)
		}
		if token.Valid {
			t.Error("returned token still marked valid")
		}
		if consumedReason != ReasonRegistrationConfirmed || token.Reason != ReasonRegistrationConfirmed {
			t.Errorf("terminal reason = %q/%q, want %q", consumedReason, token.Reason, ReasonRegistrationConfirmed)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		tl := NewTokenLifecycle(&mock.Db{}, &mock.Db{}, testLogger())
		if _, err := tl.ValidateAndConsume("000000", owner, ReasonRegistrationConfirmed); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("already consumed", func(t *testing.T) {
		mockDb := &mock.Db{
			GetTokenByValueFunc: func(token string) (*db.ValidationToken, error) {
				tok := validStoredToken(owner)
				tok.Valid = false
				return tok, nil
			},
		}
		tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
		if _, err := tl.ValidateAndConsume("123456", owner, ReasonRegistrationConfirmed); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("expired but flag still true", func(t *testing.T) {
		var consumeCalled bool
		mockDb := &mock.Db{
			GetTokenByValueFunc: func(token string) (*db.ValidationToken, error) {
				tok := validStoredToken(owner)
				tok.Expires = time.Now().Add(-time.Millisecond)
				return tok, nil
			},
			ConsumeTokenFunc: func(token, reason string) (bool, error) {
				consumeCalled = true
				return true, nil
			},
		}
		tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
		if _, err := tl.ValidateAndConsume("123456", owner, ReasonRegistrationConfirmed); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("error = %v, want ErrTokenInvalid", err)
		}
		if consumeCalled {
			t.Error("expired token must be rejected before the store update")
		}
	})

	t.Run("owner mismatch", func(t *testing.T) {
		mockDb := &mock.Db{
			GetTokenByValueFunc: func(token string) (*db.ValidationToken, error) {
				return validStoredToken(owner), nil
			},
		}
		tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
		if _, err := tl.ValidateAndConsume("123456", TokenOwner{Identity: "b@x.com"}, ReasonRegistrationConfirmed); !errors.Is(err, ErrTokenOwnerMismatch) {
			t.Errorf("error = %v, want ErrTokenOwnerMismatch", err)
		}
	})

	t.Run("user bound token matches on user id", func(t *testing.T) {
		bound := TokenOwner{UserID: "user-7"}
		mockDb := &mock.Db{
			GetTokenByValueFunc: func(token string) (*db.ValidationToken, error) {
				return validStoredToken(bound), nil
			},
		}
		tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
		if _, err := tl.ValidateAndConsume("123456", bound, ReasonResetCompleted); err != nil {
			t.Errorf("ValidateAndConsume() error = %v", err)
		}
		if _, err := tl.ValidateAndConsume("123456", TokenOwner{UserID: "user-8"}, ReasonResetCompleted); !errors.Is(err, ErrTokenOwnerMismatch) {
			t.Errorf("error = %v, want ErrTokenOwnerMismatch", err)
		}
	})

	t.Run("lost race reports invalid", func(t *testing.T) {
		// the read saw a valid token but the conditional update found the
		// flag already flipped: expiry or another consumer won
		mockDb := &mock.Db{
			GetTokenByValueFunc: func(token string) (*db.ValidationToken, error) {
				return validStoredToken(owner), nil
			},
			ConsumeTokenFunc: func(token, reason string) (bool, error) {
				return false, nil
			},
		}
		tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
		if _, err := tl.ValidateAndConsume("123456", owner, ReasonRegistrationConfirmed); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("error = %v, want ErrTokenInvalid", err)
		}
	})
}

func TestIsTokenValid(t *testing.T) {
	owner := TokenOwner{Identity: "a@x.com"}
	testCases := []struct {
		name  string
		token func() *db.ValidationToken
		want  bool
	}{
		{"valid unexpired", func() *db.ValidationToken { return validStoredToken(owner) }, true},
		{"consumed", func() *db.ValidationToken {
			tok := validStoredToken(owner)
			tok.Valid = false
			return tok
		}, false},
		{"expired", func() *db.ValidationToken {
			tok := validStoredToken(owner)
			tok.Expires = time.Now().Add(-time.Second)
			return tok
		}, false},
		{"unknown", func() *db.ValidationToken { return nil }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockDb := &mock.Db{
				GetTokenByValueFunc: func(token string) (*db.ValidationToken, error) {
					return tc.token(), nil
				},
			}
			tl := NewTokenLifecycle(mockDb, mockDb, testLogger())
			if got := tl.IsTokenValid("123456"); got != tc.want {
				t.Errorf("IsTokenValid() = %v, want %v", got, tc.want)
			}
		})
	}
}
