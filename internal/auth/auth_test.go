package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testToken is the raw control token used in tests.
const testToken = "tsk_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of token using MinCost (fast for tests).
func testHash(t *testing.T, token string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"bearer", "Bearer tsk_abc123", "tsk_abc123", nil},
		{"lowercase scheme", "bearer tsk_abc123", "tsk_abc123", nil},
		{"raw token", "tsk_abc123", "tsk_abc123", nil},
		{"whitespace", "Bearer   tsk_abc123  ", "tsk_abc123", nil},
		{"empty", "", "", ErrMissingToken},
		{"scheme only", "Bearer    ", "", ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BearerToken(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenAuthenticator(t *testing.T) {
	c, err := NewOpenAuthenticator().Authenticate(context.Background(), "")
	if err != nil || c.Subject != "anonymous" {
		t.Errorf("got %+v, %v", c, err)
	}
}

func TestTokenAuthenticator_ValidToken(t *testing.T) {
	a, err := NewTokenAuthenticator(testHash(t, testToken), time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	caller, err := a.Authenticate(context.Background(), "Bearer "+testToken)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if caller.Subject != "token" || caller.Prefix != "tsk_test" {
		t.Errorf("unexpected caller %+v", caller)
	}
	if !a.cache.Get(digest(testToken)).Hit {
		t.Error("verified token should be cached")
	}
}

func TestTokenAuthenticator_InvalidTokenNotCached(t *testing.T) {
	a, err := NewTokenAuthenticator(testHash(t, testToken), time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if _, err := a.Authenticate(context.Background(), "Bearer tsk_wrong"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	}
	if a.cache.Get(digest("tsk_wrong")).Hit {
		t.Error("rejected tokens must not be cached")
	}
}

func TestTokenAuthenticator_MissingHeader(t *testing.T) {
	a, err := NewTokenAuthenticator(testHash(t, testToken), time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Authenticate(context.Background(), ""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestNewTokenAuthenticator_RejectsBadHash(t *testing.T) {
	for _, h := range []string{"", "not-a-bcrypt-hash"} {
		if _, err := NewTokenAuthenticator(h, 0, zap.NewNop()); err == nil {
			t.Errorf("expected error for hash %q", h)
		}
	}
}

func TestTokenAuthenticator_RotateInvalidatesCache(t *testing.T) {
	a, err := NewTokenAuthenticator(testHash(t, testToken), time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := a.Authenticate(ctx, testToken); err != nil {
		t.Fatal(err)
	}

	if err := a.Rotate(testHash(t, "tsk_rotated_token_abcdef")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Authenticate(ctx, testToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("old token must be rejected after rotation, got %v", err)
	}
	if _, err := a.Authenticate(ctx, "tsk_rotated_token_abcdef"); err != nil {
		t.Errorf("new token rejected: %v", err)
	}
	if err := a.Rotate("garbage"); err == nil {
		t.Error("expected error for an invalid rotation hash")
	}
}

func TestTokenAuthenticator_StaleHitRevalidates(t *testing.T) {
	a, err := NewTokenAuthenticator(testHash(t, testToken), time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{t: time.Now()}
	a.cache.now = clock.now

	ctx := context.Background()
	if _, err := a.Authenticate(ctx, testToken); err != nil {
		t.Fatal(err)
	}
	clock.advance(2 * time.Minute)

	// Rotate the hash behind the cache's back: the stale entry is served once
	// and evicted by the background re-verification.
	a.mu.Lock()
	a.hash = []byte(testHash(t, "tsk_other_token_abcdef"))
	a.mu.Unlock()

	if _, err := a.Authenticate(ctx, testToken); err != nil {
		t.Fatalf("stale hit should be served, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.cache.Get(digest(testToken)).Hit {
		if time.Now().After(deadline) {
			t.Fatal("stale entry was not evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := a.Authenticate(ctx, testToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken after eviction, got %v", err)
	}
}

func TestTokenPrefix(t *testing.T) {
	if got := tokenPrefix("abcd"); got != "ab" {
		t.Errorf("short token prefix = %q", got)
	}
	if got := tokenPrefix(testToken); got != "tsk_test" {
		t.Errorf("prefix = %q", got)
	}
}
