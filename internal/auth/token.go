package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCacheTTL bounds how long a verified token skips bcrypt.
const DefaultCacheTTL = 5 * time.Minute

// TokenAuthenticator accepts bearer tokens matching a bcrypt hash.
// Verified tokens are cached by SHA-256 digest so the raw token is never stored.
type TokenAuthenticator struct {
	mu     sync.RWMutex
	hash   []byte
	cache  *AuthCache
	logger *zap.Logger
}

// NewTokenAuthenticator validates hash and returns an authenticator for it.
func NewTokenAuthenticator(hash string, ttl time.Duration, logger *zap.Logger) (*TokenAuthenticator, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("NewTokenAuthenticator: %w", err)
	}
	return &TokenAuthenticator{
		hash:   []byte(hash),
		cache:  NewAuthCache(ttl),
		logger: logger.Named("auth"),
	}, nil
}

// Rotate replaces the accepted hash and forgets every cached verification.
func (a *TokenAuthenticator) Rotate(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("Rotate: %w", err)
	}
	a.mu.Lock()
	a.hash = []byte(hash)
	a.mu.Unlock()
	a.cache.Clear()
	return nil
}

// Authenticate verifies the bearer token in header.
//
// Flow:
//  1. Extract the token from the header
//  2. Cache lookup (stale-while-revalidate):
//     - Fresh hit: return immediately
//     - Stale hit: return the cached caller, re-verify in the background
//     - Miss: bcrypt compare synchronously
func (a *TokenAuthenticator) Authenticate(_ context.Context, header string) (*Caller, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}
	key := digest(token)

	result := a.cache.Get(key)
	if result.Hit {
		if result.NeedsRefresh {
			go a.backgroundRefresh(key, token)
		}
		return result.Caller, nil
	}

	caller, err := a.verify(token)
	if err != nil {
		return nil, err
	}
	a.cache.Set(key, caller)
	return caller, nil
}

// backgroundRefresh re-verifies a stale entry. A token that no longer
// matches is evicted so the next request is rejected.
func (a *TokenAuthenticator) backgroundRefresh(key, token string) {
	caller, err := a.verify(token)
	if err != nil {
		a.logger.Warn("background token re-verification failed", zap.Error(err))
		a.cache.Delete(key)
		return
	}
	a.cache.Set(key, caller)
}

func (a *TokenAuthenticator) verify(token string) (*Caller, error) {
	a.mu.RLock()
	hash := a.hash
	a.mu.RUnlock()

	if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
		return nil, ErrInvalidToken
	}
	return &Caller{Subject: "token", Prefix: tokenPrefix(token)}, nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
