package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing authorization header")
	ErrInvalidToken = errors.New("invalid control token")
)

// Caller identifies an authenticated control-API client.
type Caller struct {
	Subject string // "token" or "anonymous"
	Prefix  string // first characters of the token, safe to log
}

// Authenticator validates the Authorization header of a control-API request.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*Caller, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	token := header
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = token[7:]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// OpenAuthenticator accepts every request. It is used when no control token
// hash is configured, which only makes sense on a loopback listener.
type OpenAuthenticator struct{}

func NewOpenAuthenticator() *OpenAuthenticator {
	return &OpenAuthenticator{}
}

func (a *OpenAuthenticator) Authenticate(context.Context, string) (*Caller, error) {
	return &Caller{Subject: "anonymous"}, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token[:len(token)/2]
	}
	return token[:8]
}
