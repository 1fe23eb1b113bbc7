package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Audience is the aud claim control-plane JWTs must carry.
const Audience = "rasp-agent"

// Claims are the control-plane token claims.
type Claims struct {
	Scopes map[string]bool `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator accepts RS256 tokens signed by the control plane.
type JWTAuthenticator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewJWTAuthenticator returns an authenticator verifying against key.
func NewJWTAuthenticator(key *rsa.PublicKey) *JWTAuthenticator {
	return &JWTAuthenticator{
		publicKey: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithAudience(Audience),
			jwt.WithExpirationRequired(),
		),
	}
}

// LoadRSAPublicKey reads a PEM encoded public key from path.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRSAPublicKey: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("LoadRSAPublicKey: public key file is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("LoadRSAPublicKey: %w", err)
	}
	return key, nil
}

// Authenticate verifies the bearer JWT in header.
func (a *JWTAuthenticator) Authenticate(_ context.Context, header string) (*Caller, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	var claims Claims
	token, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject := claims.Subject
	if subject == "" {
		subject = "jwt"
	}
	return &Caller{Subject: subject, Prefix: tokenPrefix(raw)}, nil
}

// AnyOf accepts a request if any of auths does, trying them in order.
// The error returned is the first one that is not ErrMissingToken.
func AnyOf(auths ...Authenticator) Authenticator {
	return anyOf(auths)
}

type anyOf []Authenticator

func (s anyOf) Authenticate(ctx context.Context, header string) (*Caller, error) {
	err := ErrMissingToken
	for _, a := range s {
		caller, aerr := a.Authenticate(ctx, header)
		if aerr == nil {
			return caller, nil
		}
		if errors.Is(err, ErrMissingToken) {
			err = aerr
		}
	}
	return nil, err
}
