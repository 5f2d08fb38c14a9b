// Package token verifies the bearer tokens the surrounding web
// application issues at login. The handshake credential is the same
// JWT the browser already holds for the REST API.
package token

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
)

// Verifier validates HMAC-signed JWTs against the shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the given signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verify parses and validates the credential, resolving it to the
// user's identity. Any parse, signature, or expiry failure rejects the
// credential.
func (v *Verifier) Verify(_ context.Context, credential string) (domain.Identity, error) {
	if credential == "" {
		return domain.Identity{}, fmt.Errorf("empty credential")
	}

	var c claims
	_, err := jwt.ParseWithClaims(credential, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if c.Subject == "" {
		return domain.Identity{}, fmt.Errorf("token has no subject")
	}

	return domain.Identity{UserID: c.Subject, Email: c.Email}, nil
}
