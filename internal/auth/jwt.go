// Package auth implements the two credential schemes the API accepts.
//
// End users present the opaque access token of one of their linked
// providers. Those tokens are never decoded here: middleware hashes the
// presented value and asks the identity service to resolve the digest
// to an account.
//
// Trusted internal callers, such as the web frontend relaying OAuth
// callbacks, present short-lived JWTs signed with a shared secret.
// TokenService mints and verifies those.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "tomatrack"

// TokenService signs and verifies service tokens.
//
// It holds the HMAC secret shared with internal callers. The same
// secret is used for both operations, so rotating it invalidates every
// outstanding token at once.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and
// default token lifetime. The secret should be at least 32 bytes of
// random data in production, e.g. SERVICE_TOKEN_SECRET=$(openssl rand -hex 32).
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: service token secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims embeds jwt.RegisteredClaims; the "sub" claim carries the name
// of the calling service.
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates and signs a token for the named caller using the
// service's default lifetime.
func (s *TokenService) Generate(caller string) (string, error) {
	return s.GenerateWithDuration(caller, s.ttl)
}

// GenerateWithDuration creates a token with a custom expiry. Used by
// tests and by operators minting tokens for one-off maintenance calls.
func (s *TokenService) GenerateWithDuration(caller string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token string and returns the caller
// name stored in the "sub" claim.
//
// The jwt library checks the signature, the expiry, and the issuer.
// Passing jwt.WithValidMethods pins the algorithm to HS256 so a token
// claiming alg "none" is rejected outright.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	caller := c.Subject
	if caller == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return caller, nil
}
