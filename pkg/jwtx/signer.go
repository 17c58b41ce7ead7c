package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Signer mints symmetric tokens. It backs the in-process identity
// backend used by tests and local development.
type HS256Signer struct {
	secret []byte
}

// NewSignerHS256 returns a signer for the given shared secret.
func NewSignerHS256(secret []byte) (*HS256Signer, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwtx: hs256 secret must be at least 32 bytes")
	}
	return &HS256Signer{secret: secret}, nil
}

// Alg returns the JWS algorithm name.
func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign serialises claims into a compact JWS.
func (s *HS256Signer) Sign(c Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	out, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return out, nil
}

// Verify parses and validates a token minted by this signer.
func (s *HS256Signer) Verify(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{s.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return claims, nil
}
