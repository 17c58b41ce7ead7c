package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Inspect decodes the claims of token without verifying its signature.
// Session tokens are opaque to this client and verified server-side; the
// claims are only read to schedule refreshes.
func Inspect(token string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return claims, nil
}

// ExpiresWithin reports whether token expires within d of now. Opaque
// tokens and tokens without an exp claim never report expiry; the backend
// answers 401 for those instead.
func ExpiresWithin(token string, now time.Time, d time.Duration) bool {
	claims, err := Inspect(token)
	if err != nil {
		return false
	}
	return errors.Is(claims.ValidateExpiryWithLeeway(now, d), ErrExpired)
}
