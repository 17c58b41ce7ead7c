package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrNoExpiry    = errors.New("jwtx: token has no exp claim")
)

// Claims are the identity backend's session token claims. Only the fields
// the client reasons about are decoded; everything else is ignored.
type Claims struct {
	jwt.RegisteredClaims

	// Mobile device the token was issued to.
	MobileUID string `json:"mobile_uid,omitempty"`

	// Kind of session, "user" or "service".
	Kind string `json:"kind,omitempty"`
}

// NewClaims builds claims for a token issued now and valid for ttl.
func NewClaims(subject, mobileUID, kind string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		MobileUID: mobileUID,
		Kind:      kind,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateExpiryWithLeeway checks exp and nbf against now. A positive
// leeway makes the token expire early, so callers can refresh ahead of
// the deadline.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return ErrNoExpiry
	}
	if !now.Add(leeway).Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
