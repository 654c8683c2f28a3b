package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is the lifetime of a session token unless configured.
const DefaultAccessTokenTTL = 60 * time.Minute

// Claims carried by every session token. All registered claims are covered
// by the signature, so none can be altered without invalidating the token.
type Claims struct {
	jwt.RegisteredClaims
}

// NewClaims builds claims for subject with a fresh token id.
func NewClaims(subject, issuer string, ttl time.Duration, now time.Time) Claims {
	now = now.UTC()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
	}
}

// NewJTI returns a random identifier for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// IssuedAtTime returns iat, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.UTC()
}

// ExpiresAtTime returns exp, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.UTC()
}

// validateRequired makes sure every claim the service relies on is present.
func (c *Claims) validateRequired() error {
	if c.Subject == "" || c.ID == "" || c.IssuedAt == nil || c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	return nil
}

// ValidateIssuer checks iss. An empty expectation is not enforced.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateTimes checks the validity window at now. Skew only relaxes the
// iat/nbf checks; exp is enforced exactly so a token never lives longer
// than it was issued for.
func (c *Claims) ValidateTimes(now time.Time, skew time.Duration) error {
	if c.IssuedAt != nil && c.IssuedAt.After(now.Add(skew)) {
		return ErrNotYetValid
	}
	if c.NotBefore != nil && c.NotBefore.After(now.Add(skew)) {
		return ErrNotYetValid
	}
	if c.ExpiresAt == nil || !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}
