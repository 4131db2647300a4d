// Package token does expiry bookkeeping on captured credentials.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the slice of a JWT payload we keep.
type Claims struct {
	IssuedAt  *time.Time
	ExpiresAt *time.Time
}

// Inspect decodes the payload of a three-part JWT without verifying its
// signature and returns issue/expiry times. Not every captured string is a
// JWT, so malformed input yields nil rather than an error.
//
// Skipping verification is deliberate and safe only because the token is
// self-issued by the trusted console and merely round-tripped for expiry
// bookkeeping. Nothing here is an authenticity check; do not make it one.
func Inspect(raw string) *Claims {
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		// A payload with no expiry is useless for bookkeeping.
		return nil
	}

	expAt := exp.Time
	claims := &Claims{ExpiresAt: &expAt}

	if iat, err := parsed.Claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		claims.IssuedAt = &t
	}

	return claims
}

// Lifetime reports how long the token was valid for, when both ends are
// known.
func (c *Claims) Lifetime() (time.Duration, bool) {
	if c == nil || c.IssuedAt == nil || c.ExpiresAt == nil {
		return 0, false
	}
	return c.ExpiresAt.Sub(*c.IssuedAt), true
}

// Remaining reports time until expiry as of now; negative means expired.
func (c *Claims) Remaining(now time.Time) (time.Duration, bool) {
	if c == nil || c.ExpiresAt == nil {
		return 0, false
	}
	return c.ExpiresAt.Sub(now), true
}
