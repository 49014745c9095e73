// Package token inspects access tokens on the client side.
//
// The SDK never verifies signatures — that is the backend's job. It only
// decodes the registered claims to decide whether a cached access token is
// worth presenting or should be refreshed first. A token that cannot be
// decoded is treated as expired, which routes it into the refresh-or-purge
// path rather than onto the wire.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry indicates the token decoded but carries no exp claim.
var ErrNoExpiry = errors.New("token: no expiry claim")

var parser = jwt.NewParser()

// ExpiresAt decodes the token without verifying it and returns the exp claim.
func ExpiresAt(raw string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether the token's exp claim is at or before now.
// Malformed tokens and tokens without an exp claim count as expired.
func Expired(raw string, now time.Time) bool {
	exp, err := ExpiresAt(raw)
	if err != nil {
		return true
	}
	return !exp.After(now)
}

// Subject decodes the token without verifying it and returns the sub claim,
// or "" when absent or undecodable.
func Subject(raw string) string {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return ""
	}
	return claims.Subject
}
