package lyreclient

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited marks login/register attempts rejected locally before
	// any network call. Returned wrapped in [RateLimitError].
	ErrRateLimited = errors.New("rate limited")
	// ErrNotAuthenticated is returned by operations that require an active
	// session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoRefreshToken means a refresh was requested but no refresh token
	// is stored.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrClientClosed is returned by operations on a closed client.
	ErrClientClosed = errors.New("client closed")
)

// RateLimitError carries the human-readable wait time alongside the
// [ErrRateLimited] sentinel.
type RateLimitError struct {
	Op   string // "login" or "register"
	Wait string // e.g. "15 minutes"
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many %s attempts, try again in %s", e.Op, e.Wait)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
