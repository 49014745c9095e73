package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [Store.Get] when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Canonical keys used by the SDK. Callers may store additional keys but must
// not reuse these names.
const (
	KeyAccessToken     = "lyre_token"
	KeyRefreshToken    = "lyre_refresh_token"
	KeyUser            = "lyre_user"
	KeyRememberedEmail = "lyre_remembered_email"
	KeyCSRFToken       = "lyre_csrf_token"
	KeyCSRFTimestamp   = "lyre_csrf_token_timestamp"
	KeySessionStart    = "lyre_session_start"
)

// Store is a flat string key-value scope.
//
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}
