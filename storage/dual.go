package storage

import (
	"context"
	"errors"
)

// Scope selects which store a write targets.
type Scope int

const (
	// ScopePersistent survives process restarts ("remember me").
	ScopePersistent Scope = iota
	// ScopeSession lives as long as the host process.
	ScopeSession
)

// Dual pairs the persistent and session scopes behind one read surface.
// Reads check the persistent scope first, matching the precedence the rest of
// the SDK relies on to pick up whichever scope the last login targeted.
type Dual struct {
	persistent Store
	session    Store
}

// NewDual creates a [Dual] over the two scopes. Both must be non-nil.
func NewDual(persistent, session Store) *Dual {
	return &Dual{
		persistent: persistent,
		session:    session,
	}
}

// Persistent returns the persistent scope store.
func (d *Dual) Persistent() Store {
	return d.persistent
}

// Session returns the session scope store.
func (d *Dual) Session() Store {
	return d.session
}

// Scope returns the store for the given scope.
func (d *Dual) Scope(scope Scope) Store {
	if scope == ScopePersistent {
		return d.persistent
	}
	return d.session
}

// Read looks the key up in the persistent scope, then the session scope.
// It reports which scope held the value.
func (d *Dual) Read(ctx context.Context, key string) (string, Scope, error) {
	value, err := d.persistent.Get(ctx, key)
	if err == nil {
		return value, ScopePersistent, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", ScopePersistent, err
	}

	value, err = d.session.Get(ctx, key)
	if err != nil {
		return "", ScopeSession, err
	}
	return value, ScopeSession, nil
}

// Write stores the value in exactly one scope.
func (d *Dual) Write(ctx context.Context, scope Scope, key, value string) error {
	return d.Scope(scope).Set(ctx, key, value)
}

// Delete removes the key from both scopes.
func (d *Dual) Delete(ctx context.Context, key string) error {
	perr := d.persistent.Delete(ctx, key)
	serr := d.session.Delete(ctx, key)
	if perr != nil {
		return perr
	}
	return serr
}

// ClearAuth removes the credential set from both scopes. The remembered email
// is deliberately left in place; it survives logout.
func (d *Dual) ClearAuth(ctx context.Context) error {
	var firstErr error
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyUser} {
		if err := d.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ScopeOf reports which scope currently holds the key, if any.
func (d *Dual) ScopeOf(ctx context.Context, key string) (Scope, bool) {
	if _, err := d.persistent.Get(ctx, key); err == nil {
		return ScopePersistent, true
	}
	if _, err := d.session.Get(ctx, key); err == nil {
		return ScopeSession, true
	}
	return ScopeSession, false
}
