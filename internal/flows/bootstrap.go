package flows

import (
	"context"
	"time"
)

// BootstrapOutcome classifies how session restoration ended.
type BootstrapOutcome int

const (
	// BootstrapNoSession means no saved credentials were found. Storage is
	// left untouched.
	BootstrapNoSession BootstrapOutcome = iota
	// BootstrapAuthenticated means the session was restored and confirmed,
	// either by backend validation or by a successful expired-token refresh.
	BootstrapAuthenticated
	// BootstrapDegraded means the backend could not confirm the session but
	// the failure was transient. Cached credentials stay in effect and the
	// caller should re-run the flow after RetryAfter.
	BootstrapDegraded
	// BootstrapPurged means the credentials were rejected and storage has
	// been cleared.
	BootstrapPurged
)

// Backend outage and connectivity retry cadences.
const (
	RetryAfterServerError = 5 * time.Second
	RetryAfterNetwork     = 3 * time.Second
)

// BootstrapResult carries the restored session or the failure disposition.
type BootstrapResult struct {
	Outcome       BootstrapOutcome
	AccessToken   string
	RefreshToken  string
	UserJSON      string
	RetryAfter    time.Duration
	StartServices bool
}

// BootstrapDeps captures session restoration dependencies. Validate returns
// the fresh user payload on success; on failure status is the HTTP status
// code, 0 for transport-level failures.
type BootstrapDeps struct {
	ReadAccessToken  func(ctx context.Context) (string, bool)
	ReadRefreshToken func(ctx context.Context) (string, bool)
	ReadUser         func(ctx context.Context) (string, bool)
	Expired          func(token string) bool
	Refresh          func(ctx context.Context) error
	Validate         func(ctx context.Context) (userJSON string, status int, err error)
	PersistUser      func(ctx context.Context, userJSON string)
	Purge            func(ctx context.Context)
	Warn             func(format string, args ...any)
}

// RunBootstrap restores a persisted session. An expired access token is
// refreshed when a refresh token exists; a live one is confirmed against the
// backend. Hard rejections purge storage, transient failures keep the cached
// user and ask the caller to retry.
func RunBootstrap(ctx context.Context, deps BootstrapDeps) BootstrapResult {
	token, haveToken := deps.ReadAccessToken(ctx)
	userJSON, haveUser := deps.ReadUser(ctx)
	if !haveToken || !haveUser {
		return BootstrapResult{Outcome: BootstrapNoSession}
	}
	refreshToken, haveRefresh := deps.ReadRefreshToken(ctx)

	if deps.Expired(token) {
		if haveRefresh {
			if err := deps.Refresh(ctx); err == nil {
				// Refresh persisted new credentials; re-read them.
				token, _ = deps.ReadAccessToken(ctx)
				refreshToken, _ = deps.ReadRefreshToken(ctx)
				userJSON, _ = deps.ReadUser(ctx)
				return BootstrapResult{
					Outcome:       BootstrapAuthenticated,
					AccessToken:   token,
					RefreshToken:  refreshToken,
					UserJSON:      userJSON,
					StartServices: true,
				}
			}
			deps.Warn("bootstrap: expired token refresh failed")
		}
		deps.Purge(ctx)
		return BootstrapResult{Outcome: BootstrapPurged}
	}

	freshUser, status, err := deps.Validate(ctx)
	if err == nil {
		deps.PersistUser(ctx, freshUser)
		return BootstrapResult{
			Outcome:       BootstrapAuthenticated,
			AccessToken:   token,
			RefreshToken:  refreshToken,
			UserJSON:      freshUser,
			StartServices: true,
		}
	}

	switch {
	case status == 401 || status == 403:
		deps.Purge(ctx)
		return BootstrapResult{Outcome: BootstrapPurged}
	case status >= 500:
		deps.Warn("bootstrap: validation failed with status %d, keeping cached session", status)
		return BootstrapResult{
			Outcome:      BootstrapDegraded,
			AccessToken:  token,
			RefreshToken: refreshToken,
			UserJSON:     userJSON,
			RetryAfter:   RetryAfterServerError,
		}
	case status == 0:
		deps.Warn("bootstrap: validation unreachable, keeping cached session")
		return BootstrapResult{
			Outcome:       BootstrapDegraded,
			AccessToken:   token,
			RefreshToken:  refreshToken,
			UserJSON:      userJSON,
			RetryAfter:    RetryAfterNetwork,
			StartServices: true,
		}
	default:
		deps.Purge(ctx)
		return BootstrapResult{Outcome: BootstrapPurged}
	}
}
