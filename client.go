package lyreclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/lyrebirdhq/lyreclient/api"
	"github.com/lyrebirdhq/lyreclient/csrf"
	"github.com/lyrebirdhq/lyreclient/internal/flows"
	"github.com/lyrebirdhq/lyreclient/internal/monitor"
	"github.com/lyrebirdhq/lyreclient/internal/rate"
	"github.com/lyrebirdhq/lyreclient/session"
	"github.com/lyrebirdhq/lyreclient/storage"
	"github.com/lyrebirdhq/lyreclient/token"
	"github.com/lyrebirdhq/lyreclient/validation"
)

// Client is the authenticated session surface for the platform. Built via
// [Builder.Build]; safe for concurrent use.
type Client struct {
	config  Config
	dual    *storage.Dual
	limiter *rate.Limiter
	csrf    *csrf.Protection
	monitor *monitor.Monitor
	session *session.Manager
	clock   clock.Clock
	logger  logrus.FieldLogger

	transport *api.Client
	auth      *api.AuthAPI
	music     *api.MusicAPI

	mu         sync.RWMutex
	state      State
	user       *User
	closed     bool
	retryTimer *clock.Timer
}

// LoginOptions tunes a login attempt.
type LoginOptions struct {
	// RememberMe stores credentials in the persistent scope so the session
	// survives restarts, and saves the email for prefill.
	RememberMe bool
}

// refresher adapts the client's token refresh for the transport layer.
type refresher struct{ c *Client }

func (r refresher) RefreshTokens(ctx context.Context) error { return r.c.refreshTokens(ctx) }

// backendValidator adapts session re-validation. Transient backend trouble
// is not grounds for ending a session; only explicit rejection is.
type backendValidator struct{ c *Client }

func (v backendValidator) ValidateSession(ctx context.Context) error {
	_, err := v.c.auth.Validate(ctx)
	if err == nil {
		return nil
	}
	if apiErr, ok := api.AsError(err); ok {
		switch {
		case apiErr.Code == api.CodeNetwork || apiErr.Code == api.CodeTimeout:
			return nil
		case apiErr.Status >= 500:
			return nil
		}
	}
	return err
}

// Bootstrap restores a saved session, if any, and returns the resulting
// state. An expired access token is refreshed when possible; a live one is
// confirmed with the backend. After backend or connectivity failures the
// cached session stays in effect and Bootstrap re-runs itself shortly.
func (c *Client) Bootstrap(ctx context.Context) State {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return StateUnauthenticated
	}
	c.state = StateValidating
	c.mu.Unlock()

	if c.csrf != nil {
		c.csrf.Initialize(ctx)
	}

	res := flows.RunBootstrap(ctx, flows.BootstrapDeps{
		ReadAccessToken:  func(ctx context.Context) (string, bool) { return c.readAccessToken(ctx) },
		ReadRefreshToken: func(ctx context.Context) (string, bool) { return c.readKey(ctx, storage.KeyRefreshToken) },
		ReadUser:         func(ctx context.Context) (string, bool) { return c.readKey(ctx, storage.KeyUser) },
		Expired:          func(raw string) bool { return token.Expired(raw, c.clock.Now()) },
		Refresh:          c.refreshTokens,
		Validate:         c.validateForBootstrap,
		PersistUser: func(ctx context.Context, userJSON string) {
			if scope, ok := c.dual.ScopeOf(ctx, storage.KeyAccessToken); ok {
				if err := c.dual.Write(ctx, scope, storage.KeyUser, userJSON); err != nil {
					c.logger.WithError(err).Warn("bootstrap: user snapshot write failed")
				}
			}
		},
		Purge: func(ctx context.Context) {
			if err := c.dual.ClearAuth(ctx); err != nil {
				c.logger.WithError(err).Warn("bootstrap: storage purge failed")
			}
		},
		Warn: c.warnf,
	})

	switch res.Outcome {
	case flows.BootstrapAuthenticated, flows.BootstrapDegraded:
		user, err := decodeUser(res.UserJSON)
		if err != nil {
			c.logger.WithError(err).Warn("bootstrap: corrupt user snapshot, discarding session")
			_ = c.dual.ClearAuth(ctx)
			c.setUnauthenticated()
			return StateUnauthenticated
		}
		c.mu.Lock()
		c.user = user
		c.state = StateAuthenticated
		c.mu.Unlock()
		if res.StartServices {
			c.startServices(user.ID)
		}
		if res.Outcome == flows.BootstrapDegraded {
			c.scheduleBootstrapRetry(res.RetryAfter)
		}
		return StateAuthenticated
	default:
		c.setUnauthenticated()
		return StateUnauthenticated
	}
}

func (c *Client) validateForBootstrap(ctx context.Context) (string, int, error) {
	raw, err := c.auth.Validate(ctx)
	if err == nil {
		return string(raw), 200, nil
	}
	status := 0
	if apiErr, ok := api.AsError(err); ok {
		switch apiErr.Code {
		case api.CodeNetwork, api.CodeTimeout:
			status = 0
		default:
			status = apiErr.Status
		}
	}
	return "", status, err
}

func (c *Client) scheduleBootstrapRetry(after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = c.clock.AfterFunc(after, func() {
		c.Bootstrap(context.Background())
	})
}

// Login authenticates with email and password. Input is validated and rate
// limited before any network traffic; blocked attempts return a
// [RateLimitError] carrying the remaining wait.
func (c *Client) Login(ctx context.Context, email, password string, opts LoginOptions) (*User, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	var cleanEmail string
	res := flows.RunCredential(ctx, flows.CredentialDeps{
		ValidateInput: func() error {
			var err error
			cleanEmail, err = validation.Email(email)
			if err != nil {
				return err
			}
			if password == "" {
				return &validation.FieldError{Field: "password", Message: "Password is required"}
			}
			return nil
		},
		LimitKey:          "login_" + sanitizedKey(email),
		CanAttempt:        func(key string) bool { return c.limiter.CanAttempt(key, c.limitOverride(c.config.RateLimit.Login)...) },
		TimeRemainingText: c.limiter.TimeRemainingText,
		RecordAttempt:     func(key string) { c.limiter.RecordAttempt(key, c.limitOverride(c.config.RateLimit.Login)...) },
		ResetLimit:        c.limiter.Reset,
		Call: func(ctx context.Context) (string, string, string, error) {
			sess, err := c.auth.Login(ctx, cleanEmail, password)
			if err != nil {
				return "", "", "", err
			}
			return sess.AccessToken, sess.RefreshToken, string(sess.User), nil
		},
		Persist: func(ctx context.Context, access, refresh, userJSON string) error {
			scope := storage.ScopeSession
			if opts.RememberMe {
				scope = storage.ScopePersistent
			}
			if err := c.persistSession(ctx, scope, access, refresh, userJSON); err != nil {
				return err
			}
			return c.saveRememberedEmail(ctx, cleanEmail, opts.RememberMe)
		},
		Warn: c.warnf,
	})

	return c.finishCredentialFlow(ctx, "login", res)
}

// Register creates an account and signs in. Registration always uses the
// persistent scope. The full password policy applies here; Login only
// checks presence so older accounts can still sign in.
func (c *Client) Register(ctx context.Context, name, email, password string) (*User, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	var cleanName, cleanEmail string
	res := flows.RunCredential(ctx, flows.CredentialDeps{
		ValidateInput: func() error {
			var err error
			if cleanName, err = validation.Name(name); err != nil {
				return err
			}
			if cleanEmail, err = validation.Email(email); err != nil {
				return err
			}
			_, err = validation.Password(password)
			return err
		},
		LimitKey:          "register_" + sanitizedKey(email),
		CanAttempt:        func(key string) bool { return c.limiter.CanAttempt(key, c.limitOverride(c.config.RateLimit.Register)...) },
		TimeRemainingText: c.limiter.TimeRemainingText,
		RecordAttempt:     func(key string) { c.limiter.RecordAttempt(key, c.limitOverride(c.config.RateLimit.Register)...) },
		ResetLimit:        c.limiter.Reset,
		Call: func(ctx context.Context) (string, string, string, error) {
			sess, err := c.auth.Register(ctx, cleanName, cleanEmail, password)
			if err != nil {
				return "", "", "", err
			}
			return sess.AccessToken, sess.RefreshToken, string(sess.User), nil
		},
		Persist: func(ctx context.Context, access, refresh, userJSON string) error {
			return c.persistSession(ctx, storage.ScopePersistent, access, refresh, userJSON)
		},
		Warn: c.warnf,
	})

	return c.finishCredentialFlow(ctx, "register", res)
}

func (c *Client) finishCredentialFlow(ctx context.Context, op string, res flows.CredentialResult) (*User, error) {
	switch res.Failure {
	case flows.CredentialFailureValidation:
		return nil, res.Err
	case flows.CredentialFailureRateLimited:
		c.monitor.TrackSecurityEvent(monitor.TypeRateLimitHit, monitor.SeverityMedium, map[string]any{
			"operation": op,
		})
		return nil, &RateLimitError{Op: op, Wait: res.RetryText}
	case flows.CredentialFailureRequest:
		c.monitor.TrackSecurityEvent(monitor.TypeFailedAuth, monitor.SeverityMedium, map[string]any{
			"operation": op,
		})
		return nil, res.Err
	}

	user, err := decodeUser(res.UserJSON)
	if err != nil {
		// The token pair was already persisted; don't leave credentials
		// behind for a session this client never entered.
		if purgeErr := c.dual.ClearAuth(ctx); purgeErr != nil {
			c.warnf("auth: failed to purge credentials after bad user payload: %v", purgeErr)
		}
		c.logger.WithError(err).Error("auth: backend returned unusable user payload")
		return nil, err
	}

	c.mu.Lock()
	c.user = user
	c.state = StateAuthenticated
	c.mu.Unlock()

	if c.csrf != nil {
		c.csrf.Refresh(ctx)
	}
	c.startServices(user.ID)
	c.logger.WithField("user_id", user.ID).Info("auth: " + op + " succeeded")

	userCopy := *user
	return &userCopy, nil
}

// Logout revokes the refresh token best-effort, clears both credential
// scopes (the remembered email survives), and stops background services.
func (c *Client) Logout(ctx context.Context) {
	if rt, ok := c.readKey(ctx, storage.KeyRefreshToken); ok {
		if err := c.auth.Logout(ctx, rt); err != nil {
			c.logger.WithError(err).Warn("auth: server-side logout failed, continuing locally")
		}
	}

	c.stopServices()
	if c.csrf != nil {
		c.csrf.Clear(ctx)
	}
	if err := c.dual.ClearAuth(ctx); err != nil {
		c.logger.WithError(err).Warn("auth: storage clear failed during logout")
	}

	c.mu.Lock()
	c.user = nil
	c.state = StateUnauthenticated
	c.mu.Unlock()

	c.logger.Info("auth: logged out")
}

// RefreshAccessToken forces a token refresh, persisting the new credentials
// into whichever scope currently holds the refresh token. Returns
// [ErrNotAuthenticated] when no session is active.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.State() != StateAuthenticated {
		return ErrNotAuthenticated
	}
	return c.refreshTokens(ctx)
}

func (c *Client) refreshTokens(ctx context.Context) error {
	rt, scope, err := c.dual.Read(ctx, storage.KeyRefreshToken)
	if err != nil {
		return ErrNoRefreshToken
	}

	sess, err := c.auth.Refresh(ctx, rt)
	if err != nil {
		return err
	}

	if err := c.dual.Write(ctx, scope, storage.KeyAccessToken, sess.AccessToken); err != nil {
		return err
	}
	if sess.RefreshToken != "" {
		if err := c.dual.Write(ctx, scope, storage.KeyRefreshToken, sess.RefreshToken); err != nil {
			return err
		}
	}
	if len(sess.User) > 0 {
		if err := c.dual.Write(ctx, scope, storage.KeyUser, string(sess.User)); err != nil {
			return err
		}
		if user, err := decodeUser(string(sess.User)); err == nil {
			c.mu.Lock()
			if c.user != nil {
				c.user = user
			}
			c.mu.Unlock()
		}
	}

	c.logger.Debug("auth: access token refreshed")
	return nil
}

// UpdateUserCredits patches the in-memory and stored credit balance after a
// local spend, without waiting for the next backend snapshot.
func (c *Client) UpdateUserCredits(credits int) {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return
	}
	c.user.Credits = credits
	snapshot := *c.user
	c.mu.Unlock()

	ctx := context.Background()
	if scope, ok := c.dual.ScopeOf(ctx, storage.KeyUser); ok {
		raw, err := json.Marshal(snapshot)
		if err == nil {
			err = c.dual.Write(ctx, scope, storage.KeyUser, string(raw))
		}
		if err != nil {
			c.logger.WithError(err).Warn("auth: credit snapshot write failed")
		}
	}
}

// CurrentUser returns a copy of the signed-in user.
func (c *Client) CurrentUser() (User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.user == nil {
		return User{}, false
	}
	return *c.user, true
}

// State returns the current authentication state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// RememberedEmail returns the email saved by a remember-me login, for login
// form prefill.
func (c *Client) RememberedEmail(ctx context.Context) (string, bool) {
	v, err := c.dual.Persistent().Get(ctx, storage.KeyRememberedEmail)
	return v, err == nil
}

// Music exposes the music generation endpoints on the refreshing transport.
func (c *Client) Music() *api.MusicAPI { return c.music }

// SessionInfo snapshots the idle-timeout state for status displays.
func (c *Client) SessionInfo() session.Info { return c.session.InfoSnapshot() }

// ExtendSession resets the idle clock, typically from a "stay signed in"
// confirmation.
func (c *Client) ExtendSession() { c.session.ExtendSession() }

// TrackPageView records a route change in activity telemetry.
func (c *Client) TrackPageView(path string) { c.monitor.TrackPageView(path) }

// TrackSecurityEvent records an application-level security observation.
func (c *Client) TrackSecurityEvent(eventType string, severity Severity, details map[string]any) {
	c.monitor.TrackSecurityEvent(eventType, severity, details)
}

// TelemetryStats snapshots telemetry queue counters.
func (c *Client) TelemetryStats() TelemetryStats { return c.monitor.StatsSnapshot() }

// Close stops background services and releases timers. The client is
// unusable afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()

	c.stopServices()
	c.limiter.Close()
	return nil
}

// handleRevoked reacts to a SESSION_REVOKED response: another device or an
// admin invalidated this session, so local credentials are worthless.
func (c *Client) handleRevoked() {
	c.monitor.TrackSecurityEvent(monitor.TypeConcurrentSession, monitor.SeverityHigh, map[string]any{
		"action": "session_revoked",
	})
	ctx := context.Background()
	if err := c.dual.ClearAuth(ctx); err != nil {
		c.logger.WithError(err).Warn("auth: storage clear failed after revocation")
	}
	c.stopServices()
	c.setUnauthenticated()
}

// handleSessionExpiry runs when the idle timeout fires. The session manager
// has already disarmed itself; this clears credentials and telemetry.
func (c *Client) handleSessionExpiry(reason session.ExpireReason) {
	c.monitor.TrackSecurityEvent(monitor.TypeTokenExpired, monitor.SeverityMedium, map[string]any{
		"reason": string(reason),
	})
	ctx := context.Background()
	if err := c.dual.ClearAuth(ctx); err != nil {
		c.logger.WithError(err).Warn("session: storage clear failed on expiry")
	}
	c.monitor.Stop()
	c.setUnauthenticated()
	c.logger.WithField("reason", string(reason)).Info("session: expired, credentials cleared")
}

func (c *Client) startServices(userID string) {
	c.session.Start()
	c.monitor.Start(userID)
}

func (c *Client) stopServices() {
	c.session.Stop()
	c.monitor.Stop()
}

func (c *Client) setUnauthenticated() {
	c.mu.Lock()
	c.user = nil
	c.state = StateUnauthenticated
	c.mu.Unlock()
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	return nil
}

func (c *Client) persistSession(ctx context.Context, scope storage.Scope, access, refresh, userJSON string) error {
	// Clear both scopes first so stale credentials from a previous session
	// cannot shadow the new ones.
	if err := c.dual.ClearAuth(ctx); err != nil {
		return err
	}
	if err := c.dual.Write(ctx, scope, storage.KeyAccessToken, access); err != nil {
		return err
	}
	if refresh != "" {
		if err := c.dual.Write(ctx, scope, storage.KeyRefreshToken, refresh); err != nil {
			return err
		}
	}
	return c.dual.Write(ctx, scope, storage.KeyUser, userJSON)
}

func (c *Client) saveRememberedEmail(ctx context.Context, email string, remember bool) error {
	if remember {
		return c.dual.Write(ctx, storage.ScopePersistent, storage.KeyRememberedEmail, email)
	}
	return c.dual.Persistent().Delete(ctx, storage.KeyRememberedEmail)
}

func (c *Client) readAccessToken(ctx context.Context) (string, bool) {
	return c.readKey(ctx, storage.KeyAccessToken)
}

func (c *Client) readKey(ctx context.Context, key string) (string, bool) {
	v, _, err := c.dual.Read(ctx, key)
	return v, err == nil
}

func (c *Client) limitOverride(rule RateLimitRule) []rate.Config {
	if rule == (RateLimitRule{}) {
		return nil
	}
	return []rate.Config{{
		MaxAttempts:   rule.MaxAttempts,
		Window:        rule.Window,
		BlockDuration: rule.BlockDuration,
	}}
}

func (c *Client) warnf(format string, args ...any) {
	c.logger.Warnf(format, args...)
}

func sanitizedKey(email string) string {
	clean, err := validation.Email(email)
	if err != nil {
		return validation.SanitizeInput(email)
	}
	return clean
}

func decodeUser(userJSON string) (*User, error) {
	var user User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, err
	}
	return &user, nil
}
