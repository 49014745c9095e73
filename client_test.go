package lyreclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"

	"github.com/lyrebirdhq/lyreclient/storage"
	"github.com/lyrebirdhq/lyreclient/validation"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

type backend struct {
	t *testing.T

	loginAttempts    atomic.Int32
	validateStatus   atomic.Int32 // 0 means success
	refreshAttempts  atomic.Int32
	logoutAttempts   atomic.Int32
	loginShouldFail  atomic.Bool
	loginBadUser     atomic.Bool
	freshAccessToken string

	srv *httptest.Server
}

func newBackend(t *testing.T) *backend {
	b := &backend{t: t, freshAccessToken: signedToken(t, time.Now().Add(time.Hour))}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": "csrf-abc"})
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		b.loginAttempts.Add(1)
		if b.loginShouldFail.Load() {
			b.writeErr(w, 401, "INVALID_CREDENTIALS", "invalid credentials")
			return
		}
		if b.loginBadUser.Load() {
			b.writeOK(w, map[string]any{
				"accessToken":  signedToken(b.t, time.Now().Add(time.Hour)),
				"refreshToken": "rt-1",
				"user":         "not-an-object",
			})
			return
		}
		b.writeSession(w)
	})
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		b.writeSession(w)
	})
	mux.HandleFunc("/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		if status := int(b.validateStatus.Load()); status != 0 {
			b.writeErr(w, status, "VALIDATE_FAILED", "validation failed")
			return
		}
		b.writeOK(w, map[string]any{"user": b.user(99)})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshAttempts.Add(1)
		b.writeOK(w, map[string]any{
			"accessToken": b.freshAccessToken,
			"user":        b.user(50),
		})
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		b.logoutAttempts.Add(1)
		b.writeOK(w, nil)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) user(credits int) map[string]any {
	return map[string]any{
		"id":      "u1",
		"name":    "Aria Vale",
		"email":   "aria@lyrebird.example",
		"credits": credits,
	}
}

func (b *backend) writeSession(w http.ResponseWriter) {
	b.writeOK(w, map[string]any{
		"accessToken":  signedToken(b.t, time.Now().Add(time.Hour)),
		"refreshToken": "rt-1",
		"user":         b.user(25),
	})
}

func (b *backend) writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true, "message": "ok", "data": data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (b *backend) writeErr(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]any{"message": message, "code": code, "status": status},
	})
}

type clientFixture struct {
	client     *Client
	persistent *storage.MemoryStore
	sess       *storage.MemoryStore
	mock       *clock.Mock
}

func newClientFixture(t *testing.T, b *backend) *clientFixture {
	t.Helper()
	persistent := storage.NewMemoryStore()
	sess := storage.NewMemoryStore()
	mock := clock.NewMock()
	mock.Set(time.Now())

	cfg := defaultConfig()
	cfg.API.BaseURL = b.srv.URL
	c, err := New().
		WithConfig(cfg).
		WithStorage(persistent, sess).
		WithClock(mock).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return &clientFixture{client: c, persistent: persistent, sess: sess, mock: mock}
}

func has(t *testing.T, store storage.Store, key string) bool {
	t.Helper()
	_, err := store.Get(context.Background(), key)
	return err == nil
}

func TestLoginRememberMeUsesPersistentScope(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)
	ctx := context.Background()

	user, err := f.client.Login(ctx, "aria@lyrebird.example", "pw-anything", LoginOptions{RememberMe: true})
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != "u1" || user.Credits != 25 {
		t.Fatalf("user = %+v", user)
	}
	if f.client.State() != StateAuthenticated {
		t.Fatalf("state = %v", f.client.State())
	}

	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUser} {
		if !has(t, f.persistent, key) {
			t.Fatalf("persistent scope missing %q", key)
		}
		if has(t, f.sess, key) {
			t.Fatalf("session scope unexpectedly holds %q", key)
		}
	}
	if email, ok := f.client.RememberedEmail(ctx); !ok || email != "aria@lyrebird.example" {
		t.Fatalf("remembered email = %q, %v", email, ok)
	}
}

func TestLoginWithoutRememberUsesSessionScope(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)
	ctx := context.Background()

	if _, err := f.client.Login(ctx, "aria@lyrebird.example", "pw", LoginOptions{}); err != nil {
		t.Fatal(err)
	}
	if !has(t, f.sess, storage.KeyAccessToken) {
		t.Fatal("session scope missing access token")
	}
	if has(t, f.persistent, storage.KeyAccessToken) {
		t.Fatal("persistent scope holds access token without remember-me")
	}
	if _, ok := f.client.RememberedEmail(ctx); ok {
		t.Fatal("email remembered without remember-me")
	}
}

func TestLoginValidationFailsBeforeNetwork(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)

	_, err := f.client.Login(context.Background(), "not-an-email", "pw", LoginOptions{})
	var fieldErr *validation.FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "email" {
		t.Fatalf("err = %v, want email field error", err)
	}
	if b.loginAttempts.Load() != 0 {
		t.Fatal("request reached the backend despite invalid input")
	}
}

func TestLoginRateLimitedAfterFiveFailures(t *testing.T) {
	b := newBackend(t)
	b.loginShouldFail.Store(true)
	f := newClientFixture(t, b)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.client.Login(ctx, "aria@lyrebird.example", "wrong", LoginOptions{}); err == nil {
			t.Fatal("login succeeded with rejected credentials")
		}
	}
	_, err := f.client.Login(ctx, "aria@lyrebird.example", "wrong", LoginOptions{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) || rlErr.Wait == "" {
		t.Fatalf("rate limit error missing wait text: %v", err)
	}
	if got := b.loginAttempts.Load(); got != 5 {
		t.Fatalf("backend saw %d attempts, want 5", got)
	}
}

func TestBootstrapRestoresValidSession(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)
	ctx := context.Background()

	userJSON, _ := json.Marshal(b.user(10))
	f.persistent.Set(ctx, storage.KeyAccessToken, signedToken(t, time.Now().Add(time.Hour)))
	f.persistent.Set(ctx, storage.KeyRefreshToken, "rt-1")
	f.persistent.Set(ctx, storage.KeyUser, string(userJSON))

	if got := f.client.Bootstrap(ctx); got != StateAuthenticated {
		t.Fatalf("state = %v", got)
	}
	// The backend snapshot wins over the cached one.
	user, ok := f.client.CurrentUser()
	if !ok || user.Credits != 99 {
		t.Fatalf("user = %+v, %v", user, ok)
	}
	stored, err := f.persistent.Get(ctx, storage.KeyUser)
	if err != nil {
		t.Fatal(err)
	}
	var persisted User
	json.Unmarshal([]byte(stored), &persisted)
	if persisted.Credits != 99 {
		t.Fatalf("persisted credits = %d, want fresh value", persisted.Credits)
	}
}

func TestBootstrapWithoutSavedSession(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)

	if got := f.client.Bootstrap(context.Background()); got != StateUnauthenticated {
		t.Fatalf("state = %v", got)
	}
}

func TestBootstrapPurgesOnRejection(t *testing.T) {
	b := newBackend(t)
	b.validateStatus.Store(401)
	f := newClientFixture(t, b)
	ctx := context.Background()

	userJSON, _ := json.Marshal(b.user(10))
	f.persistent.Set(ctx, storage.KeyAccessToken, signedToken(t, time.Now().Add(time.Hour)))
	f.persistent.Set(ctx, storage.KeyUser, string(userJSON))
	f.persistent.Set(ctx, storage.KeyRememberedEmail, "aria@lyrebird.example")

	if got := f.client.Bootstrap(ctx); got != StateUnauthenticated {
		t.Fatalf("state = %v", got)
	}
	if has(t, f.persistent, storage.KeyAccessToken) || has(t, f.persistent, storage.KeyUser) {
		t.Fatal("credentials survived a rejected validation")
	}
	if !has(t, f.persistent, storage.KeyRememberedEmail) {
		t.Fatal("remembered email purged")
	}
}

func TestBootstrapKeepsCachedUserThroughServerError(t *testing.T) {
	b := newBackend(t)
	b.validateStatus.Store(503)
	f := newClientFixture(t, b)
	ctx := context.Background()

	userJSON, _ := json.Marshal(b.user(10))
	f.persistent.Set(ctx, storage.KeyAccessToken, signedToken(t, time.Now().Add(time.Hour)))
	f.persistent.Set(ctx, storage.KeyUser, string(userJSON))

	if got := f.client.Bootstrap(ctx); got != StateAuthenticated {
		t.Fatalf("state = %v, want degraded-but-authenticated", got)
	}
	user, ok := f.client.CurrentUser()
	if !ok || user.Credits != 10 {
		t.Fatalf("cached user not kept: %+v, %v", user, ok)
	}
	if has(t, f.sess, storage.KeyAccessToken) {
		t.Fatal("credentials moved scopes")
	}
}

func TestBootstrapRefreshesExpiredToken(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)
	ctx := context.Background()

	userJSON, _ := json.Marshal(b.user(10))
	f.sess.Set(ctx, storage.KeyAccessToken, signedToken(t, time.Now().Add(-time.Hour)))
	f.sess.Set(ctx, storage.KeyRefreshToken, "rt-1")
	f.sess.Set(ctx, storage.KeyUser, string(userJSON))

	if got := f.client.Bootstrap(ctx); got != StateAuthenticated {
		t.Fatalf("state = %v", got)
	}
	if b.refreshAttempts.Load() != 1 {
		t.Fatalf("refresh attempts = %d, want 1", b.refreshAttempts.Load())
	}
	// Refresh persists into the scope that held the refresh token.
	stored, err := f.sess.Get(ctx, storage.KeyAccessToken)
	if err != nil || stored != b.freshAccessToken {
		t.Fatalf("session-scope access token = %q, %v", stored, err)
	}
	if has(t, f.persistent, storage.KeyAccessToken) {
		t.Fatal("refresh leaked credentials into the persistent scope")
	}
}

func TestBootstrapPurgesExpiredTokenWithoutRefreshToken(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)
	ctx := context.Background()

	userJSON, _ := json.Marshal(b.user(10))
	f.sess.Set(ctx, storage.KeyAccessToken, signedToken(t, time.Now().Add(-time.Hour)))
	f.sess.Set(ctx, storage.KeyUser, string(userJSON))

	if got := f.client.Bootstrap(ctx); got != StateUnauthenticated {
		t.Fatalf("state = %v", got)
	}
	if has(t, f.sess, storage.KeyAccessToken) {
		t.Fatal("expired credentials not purged")
	}
}

func TestLogoutClearsBothScopesAndRevokesServerSide(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)
	ctx := context.Background()

	if _, err := f.client.Login(ctx, "aria@lyrebird.example", "pw", LoginOptions{RememberMe: true}); err != nil {
		t.Fatal(err)
	}

	f.client.Logout(ctx)

	if f.client.State() != StateUnauthenticated {
		t.Fatalf("state = %v", f.client.State())
	}
	if b.logoutAttempts.Load() != 1 {
		t.Fatalf("logout attempts = %d", b.logoutAttempts.Load())
	}
	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUser} {
		if has(t, f.persistent, key) || has(t, f.sess, key) {
			t.Fatalf("%q survived logout", key)
		}
	}
	if !has(t, f.persistent, storage.KeyRememberedEmail) {
		t.Fatal("remembered email lost on logout")
	}
}

func TestUpdateUserCreditsPatchesSnapshot(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)
	ctx := context.Background()

	if _, err := f.client.Login(ctx, "aria@lyrebird.example", "pw", LoginOptions{RememberMe: true}); err != nil {
		t.Fatal(err)
	}

	f.client.UpdateUserCredits(7)

	user, _ := f.client.CurrentUser()
	if user.Credits != 7 {
		t.Fatalf("credits = %d", user.Credits)
	}
	stored, err := f.persistent.Get(ctx, storage.KeyUser)
	if err != nil {
		t.Fatal(err)
	}
	var persisted User
	json.Unmarshal([]byte(stored), &persisted)
	if persisted.Credits != 7 {
		t.Fatalf("persisted credits = %d", persisted.Credits)
	}
}

func TestRefreshRequiresActiveSession(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)
	ctx := context.Background()

	if err := f.client.RefreshAccessToken(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want not authenticated", err)
	}
	if got := b.refreshAttempts.Load(); got != 0 {
		t.Fatalf("backend saw %d refresh calls before login", got)
	}

	if _, err := f.client.Login(ctx, "aria@lyrebird.example", "pw", LoginOptions{RememberMe: true}); err != nil {
		t.Fatal(err)
	}
	if err := f.client.RefreshAccessToken(ctx); err != nil {
		t.Fatalf("refresh after login: %v", err)
	}
	if got := b.refreshAttempts.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
}

func TestLoginBadUserPayloadPurgesStoredCredentials(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)
	ctx := context.Background()

	b.loginBadUser.Store(true)
	if _, err := f.client.Login(ctx, "aria@lyrebird.example", "pw", LoginOptions{RememberMe: true}); err == nil {
		t.Fatal("login with unusable user payload should fail")
	}

	if f.client.State() != StateUnauthenticated {
		t.Fatalf("state = %v", f.client.State())
	}
	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUser} {
		if has(t, f.persistent, key) || has(t, f.sess, key) {
			t.Fatalf("%s survived the failed login", key)
		}
	}
}

func TestClosedClientRejectsOperations(t *testing.T) {
	b := newBackend(t)
	f := newClientFixture(t, b)

	f.client.Close()
	if _, err := f.client.Login(context.Background(), "aria@lyrebird.example", "pw", LoginOptions{}); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("err = %v, want client closed", err)
	}
}
