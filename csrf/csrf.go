// Package csrf manages the double-submit anti-forgery token attached to every
// mutating API request.
//
// One token is current at a time, cached in the session storage scope with a
// fetch timestamp and refreshed from the backend when older than an hour. A
// fetch failure degrades to a locally generated random token instead of
// blocking the application; the server will reject it, but request flow stays
// alive. That trade-off is deliberate and must not be "fixed" into a hard
// failure.
package csrf

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/lyrebirdhq/lyreclient/storage"
)

// HeaderName is the request header carrying the token.
const HeaderName = "X-CSRF-Token"

const tokenTTL = time.Hour

// Protection holds the process-wide CSRF token. Safe for concurrent use.
type Protection struct {
	baseURL string
	http    *http.Client
	store   storage.Store // session scope
	clock   clock.Clock
	logger  logrus.FieldLogger

	mu    sync.RWMutex
	token string
}

// New creates a [Protection]. store must be the session-scope store; the
// token never lands in persistent storage.
func New(baseURL string, httpClient *http.Client, store storage.Store, clk clock.Clock, logger logrus.FieldLogger) *Protection {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Protection{
		baseURL: baseURL,
		http:    httpClient,
		store:   store,
		clock:   clk,
		logger:  logger,
	}
}

// Initialize loads the cached token, fetching a fresh one when it is absent
// or older than an hour. It never fails: fetch errors fall back to a locally
// generated token.
func (p *Protection) Initialize(ctx context.Context) {
	cached, err := p.store.Get(ctx, storage.KeyCSRFToken)
	if err == nil && !p.expired(ctx) {
		p.mu.Lock()
		p.token = cached
		p.mu.Unlock()
		return
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		p.logger.WithError(err).Warn("csrf: cached token read failed")
	}

	p.fetch(ctx)
}

// Refresh force-fetches a new token with the same fallback behavior as
// Initialize.
func (p *Protection) Refresh(ctx context.Context) {
	p.fetch(ctx)
}

func (p *Protection) fetch(ctx context.Context) {
	token, err := p.fetchFromServer(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("csrf: token fetch failed, generating client fallback")
		token = p.generateFallback()
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()

	if err := p.store.Set(ctx, storage.KeyCSRFToken, token); err != nil {
		p.logger.WithError(err).Warn("csrf: token cache write failed")
	}
	stamp := strconv.FormatInt(p.clock.Now().UnixMilli(), 10)
	if err := p.store.Set(ctx, storage.KeyCSRFTimestamp, stamp); err != nil {
		p.logger.WithError(err).Warn("csrf: token timestamp write failed")
	}
}

func (p *Protection) fetchFromServer(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/csrf-token", nil)
	if err != nil {
		return "", err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("csrf: token endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", errors.New("csrf: empty token in response")
	}
	return body.Token, nil
}

func (p *Protection) generateFallback() string {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// crypto/rand never fails on supported platforms; keep the request
		// path alive regardless.
		return "fallback-" + strconv.FormatInt(p.clock.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(raw[:])
}

// expired is evaluated lazily against the stored fetch timestamp; there is no
// expiry timer.
func (p *Protection) expired(ctx context.Context) bool {
	raw, err := p.store.Get(ctx, storage.KeyCSRFTimestamp)
	if err != nil {
		return true
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	return p.clock.Now().Sub(time.UnixMilli(millis)) > tokenTTL
}

// Token returns the current token, or "".
func (p *Protection) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.token
}

// Headers returns the header map to merge into mutating requests. Empty when
// no token has been obtained yet; callers must tolerate absence on the first
// request.
func (p *Protection) Headers() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.token == "" {
		return map[string]string{}
	}
	return map[string]string{HeaderName: p.token}
}

// ValidateFormToken reports whether candidate equals the current token.
func (p *Protection) ValidateFormToken(candidate string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.token != "" && candidate == p.token
}

// Clear drops the token and its cached copy. Called on logout.
func (p *Protection) Clear(ctx context.Context) {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()

	_ = p.store.Delete(ctx, storage.KeyCSRFToken)
	_ = p.store.Delete(ctx, storage.KeyCSRFTimestamp)
}
