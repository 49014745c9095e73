package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 10 * time.Second

// TokenSource yields the current access token. It is consulted on every
// attempt so a refresh between attempts is picked up automatically.
type TokenSource interface {
	AccessToken(ctx context.Context) (token string, ok bool)
}

// TokenSourceFunc adapts a function into a [TokenSource].
type TokenSourceFunc func(ctx context.Context) (string, bool)

func (f TokenSourceFunc) AccessToken(ctx context.Context) (string, bool) { return f(ctx) }

// HeaderSource contributes extra request headers, typically the anti-forgery
// token.
type HeaderSource interface {
	Headers() map[string]string
}

// Refresher exchanges the stored refresh token for a new access token and
// persists the result. A nil return means the retry may proceed.
type Refresher interface {
	RefreshTokens(ctx context.Context) error
}

// Recorder observes completed attempts for telemetry.
type Recorder interface {
	TrackAPICall(endpoint, method string, status int, duration time.Duration)
}

// Config assembles a [Client]. Zero values take defaults where noted.
type Config struct {
	BaseURL    string
	Timeout    time.Duration // default 10s
	HTTPClient *http.Client
	Tokens     TokenSource
	CSRF       HeaderSource
	Refresher  Refresher
	Recorder   Recorder
	OnRevoked  func()
	Logger     logrus.FieldLogger
}

// Client is a JSON HTTP client for the platform backend. Safe for concurrent
// use.
type Client struct {
	baseURL   string
	timeout   time.Duration
	http      *http.Client
	tokens    TokenSource
	csrf      HeaderSource
	refresher Refresher
	recorder  Recorder
	onRevoked func()
	logger    logrus.FieldLogger

	refreshGroup singleflight.Group
}

// New builds a [Client] from cfg.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		http:      cfg.HTTPClient,
		tokens:    cfg.Tokens,
		csrf:      cfg.CSRF,
		refresher: cfg.Refresher,
		recorder:  cfg.Recorder,
		onRevoked: cfg.OnRevoked,
		logger:    cfg.Logger,
	}
}

// Get issues a GET request. params may be nil.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

// Post issues a POST request with an optional JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.do(ctx, http.MethodPost, endpoint, body, out)
}

// Put issues a PUT request with an optional JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.do(ctx, http.MethodPut, endpoint, body, out)
}

// Patch issues a PATCH request with an optional JSON body.
func (c *Client) Patch(ctx context.Context, endpoint string, body, out any) error {
	return c.do(ctx, http.MethodPatch, endpoint, body, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodDelete, endpoint, nil, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &Error{
				Message:   "encode request body: " + err.Error(),
				Code:      CodeRequestFailed,
				Timestamp: time.Now(),
			}
		}
	}

	c.logger.WithFields(logrus.Fields{"method": method, "endpoint": endpoint}).Debug("api: request")

	apiErr := c.attempt(ctx, method, endpoint, payload, out)
	if apiErr == nil {
		return nil
	}

	if apiErr.Status != http.StatusUnauthorized {
		return apiErr
	}

	if apiErr.Code == CodeSessionRevoked {
		c.logger.Warn("api: session revoked")
		if c.onRevoked != nil {
			c.onRevoked()
		}
		return apiErr
	}

	if c.refresher == nil {
		return apiErr
	}

	// Coalesce concurrent refreshes; every waiter shares one outcome.
	if _, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.refresher.RefreshTokens(ctx)
	}); err != nil {
		c.logger.WithError(err).Warn("api: token refresh failed")
		return apiErr
	}

	c.logger.Debug("api: token refreshed, retrying request")
	if retryErr := c.attempt(ctx, method, endpoint, payload, out); retryErr != nil {
		return retryErr
	}
	return nil
}

// attempt performs one round trip with freshly built headers and reports the
// outcome to the recorder.
func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, out any) *Error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(endpoint), reader)
	if err != nil {
		return &Error{Message: err.Error(), Code: CodeRequestFailed, Timestamp: time.Now()}
	}

	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		if token, ok := c.tokens.AccessToken(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if c.csrf != nil {
		for k, v := range c.csrf.Headers() {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		apiErr := c.transportError(ctx, err)
		c.record(endpoint, method, apiErr.Status, elapsed)
		return apiErr
	}
	defer resp.Body.Close()

	c.record(endpoint, method, resp.StatusCode, elapsed)
	return c.decode(resp, out)
}

func (c *Client) transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		c.logger.Warn("api: request timeout")
		return &Error{
			Message:   "request timeout",
			Code:      CodeTimeout,
			Status:    http.StatusRequestTimeout,
			Timestamp: time.Now(),
		}
	}
	c.logger.WithError(err).Warn("api: network failure")
	return &Error{
		Message:   "network request failed",
		Code:      CodeNetwork,
		Status:    0,
		Timestamp: time.Now(),
	}
}

func (c *Client) record(endpoint, method string, status int, elapsed time.Duration) {
	if c.recorder != nil {
		c.recorder.TrackAPICall(endpoint, method, status, elapsed)
	}
}

func (c *Client) buildURL(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

// envelope is the standard backend response shape. Error is raw because the
// credit middleware emits it as a bare string instead of an object.
type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	Error     json.RawMessage `json:"error"`
}

type errorBody struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details"`
}

func (c *Client) decode(resp *http.Response, out any) *Error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{
			Message:   "read response: " + err.Error(),
			Code:      CodeRequestFailed,
			Status:    resp.StatusCode,
			Timestamp: time.Now(),
		}
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return &Error{
			Message:   strings.TrimSpace(string(raw)),
			Code:      CodeNonJSON,
			Status:    resp.StatusCode,
			Timestamp: time.Now(),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Error{
			Message:   "parse response: " + err.Error(),
			Code:      CodeNonJSON,
			Status:    resp.StatusCode,
			Timestamp: time.Now(),
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if !env.Success {
			return &Error{
				Message:   "unexpected response format",
				Code:      CodeRequestFailed,
				Status:    resp.StatusCode,
				Timestamp: time.Now(),
			}
		}
		if out != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return &Error{
					Message:   "decode response data: " + err.Error(),
					Code:      CodeRequestFailed,
					Status:    resp.StatusCode,
					Timestamp: time.Now(),
				}
			}
		}
		return nil
	}

	return c.decodeError(resp.StatusCode, raw, env)
}

func (c *Client) decodeError(status int, raw []byte, env envelope) *Error {
	// Bare string error, emitted by the credit gate. The whole payload
	// rides along so callers can show plan and usage information.
	var bare string
	if len(env.Error) > 0 && json.Unmarshal(env.Error, &bare) == nil && bare == CodeInsufficientCredits {
		message := env.Message
		if message == "" {
			message = "Insufficient credits"
		}
		var details map[string]any
		_ = json.Unmarshal(raw, &details)
		apiErr := &Error{
			Message:   message,
			Code:      CodeInsufficientCredits,
			Status:    status,
			Timestamp: time.Now(),
			Details:   details,
		}
		c.logger.WithFields(logrus.Fields{"status": status, "code": apiErr.Code}).Warn("api: " + apiErr.Message)
		return apiErr
	}

	var body errorBody
	if len(env.Error) > 0 && json.Unmarshal(env.Error, &body) == nil && body.Message != "" {
		if body.Status == 0 {
			body.Status = status
		}
		apiErr := &Error{
			Message:   body.Message,
			Code:      body.Code,
			Status:    body.Status,
			Timestamp: time.Now(),
			Details:   body.Details,
		}
		c.logger.WithFields(logrus.Fields{"status": apiErr.Status, "code": apiErr.Code}).Warn("api: " + apiErr.Message)
		return apiErr
	}

	return &Error{
		Message:   "request failed",
		Code:      CodeRequestFailed,
		Status:    status,
		Timestamp: time.Now(),
	}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
