package lyreclient

import (
	"errors"
	"strings"
	"time"
)

// Config defines the tunable behavior of a [Client]. Zero values take the
// documented defaults. Configure once before Build; treat as immutable after.
type Config struct {
	API       APIConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Monitor   MonitorConfig
	CSRF      CSRFConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig points the client at the backend.
type APIConfig struct {
	BaseURL string        // required, e.g. "https://api.lyrebird.example/api"
	Timeout time.Duration // per-request, default 10s
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the idle-timeout state machine.
type SessionConfig struct {
	Timeout       time.Duration // default 30m
	Warning       time.Duration // shown before expiry, default 5m
	CheckInterval time.Duration // periodic re-check cadence, default 60s
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitRule is one attempt budget: MaxAttempts per Window, then locked
// out for BlockDuration.
type RateLimitRule struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// RateLimitConfig overrides the per-purpose attempt budgets. A zero entry
// keeps the built-in default (login 5/15m, register 3/60m, api 100/1m).
type RateLimitConfig struct {
	Login    RateLimitRule
	Register RateLimitRule
	API      RateLimitRule
}

/*
====================================
MONITOR CONFIG
====================================
*/

// MonitorConfig tunes activity telemetry.
type MonitorConfig struct {
	MaxEvents     int           // per-queue cap, drop-oldest; default 100
	FlushInterval time.Duration // default 30s
}

/*
====================================
CSRF CONFIG
====================================
*/

// CSRFConfig controls anti-forgery token handling.
type CSRFConfig struct {
	Disabled bool
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: 10 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// Value semantics; no reference fields today.
	return cfg
}

// Validate rejects configurations that cannot produce a working client.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("config: API.BaseURL is required")
	}
	if c.API.Timeout < 0 {
		return errors.New("config: API.Timeout must not be negative")
	}
	if c.Session.Warning != 0 && c.Session.Timeout != 0 && c.Session.Warning >= c.Session.Timeout {
		return errors.New("config: Session.Warning must be shorter than Session.Timeout")
	}
	for _, rl := range []RateLimitRule{c.RateLimit.Login, c.RateLimit.Register, c.RateLimit.API} {
		if rl.MaxAttempts < 0 || rl.Window < 0 || rl.BlockDuration < 0 {
			return errors.New("config: rate limit values must not be negative")
		}
	}
	if c.Monitor.MaxEvents < 0 {
		return errors.New("config: Monitor.MaxEvents must not be negative")
	}
	return nil
}
