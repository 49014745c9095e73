package rate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Config holds the attempt budget for one purpose.
type Config struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Default per-purpose budgets. The purpose is the key segment before the
// first underscore ("login_alice@example.com" -> "login"); unknown purposes
// fall back to the generic api budget.
var defaultConfigs = map[string]Config{
	"login": {
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: 15 * time.Minute,
	},
	"register": {
		MaxAttempts:   3,
		Window:        time.Hour,
		BlockDuration: time.Hour,
	},
	"api": {
		MaxAttempts:   100,
		Window:        time.Minute,
		BlockDuration: time.Minute,
	},
}

const (
	sweepInterval = time.Hour
	sweepMaxAge   = 24 * time.Hour
)

type state struct {
	attempts     int
	firstAttempt time.Time
	blockedUntil time.Time
}

// Limiter enforces per-key attempt budgets with lockout. All methods are safe
// for concurrent use and never fail: missing state means "allowed".
type Limiter struct {
	clock clock.Clock

	mu     sync.Mutex
	states map[string]*state

	sweepTicker *clock.Ticker
	sweepDone   chan struct{}
	closeOnce   sync.Once
}

// New creates a [Limiter] on the given clock.
func New(clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{
		clock:  clk,
		states: make(map[string]*state),
	}
}

func resolveConfig(key string, cfg []Config) Config {
	if len(cfg) > 0 {
		return cfg[0]
	}
	purpose := key
	if i := strings.IndexByte(key, '_'); i >= 0 {
		purpose = key[:i]
	}
	if c, ok := defaultConfigs[purpose]; ok {
		return c
	}
	return defaultConfigs["api"]
}

// CanAttempt reports whether the action is currently allowed for the key.
func (l *Limiter) CanAttempt(key string, cfg ...Config) bool {
	c := resolveConfig(key, cfg)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[key]
	if !ok {
		l.states[key] = &state{firstAttempt: now}
		return true
	}

	if st.blockedUntil.After(now) {
		return false
	}

	if now.Sub(st.firstAttempt) > c.Window {
		l.states[key] = &state{firstAttempt: now}
		return true
	}

	return st.attempts < c.MaxAttempts
}

// RecordAttempt counts one attempt against the key. Reaching the budget sets
// the block deadline.
func (l *Limiter) RecordAttempt(key string, cfg ...Config) {
	c := resolveConfig(key, cfg)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[key]
	if !ok {
		st = &state{firstAttempt: now}
		l.states[key] = st
	}

	st.attempts++
	if st.attempts >= c.MaxAttempts {
		st.blockedUntil = now.Add(c.BlockDuration)
	}
}

// RemainingAttempts returns how many attempts the key has left in the current
// window. An expired window counts as a full reset.
func (l *Limiter) RemainingAttempts(key string, cfg ...Config) int {
	c := resolveConfig(key, cfg)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[key]
	if !ok {
		return c.MaxAttempts
	}
	if now.Sub(st.firstAttempt) > c.Window {
		return c.MaxAttempts
	}

	remaining := c.MaxAttempts - st.attempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeUntilUnblocked returns how long until a blocked key is allowed again,
// or zero if the key is not blocked.
func (l *Limiter) TimeUntilUnblocked(key string) time.Duration {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[key]
	if !ok || st.blockedUntil.IsZero() {
		return 0
	}

	d := st.blockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// TimeRemainingText renders the remaining block time for user-facing errors:
// minutes below an hour, hours otherwise, "" when not blocked.
func (l *Limiter) TimeRemainingText(key string) string {
	d := l.TimeUntilUnblocked(key)
	if d == 0 {
		return ""
	}

	minutes := int((d + time.Minute - 1) / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%d %s", minutes, plural("minute", minutes))
	}

	hours := (minutes + 59) / 60
	return fmt.Sprintf("%d %s", hours, plural("hour", hours))
}

func plural(unit string, n int) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

// Reset deletes all state for the key. Called after a successful attempt.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.states, key)
}

// Sweep deletes entries idle for more than 24 hours whose block has also
// expired. Housekeeping only; correctness never depends on it.
func (l *Limiter) Sweep() {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, st := range l.states {
		if now.Sub(st.firstAttempt) > sweepMaxAge && st.blockedUntil.Before(now) {
			delete(l.states, key)
		}
	}
}

// StartSweep runs [Limiter.Sweep] hourly until Close.
func (l *Limiter) StartSweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sweepTicker != nil {
		return
	}
	l.sweepTicker = l.clock.Ticker(sweepInterval)
	l.sweepDone = make(chan struct{})

	go func(ticker *clock.Ticker, done chan struct{}) {
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-done:
				return
			}
		}
	}(l.sweepTicker, l.sweepDone)
}

// Close stops the sweep goroutine. Idempotent.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.sweepTicker != nil {
			l.sweepTicker.Stop()
			close(l.sweepDone)
		}
	})
}

// Len reports the number of tracked keys. Test hook.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.states)
}
