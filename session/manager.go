package session

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/lyrebirdhq/lyreclient/storage"
)

// ExpireReason carries why the session ended into the expiry hook.
type ExpireReason string

const (
	// ReasonIdle is reached when idle time hits the configured timeout.
	ReasonIdle ExpireReason = "idle_timeout"
	// ReasonPromptDeclined is reached when the user declines (or dismisses)
	// the continue/end warning.
	ReasonPromptDeclined ExpireReason = "prompt_declined"
	// ReasonValidationFailed is reached when backend re-validation rejects
	// the session.
	ReasonValidationFailed ExpireReason = "validation_failed"
)

// Source delivers user-activity pulses (mouse, keyboard, scroll, touch,
// click, focus). Subscribe returns a cancel function.
type Source interface {
	Subscribe(fn func()) (cancel func())
}

// NoopSource never delivers activity.
type NoopSource struct{}

func (NoopSource) Subscribe(func()) func() { return func() {} }

// FuncSource adapts a subscribe function into a [Source].
type FuncSource func(fn func()) (cancel func())

func (f FuncSource) Subscribe(fn func()) func() { return f(fn) }

// Prompter presents the blocking continue/end confirmation at warning time.
// Returning true extends the session; false ends it.
type Prompter interface {
	ConfirmExtend(remaining time.Duration) bool
}

// PrompterFunc adapts a function into a [Prompter].
type PrompterFunc func(remaining time.Duration) bool

func (f PrompterFunc) ConfirmExtend(remaining time.Duration) bool { return f(remaining) }

// Validator re-validates the session against the backend during long idle
// stretches. A non-nil error expires the session.
type Validator interface {
	ValidateSession(ctx context.Context) error
}

// Config holds idle-timeout tuning. Zero values take the defaults.
type Config struct {
	Timeout       time.Duration // default 30m
	Warning       time.Duration // default 5m
	CheckInterval time.Duration // default 60s
}

const (
	defaultTimeout       = 30 * time.Minute
	defaultWarning       = 5 * time.Minute
	defaultCheckInterval = time.Minute

	activityThrottle = time.Second
	freshStartGrace  = 5 * time.Second
	revalidateEvery  = 10 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Warning <= 0 || c.Warning >= c.Timeout {
		c.Warning = defaultWarning
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultCheckInterval
	}
	return c
}

// Info is a point-in-time session snapshot for status displays.
type Info struct {
	Active        bool
	LastActivity  time.Time
	TimeRemaining time.Duration
	WarningShown  bool
}

// Manager runs the idle-timeout state machine. Safe for concurrent use.
type Manager struct {
	cfg       Config
	clock     clock.Clock
	source    Source
	prompter  Prompter
	validator Validator
	onExpire  func(ExpireReason)
	store     storage.Store // session scope, fresh-start marker only
	logger    logrus.FieldLogger

	mu           sync.Mutex
	active       bool
	expired      bool
	lastActivity time.Time
	warningShown bool
	warningTimer *clock.Timer
	timeoutTimer *clock.Timer
	checkTicker  *clock.Ticker
	checkDone    chan struct{}
	unsubscribe  func()
	listeners    map[int]func()
	nextListener int
}

// New creates a [Manager]. onExpire is invoked exactly once per session end
// that is not an explicit Stop; the caller owns clearing credentials there.
func New(cfg Config, clk clock.Clock, source Source, prompter Prompter, validator Validator, store storage.Store, onExpire func(ExpireReason), logger logrus.FieldLogger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if source == nil {
		source = NoopSource{}
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Manager{
		cfg:       cfg.withDefaults(),
		clock:     clk,
		source:    source,
		prompter:  prompter,
		validator: validator,
		onExpire:  onExpire,
		store:     store,
		logger:    logger,
		listeners: make(map[int]func()),
	}
}

// Start arms the state machine. No-op when already active. A fresh-start
// marker is persisted so the periodic check does not expire the session right
// after a host restart with residual timers.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.expired = false
	m.warningShown = false
	m.lastActivity = m.clock.Now()

	m.scheduleLocked()

	m.checkTicker = m.clock.Ticker(m.cfg.CheckInterval)
	m.checkDone = make(chan struct{})
	ticker, done := m.checkTicker, m.checkDone
	m.mu.Unlock()

	if m.store != nil {
		stamp := strconv.FormatInt(m.clock.Now().UnixMilli(), 10)
		if err := m.store.Set(context.Background(), storage.KeySessionStart, stamp); err != nil {
			m.logger.WithError(err).Warn("session: start marker write failed")
		}
	}

	unsubscribe := m.source.Subscribe(m.handleActivity)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				m.periodicCheck()
			case <-done:
				return
			}
		}
	}()

	m.logger.WithField("timeout", m.cfg.Timeout).Debug("session: manager started")
}

// Stop disarms timers and listeners. It deliberately leaves credential
// storage alone; logout bundles that separately.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.stopLocked()
	m.mu.Unlock()

	m.logger.Debug("session: manager stopped")
}

// caller holds m.mu
func (m *Manager) stopLocked() {
	m.active = false
	m.cancelTimersLocked()
	if m.checkTicker != nil {
		m.checkTicker.Stop()
		close(m.checkDone)
		m.checkTicker = nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Active reports whether the state machine is armed.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active
}

// handleActivity throttles to one accepted event per second; each accepted
// event clears the warning state, advances lastActivity, and reschedules
// both timers. This is a correctness bound on timer churn, not a tweak.
func (m *Manager) handleActivity() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	if now.Sub(m.lastActivity) < activityThrottle {
		m.mu.Unlock()
		return
	}
	m.lastActivity = now
	m.warningShown = false
	m.scheduleLocked()
	listeners := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		m.notify(fn)
	}
}

func (m *Manager) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("panic", r).Error("session: listener panicked")
		}
	}()
	fn()
}

// caller holds m.mu
func (m *Manager) scheduleLocked() {
	m.cancelTimersLocked()

	warnAfter := m.cfg.Timeout - m.cfg.Warning
	m.warningTimer = m.clock.AfterFunc(warnAfter, m.showWarning)
	m.timeoutTimer = m.clock.AfterFunc(m.cfg.Timeout, func() {
		m.expire(ReasonIdle)
	})
}

// caller holds m.mu
func (m *Manager) cancelTimersLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
		m.warningTimer = nil
	}
	if m.timeoutTimer != nil {
		m.timeoutTimer.Stop()
		m.timeoutTimer = nil
	}
}

func (m *Manager) showWarning() {
	m.mu.Lock()
	if !m.active || m.warningShown {
		m.mu.Unlock()
		return
	}
	m.warningShown = true
	prompter := m.prompter
	remaining := m.cfg.Warning
	m.mu.Unlock()

	if prompter == nil {
		// Nothing to ask; the timeout timer decides.
		return
	}

	if prompter.ConfirmExtend(remaining) {
		m.ExtendSession()
		return
	}
	m.expire(ReasonPromptDeclined)
}

// ExtendSession resets the idle clock, as if the user had just acted.
func (m *Manager) ExtendSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}
	m.lastActivity = m.clock.Now()
	m.warningShown = false
	m.scheduleLocked()
}

func (m *Manager) expire(reason ExpireReason) {
	m.mu.Lock()
	if !m.active || m.expired {
		m.mu.Unlock()
		return
	}
	m.expired = true
	m.stopLocked()
	hook := m.onExpire
	m.mu.Unlock()

	m.logger.WithField("reason", string(reason)).Info("session: expired")
	if hook != nil {
		hook(reason)
	}
}

// periodicCheck re-derives idle time independent of the scheduled timers
// (defensive against suspended hosts) and re-validates the token roughly
// every ten minutes of idle time. The cadence is a modulo heartbeat — it may
// skip or repeat under timer drift, and that is acceptable.
func (m *Manager) periodicCheck() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	idle := now.Sub(m.lastActivity)
	validator := m.validator
	m.mu.Unlock()

	if m.freshStart(now) {
		return
	}

	if idle >= m.cfg.Timeout {
		m.expire(ReasonIdle)
		return
	}

	if validator != nil && idle%revalidateEvery < m.cfg.CheckInterval && idle >= m.cfg.CheckInterval {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CheckInterval)
		err := validator.ValidateSession(ctx)
		cancel()
		if err != nil {
			m.logger.WithError(err).Warn("session: backend validation failed")
			m.expire(ReasonValidationFailed)
		}
	}
}

// freshStart suppresses the periodic timeout decision for the first seconds
// after Start, so residual timers surviving a host reload cannot expire a
// session that just resumed.
func (m *Manager) freshStart(now time.Time) bool {
	if m.store == nil {
		return false
	}
	raw, err := m.store.Get(context.Background(), storage.KeySessionStart)
	if err != nil {
		return false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return now.Sub(time.UnixMilli(millis)) < freshStartGrace
}

// AddListener registers a callback notified on every accepted activity
// event. The returned cancel function removes it. Listener panics are caught
// and logged, never propagated.
func (m *Manager) AddListener(fn func()) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// InfoSnapshot returns the session status for UI displays.
func (m *Manager) InfoSnapshot() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := m.cfg.Timeout - m.clock.Now().Sub(m.lastActivity)
	if remaining < 0 || !m.active {
		remaining = 0
	}
	return Info{
		Active:        m.active,
		LastActivity:  m.lastActivity,
		TimeRemaining: remaining,
		WarningShown:  m.warningShown,
	}
}
