package monitor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config controls queue bounds and flush cadence.
type Config struct {
	MaxEvents     int           // per-queue cap, drop-oldest; default 100
	FlushInterval time.Duration // default 30s
}

const (
	defaultMaxEvents     = 100
	defaultFlushInterval = 30 * time.Second
)

// Monitor records activity and security events for the current session.
// Start and Stop are idempotent. All methods are safe for concurrent use.
type Monitor struct {
	cfg    Config
	sink   Sink
	source Source
	clock  clock.Clock
	logger logrus.FieldLogger

	mu         sync.Mutex
	active     bool
	sessionID  string
	userID     string
	startedAt  time.Time
	activities []Event
	security   []SecurityEvent
	stats      Stats

	flushTicker *clock.Ticker
	flushDone   chan struct{}
	unsubscribe func()
}

// New creates a [Monitor]. A nil sink drops batches; a nil source delivers
// no host signals (explicit tracking calls still work).
func New(cfg Config, sink Sink, source Source, clk clock.Clock, logger logrus.FieldLogger) *Monitor {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaultMaxEvents
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if sink == nil {
		sink = NoopSink{}
	}
	if source == nil {
		source = NoopSource{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Monitor{
		cfg:    cfg,
		sink:   sink,
		source: source,
		clock:  clk,
		logger: logger,
	}
}

// Start begins monitoring for the given user. No-op when already active.
func (m *Monitor) Start(userID string) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.sessionID = "session_" + uuid.NewString()
	m.userID = userID
	m.startedAt = m.clock.Now()
	m.stats = Stats{LastActivity: m.startedAt}

	m.flushTicker = m.clock.Ticker(m.cfg.FlushInterval)
	m.flushDone = make(chan struct{})
	ticker, done := m.flushTicker, m.flushDone
	m.mu.Unlock()

	unsubscribe := m.source.Subscribe(m.handleSignal)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := m.Flush(context.Background()); err != nil {
					m.logger.WithError(err).Warn("monitor: periodic flush failed")
				}
			case <-done:
				return
			}
		}
	}()

	m.TrackActivity("session_start", map[string]any{
		"user_id": userID,
	})
	m.logger.WithField("session_id", m.SessionID()).Debug("monitor: started")
}

// Stop records session_end, performs a final flush, detaches the source, and
// cancels the flush loop. No-op when inactive.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	duration := m.clock.Now().Sub(m.startedAt)
	total := m.stats.TotalEvents
	m.mu.Unlock()

	m.TrackActivity("session_end", map[string]any{
		"session_duration_ms": duration.Milliseconds(),
		"total_events":        total,
	})

	if err := m.Flush(context.Background()); err != nil {
		m.logger.WithError(err).Warn("monitor: final flush failed")
	}

	m.mu.Lock()
	m.active = false
	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.flushDone)
		m.flushTicker = nil
	}
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.logger.Debug("monitor: stopped")
}

// Active reports whether monitoring is running.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active
}

// SessionID returns the current monitoring session id.
func (m *Monitor) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessionID
}

// TrackActivity records one sanitized activity event. Dropped when inactive.
func (m *Monitor) TrackActivity(eventType string, details map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}

	now := m.clock.Now()
	m.activities = append(m.activities, Event{
		Timestamp: now,
		Type:      eventType,
		Details:   SanitizeDetails(details),
		UserID:    m.userID,
		SessionID: m.sessionID,
	})
	m.stats.TotalEvents++
	m.stats.LastActivity = now

	if len(m.activities) > m.cfg.MaxEvents {
		m.activities = m.activities[len(m.activities)-m.cfg.MaxEvents:]
	}
}

// TrackSecurityEvent records one sanitized security event. Critical severity
// triggers an immediate out-of-band flush of the security queue only.
func (m *Monitor) TrackSecurityEvent(eventType string, severity Severity, details map[string]any) {
	m.mu.Lock()
	m.security = append(m.security, SecurityEvent{
		Timestamp: m.clock.Now(),
		Type:      eventType,
		Severity:  severity,
		Details:   SanitizeDetails(details),
		UserID:    m.userID,
		SessionID: m.sessionID,
	})
	if len(m.security) > m.cfg.MaxEvents {
		m.security = m.security[len(m.security)-m.cfg.MaxEvents:]
	}
	m.mu.Unlock()

	if severity == SeverityCritical {
		if err := m.FlushSecurity(context.Background()); err != nil {
			m.logger.WithError(err).Warn("monitor: critical security flush failed")
		}
	}
}

// TrackPageView records a page_view activity.
func (m *Monitor) TrackPageView(path string) {
	m.mu.Lock()
	m.stats.PageViews++
	m.mu.Unlock()

	m.TrackActivity("page_view", map[string]any{
		"path": path,
	})
}

// TrackAPICall records an api_call activity. Statuses >= 400 additionally
// emit a failed_auth security event: high for 5xx, medium for 401/403, low
// for other 4xx.
func (m *Monitor) TrackAPICall(endpoint, method string, status int, duration time.Duration) {
	m.mu.Lock()
	m.stats.APICalls++
	m.mu.Unlock()

	m.TrackActivity("api_call", map[string]any{
		"endpoint":    endpoint,
		"method":      method,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
		"success":     status < 400,
	})

	if status < 400 {
		return
	}

	severity := SeverityLow
	switch {
	case status >= 500:
		severity = SeverityHigh
	case status == 401 || status == 403:
		severity = SeverityMedium
	}
	m.TrackSecurityEvent(TypeFailedAuth, severity, map[string]any{
		"endpoint": endpoint,
		"method":   method,
		"status":   status,
	})
}

func (m *Monitor) handleSignal(sig Signal) {
	switch sig.Kind {
	case KindVisibility:
		m.TrackActivity("visibility_change", sig.Details)
	case KindNavigation:
		path, _ := sig.Details["path"].(string)
		m.TrackPageView(path)
	case KindUnload:
		m.TrackActivity("page_unload", sig.Details)
		if err := m.Flush(context.Background()); err != nil {
			m.logger.WithError(err).Warn("monitor: unload flush failed")
		}
	case KindClick:
		if interactiveClick(sig.Details) {
			m.TrackActivity("user_click", sig.Details)
		}
	case KindKeyCombo:
		if modifierHeld(sig.Details) {
			m.TrackActivity("keyboard_shortcut", sig.Details)
		}
	case KindError:
		m.recordClientError(sig.Details)
	case KindRejection:
		details := SanitizeDetails(sig.Details)
		if details == nil {
			details = map[string]any{}
		}
		details["type"] = "unhandled_promise_rejection"
		m.recordClientError(details)
	case KindConnectivity:
		if online, _ := sig.Details["online"].(bool); online {
			m.TrackActivity("network_online", nil)
		} else {
			m.TrackActivity("network_offline", nil)
		}
	}
}

func (m *Monitor) recordClientError(details map[string]any) {
	m.mu.Lock()
	m.stats.Errors++
	m.mu.Unlock()

	m.TrackSecurityEvent(TypeSuspiciousActivity, SeverityMedium, details)
}

// Interactive elements only; everything else is noise.
func interactiveClick(details map[string]any) bool {
	element, _ := details["element"].(string)
	role, _ := details["role"].(string)
	switch element {
	case "button", "a":
		return true
	}
	return role == "button"
}

func modifierHeld(details map[string]any) bool {
	for _, key := range []string{"ctrl", "meta", "alt"} {
		if held, _ := details[key].(bool); held {
			return true
		}
	}
	return false
}

// Flush sends both queues to the sink. On success the flushed entries are
// cleared; on failure they are restored for the next tick (newer events keep
// priority under the queue cap).
func (m *Monitor) Flush(ctx context.Context) error {
	m.mu.Lock()
	if len(m.activities) == 0 && len(m.security) == 0 {
		m.mu.Unlock()
		return nil
	}
	activities := m.activities
	security := m.security
	stats := m.stats
	stats.SessionDuration = m.clock.Now().Sub(m.startedAt)
	batch := Batch{
		SessionID:      m.sessionID,
		Activities:     activities,
		SecurityEvents: security,
		Stats:          &stats,
		Timestamp:      m.clock.Now(),
	}
	m.activities = nil
	m.security = nil
	m.mu.Unlock()

	if err := m.sink.Flush(ctx, batch); err != nil {
		m.restore(activities, security)
		return err
	}
	return nil
}

// FlushSecurity sends only the security queue, leaving activities untouched.
func (m *Monitor) FlushSecurity(ctx context.Context) error {
	m.mu.Lock()
	if len(m.security) == 0 {
		m.mu.Unlock()
		return nil
	}
	security := m.security
	batch := Batch{
		SessionID:      m.sessionID,
		SecurityEvents: security,
		Timestamp:      m.clock.Now(),
	}
	m.security = nil
	m.mu.Unlock()

	if err := m.sink.Flush(ctx, batch); err != nil {
		m.restore(nil, security)
		return err
	}
	return nil
}

func (m *Monitor) restore(activities []Event, security []SecurityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(activities) > 0 {
		m.activities = append(activities, m.activities...)
		if len(m.activities) > m.cfg.MaxEvents {
			m.activities = m.activities[len(m.activities)-m.cfg.MaxEvents:]
		}
	}
	if len(security) > 0 {
		m.security = append(security, m.security...)
		if len(m.security) > m.cfg.MaxEvents {
			m.security = m.security[len(m.security)-m.cfg.MaxEvents:]
		}
	}
}

// RecentActivities returns up to n most recent activity events.
func (m *Monitor) RecentActivities(n int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.activities) {
		n = len(m.activities)
	}
	out := make([]Event, n)
	copy(out, m.activities[len(m.activities)-n:])
	return out
}

// RecentSecurityEvents returns up to n most recent security events.
func (m *Monitor) RecentSecurityEvents(n int) []SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.security) {
		n = len(m.security)
	}
	out := make([]SecurityEvent, n)
	copy(out, m.security[len(m.security)-n:])
	return out
}

// StatsSnapshot returns current counters with a live session duration.
func (m *Monitor) StatsSnapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	if m.active {
		stats.SessionDuration = m.clock.Now().Sub(m.startedAt)
	}
	return stats
}
