package monitor

import "time"

// Severity classifies security events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is one recorded user or system activity.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Details   map[string]any `json:"details,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id"`
}

// SecurityEvent is a security-relevant record with severity.
type SecurityEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id"`
}

// Security event types mirrored from the backend's taxonomy.
const (
	TypeSuspiciousActivity = "suspicious_activity"
	TypeFailedAuth         = "failed_auth"
	TypeRateLimitHit       = "rate_limit_hit"
	TypeTokenExpired       = "token_expired"
	TypeConcurrentSession  = "concurrent_session"
)

// Stats is a running counter snapshot for the monitoring session.
type Stats struct {
	TotalEvents     int           `json:"total_events"`
	SessionDuration time.Duration `json:"session_duration"`
	PageViews       int           `json:"page_views"`
	APICalls        int           `json:"api_calls"`
	Errors          int           `json:"errors"`
	LastActivity    time.Time     `json:"last_activity"`
}

// Batch is one flush payload.
type Batch struct {
	SessionID      string          `json:"session_id"`
	Activities     []Event         `json:"activities,omitempty"`
	SecurityEvents []SecurityEvent `json:"security_events,omitempty"`
	Stats          *Stats          `json:"stats,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}
