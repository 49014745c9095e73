package lyreclient

import (
	"io"
	"net/http"

	"github.com/lyrebirdhq/lyreclient/internal/monitor"
)

// User is the account snapshot the backend returns with every session.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Credits      int    `json:"credits"`
	Subscription string `json:"subscription,omitempty"`
	VoiceSlots   int    `json:"voiceSlots,omitempty"`
}

// State is the client's authentication state.
type State int

const (
	// StateUnauthenticated means no session is in effect.
	StateUnauthenticated State = iota
	// StateValidating means a saved session is being confirmed with the
	// backend.
	StateValidating
	// StateAuthenticated means a session is in effect. It may be degraded:
	// backend confirmation can still be pending after a transient failure.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Telemetry aliases. The queueing machinery lives in internal/monitor; these
// give integrators the types needed to implement sinks and sources without
// reaching into internal packages.
type (
	TelemetrySink  = monitor.Sink
	TelemetryEvent = monitor.Event
	SecurityEvent  = monitor.SecurityEvent
	TelemetryBatch = monitor.Batch
	TelemetryStats = monitor.Stats
	Severity       = monitor.Severity

	MonitorSignal     = monitor.Signal
	MonitorSignalKind = monitor.Kind
	MonitorSource     = monitor.Source
	MonitorFuncSource = monitor.FuncSource
)

const (
	SeverityLow      = monitor.SeverityLow
	SeverityMedium   = monitor.SeverityMedium
	SeverityHigh     = monitor.SeverityHigh
	SeverityCritical = monitor.SeverityCritical
)

const (
	SignalVisibility   = monitor.KindVisibility
	SignalNavigation   = monitor.KindNavigation
	SignalUnload       = monitor.KindUnload
	SignalClick        = monitor.KindClick
	SignalKeyCombo     = monitor.KindKeyCombo
	SignalError        = monitor.KindError
	SignalRejection    = monitor.KindRejection
	SignalConnectivity = monitor.KindConnectivity
)

// NewChannelTelemetrySink buffers flushed batches on a channel, mainly for
// tests and in-process consumers.
func NewChannelTelemetrySink(buffer int) *monitor.ChannelSink {
	return monitor.NewChannelSink(buffer)
}

// NewJSONTelemetrySink writes each flushed batch as one JSON line.
func NewJSONTelemetrySink(w io.Writer) *monitor.JSONWriterSink {
	return monitor.NewJSONWriterSink(w)
}

// NewHTTPTelemetrySink posts flushed batches to url as JSON.
func NewHTTPTelemetrySink(url string, client *http.Client) *monitor.HTTPSink {
	return monitor.NewHTTPSink(url, client)
}
