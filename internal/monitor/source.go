package monitor

// Kind identifies a host signal delivered to the monitor.
type Kind string

const (
	KindVisibility   Kind = "visibility"
	KindNavigation   Kind = "navigation"
	KindUnload       Kind = "unload"
	KindClick        Kind = "click"
	KindKeyCombo     Kind = "key_combo"
	KindError        Kind = "error"
	KindRejection    Kind = "rejection"
	KindConnectivity Kind = "connectivity"
)

// Signal is one host event. Details are signal-specific: clicks carry
// element/text/id, navigation carries path, connectivity carries online.
type Signal struct {
	Kind    Kind
	Details map[string]any
}

// Source feeds host signals to a subscriber. Subscribe returns a cancel
// function; the monitor calls it on Stop. Implementations adapt whatever
// runtime hosts the SDK (a headless agent, a webview bridge, a test harness).
type Source interface {
	Subscribe(fn func(Signal)) (cancel func())
}

// NoopSource never delivers signals.
type NoopSource struct{}

func (NoopSource) Subscribe(func(Signal)) func() { return func() {} }

// FuncSource adapts a subscribe function into a [Source].
type FuncSource func(fn func(Signal)) (cancel func())

func (f FuncSource) Subscribe(fn func(Signal)) func() { return f(fn) }
