package lyreclient

import (
	"errors"
	"io"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/lyrebirdhq/lyreclient/api"
	"github.com/lyrebirdhq/lyreclient/csrf"
	"github.com/lyrebirdhq/lyreclient/internal/monitor"
	"github.com/lyrebirdhq/lyreclient/internal/rate"
	"github.com/lyrebirdhq/lyreclient/session"
	"github.com/lyrebirdhq/lyreclient/storage"
)

// Builder assembles a [Client]. Configure via the With* chain, then call
// Build exactly once.
type Builder struct {
	config Config

	persistent storage.Store
	sessStore  storage.Store

	sink    TelemetrySink
	logger  logrus.FieldLogger
	clk     clock.Clock
	http    *http.Client
	prompt  session.Prompter
	motion  session.Source
	signals MonitorSource

	built bool
}

// New returns a Builder seeded with defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage sets the credential stores. persistent survives restarts
// ("remember me"); sess lives for one application run. Both default to
// in-memory stores.
func (b *Builder) WithStorage(persistent, sess storage.Store) *Builder {
	b.persistent = persistent
	b.sessStore = sess
	return b
}

// WithTelemetrySink sets where flushed activity batches go. Defaults to a
// no-op sink.
func (b *Builder) WithTelemetrySink(sink TelemetrySink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to a discard logger.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithClock injects the time source, used by tests.
func (b *Builder) WithClock(clk clock.Clock) *Builder {
	b.clk = clk
	return b
}

// WithHTTPClient sets the underlying HTTP client for API, CSRF, and
// telemetry traffic.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.http = client
	return b
}

// WithPrompter sets the session-warning confirmation hook. Without one the
// session simply expires when the idle timeout elapses.
func (b *Builder) WithPrompter(p session.Prompter) *Builder {
	b.prompt = p
	return b
}

// WithActivitySource feeds user-activity pulses (mouse, keyboard, touch)
// into the idle-timeout state machine.
func (b *Builder) WithActivitySource(src session.Source) *Builder {
	b.motion = src
	return b
}

// WithMonitorSource feeds host signals (visibility, navigation, errors,
// connectivity) into activity telemetry.
func (b *Builder) WithMonitorSource(src MonitorSource) *Builder {
	b.signals = src
	return b
}

// Build validates the configuration and assembles the client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	b.built = true

	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	clk := b.clk
	if clk == nil {
		clk = clock.New()
	}
	httpClient := b.http
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	persistent := b.persistent
	if persistent == nil {
		persistent = storage.NewMemoryStore()
	}
	sessStore := b.sessStore
	if sessStore == nil {
		sessStore = storage.NewMemoryStore()
	}
	dual := storage.NewDual(persistent, sessStore)

	limiter := rate.New(clk)
	limiter.StartSweep()

	var protection *csrf.Protection
	if !b.config.CSRF.Disabled {
		protection = csrf.New(b.config.API.BaseURL, httpClient, dual.Session(), clk, logger)
	}

	sink := b.sink
	if sink == nil {
		sink = monitor.NoopSink{}
	}
	signals := b.signals
	if signals == nil {
		signals = monitor.NoopSource{}
	}
	mon := monitor.New(monitor.Config{
		MaxEvents:     b.config.Monitor.MaxEvents,
		FlushInterval: b.config.Monitor.FlushInterval,
	}, sink, signals, clk, logger)

	c := &Client{
		config:  b.config,
		dual:    dual,
		limiter: limiter,
		csrf:    protection,
		monitor: mon,
		clock:   clk,
		logger:  logger,
	}

	var headers api.HeaderSource
	if protection != nil {
		headers = protection
	}
	tokens := api.TokenSourceFunc(c.readAccessToken)

	// The bare transport never auto-refreshes; auth flows handle their own
	// 401s. The full transport retries once after a coordinated refresh.
	bare := api.New(api.Config{
		BaseURL:    b.config.API.BaseURL,
		Timeout:    b.config.API.Timeout,
		HTTPClient: httpClient,
		Tokens:     tokens,
		CSRF:       headers,
		Recorder:   mon,
		Logger:     logger,
	})
	full := api.New(api.Config{
		BaseURL:    b.config.API.BaseURL,
		Timeout:    b.config.API.Timeout,
		HTTPClient: httpClient,
		Tokens:     tokens,
		CSRF:       headers,
		Recorder:   mon,
		Refresher:  refresher{c},
		OnRevoked:  c.handleRevoked,
		Logger:     logger,
	})
	c.transport = full
	c.auth = api.NewAuthAPI(bare)
	c.music = api.NewMusicAPI(full)

	c.session = session.New(session.Config{
		Timeout:       b.config.Session.Timeout,
		Warning:       b.config.Session.Warning,
		CheckInterval: b.config.Session.CheckInterval,
	}, clk, defaultSource(b.motion), b.prompt, backendValidator{c}, dual.Session(), c.handleSessionExpiry, logger)

	return c, nil
}

func defaultSource(src session.Source) session.Source {
	if src == nil {
		return session.NoopSource{}
	}
	return src
}
