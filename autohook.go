package autohook

import (
	"context"
	"net/http"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-autohook/auth"
	"github.com/goliatone/go-autohook/core"
	"github.com/goliatone/go-autohook/inbound"
	"github.com/goliatone/go-autohook/ratelimit"
	"github.com/goliatone/go-autohook/transport"
)

// State is the lifecycle position of a controller. Subscriptions are tracked
// separately and do not move it.
type State string

const (
	StateIdle              State = "idle"
	StateServerListening   State = "server_listening"
	StateWebhookRegistered State = "webhook_registered"
)

// Autohook registers a webhook for one environment, keeps user subscriptions
// within the plan quota and delivers verified activity events to handlers.
type Autohook struct {
	config     core.Config
	app        core.Credential
	logger     core.Logger
	observer   *core.Observer
	classifier *core.Classifier
	client     *transport.Client
	tokens     *auth.BearerTokenSource
	tracker    *ratelimit.Tracker
	server     *inbound.Server
	tunnel     core.Tunnel
	listener   core.Listener
	now        func() time.Time

	mu        sync.Mutex
	state     State
	listening bool
	webhook   *core.Webhook

	countMu sync.Mutex
	count   *core.SubscriptionCount
}

// New resolves configuration, validates it and wires the controller. No
// network call is made.
func New(cfg core.Config, opts ...Option) (*Autohook, error) {
	b := builder{runtimeConfig: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&b)
	}

	provider, logger := glog.Resolve("autohook", b.loggerProvider, b.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("autohook"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if b.configProvider == nil {
		b.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if b.optionsResolver == nil {
		b.optionsResolver = core.GoOptionsResolver{}
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := core.DefaultConfig()
	loaded, err := b.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, err
	}
	resolved, err := b.optionsResolver.Resolve(defaults, loaded, b.runtimeConfig)
	if err != nil {
		return nil, err
	}
	app, err := resolved.AppCredential()
	if err != nil {
		return nil, err
	}

	if b.transport == nil {
		b.transport = transport.NewRESTAdapter(nil)
	}
	if b.listener == nil {
		b.listener = inbound.NewHTTPListener(logger)
	}

	classifier := &core.Classifier{Now: b.now}
	tokens, err := auth.NewBearerTokenSource(auth.BearerTokenSourceConfig{
		Transport:  b.transport,
		BaseURL:    resolved.BaseURL(),
		Headers:    resolved.Headers,
		Classifier: classifier,
		Cache:      b.cacheService,
		TTL:        resolved.TokenTTL(),
	})
	if err != nil {
		return nil, err
	}

	signerOpts := []auth.SignerOption{}
	if b.nonceFunc != nil {
		signerOpts = append(signerOpts, auth.WithNonceFunc(b.nonceFunc))
	}
	if b.timestampFunc != nil {
		signerOpts = append(signerOpts, auth.WithTimestampFunc(b.timestampFunc))
	}

	tracker := ratelimit.NewTracker()
	client := transport.NewClient(transport.ClientConfig{
		Transport: b.transport,
		Signer:    auth.NewSigner(signerOpts...),
		Tokens:    tokens,
		App:       app,
		BaseURL:   resolved.BaseURL(),
		Headers:   resolved.Headers,
		Timeout:   resolved.RequestTimeout,
		Tracker:   tracker,
		Now:       b.now,
	})

	server := inbound.NewServer(inbound.ServerConfig{
		Route:          resolved.Route(),
		ConsumerSecret: resolved.ConsumerSecret,
		MaxBodyBytes:   resolved.BodyLimit(),
		Logger:         logger,
		Now:            b.now,
		NewID:          b.newEventID,
	})

	return &Autohook{
		config:     resolved,
		app:        app,
		logger:     logger,
		observer:   core.NewObserver(logger, b.metricsRecorder),
		classifier: classifier,
		client:     client,
		tokens:     tokens,
		tracker:    tracker,
		server:     server,
		tunnel:     b.tunnel,
		listener:   b.listener,
		now:        b.now,
		state:      StateIdle,
	}, nil
}

// Config returns the resolved configuration.
func (a *Autohook) Config() core.Config {
	return a.config
}

func (a *Autohook) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Webhook returns the webhook registered by the last successful Start.
func (a *Autohook) Webhook() (core.Webhook, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.webhook == nil {
		return core.Webhook{}, false
	}
	return *a.webhook, true
}

// On registers handler for verified inbound events. The returned func
// removes it.
func (a *Autohook) On(handler core.EventHandler) (func(), error) {
	return a.server.Dispatcher().On(handler)
}

// Handler serves the CRC handshake and inbound events on the webhook route,
// for hosts that run their own HTTP server.
func (a *Autohook) Handler() http.Handler {
	return a.server.Handler()
}

// Close stops the listener opened by Start, if any, and forgets the webhook
// it registered. The remote registration is left in place; RemoveWebhooks
// deletes it.
func (a *Autohook) Close(ctx context.Context) error {
	a.mu.Lock()
	listening := a.listening
	a.listening = false
	a.state = StateIdle
	a.webhook = nil
	a.mu.Unlock()
	if !listening {
		return nil
	}
	startedAt := time.Now()
	err := a.listener.Shutdown(ctx)
	a.observe(ctx, startedAt, "close", err, nil)
	return err
}

// InvalidateBearerToken drops the cached app-only token.
func (a *Autohook) InvalidateBearerToken(ctx context.Context) error {
	return a.tokens.Invalidate(ctx, a.app)
}

// InvalidateSubscriptionCount forces the next Subscribe to fetch the count
// again.
func (a *Autohook) InvalidateSubscriptionCount() {
	a.countMu.Lock()
	a.count = nil
	a.countMu.Unlock()
}

// RateLimitState returns the last rate limit window seen for path.
func (a *Autohook) RateLimitState(path string) (ratelimit.State, bool) {
	return a.tracker.Get(path)
}

func (a *Autohook) observe(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["env"] = a.config.Env
	a.observer.Observe(ctx, startedAt, operation, err, fields)
}

// call sends c and routes any non-success status through the classifier.
func (a *Autohook) call(ctx context.Context, c transport.Call, fallback core.ErrorKind) (core.TransportResponse, error) {
	res, err := a.client.Do(ctx, c)
	if err != nil {
		return res, err
	}
	if err := a.classifier.Classify(c.Path, res, fallback); err != nil {
		return res, err
	}
	return res, nil
}
