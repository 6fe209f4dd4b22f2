package autohook

import (
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-autohook/core"
)

type Option func(*builder)

type builder struct {
	runtimeConfig   core.Config
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metricsRecorder core.MetricsRecorder
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
	transport       core.Transport
	tunnel          core.Tunnel
	listener        core.Listener
	cacheService    repositorycache.CacheService
	nonceFunc       func() (string, error)
	timestampFunc   func() string
	now             func() time.Time
	newEventID      func() string
}

func WithLogger(logger core.Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *builder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *builder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *builder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *builder) {
		b.optionsResolver = resolver
	}
}

// WithTransport replaces the default net/http transport.
func WithTransport(transport core.Transport) Option {
	return func(b *builder) {
		b.transport = transport
	}
}

// WithTunnel sets the collaborator Start uses to obtain a public URL when
// none is given.
func WithTunnel(tunnel core.Tunnel) Option {
	return func(b *builder) {
		b.tunnel = tunnel
	}
}

func WithListener(listener core.Listener) Option {
	return func(b *builder) {
		b.listener = listener
	}
}

// WithCacheService sets the cache that holds bearer tokens. Each controller
// gets its own cache otherwise.
func WithCacheService(cache repositorycache.CacheService) Option {
	return func(b *builder) {
		b.cacheService = cache
	}
}

func WithNonceFunc(fn func() (string, error)) Option {
	return func(b *builder) {
		b.nonceFunc = fn
	}
}

func WithTimestampFunc(fn func() string) Option {
	return func(b *builder) {
		b.timestampFunc = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *builder) {
		b.now = now
	}
}

func WithEventIDFunc(fn func() string) Option {
	return func(b *builder) {
		b.newEventID = fn
	}
}
