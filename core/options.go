package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw map, typically decoded from a file.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load builds a Config from the raw loader on top of defaults. Validation is
// left to the resolver since required credentials may arrive at runtime.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded and runtime configuration, in
// that order of precedence, and validates the result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	textFields := map[string]string{
		"token":           cfg.Token,
		"token_secret":    cfg.TokenSecret,
		"consumer_key":    cfg.ConsumerKey,
		"consumer_secret": cfg.ConsumerSecret,
		"ngrok_secret":    cfg.NgrokSecret,
		"env":             cfg.Env,
		"api_base_url":    cfg.APIBaseURL,
		"webhook_route":   cfg.WebhookRoute,
	}
	for key, value := range textFields {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = value
		}
	}
	if includeZero || cfg.Port != 0 {
		layer["port"] = cfg.Port
	}
	if includeZero || len(cfg.Headers) > 0 {
		headers := make(map[string]any, len(cfg.Headers))
		for key, value := range cfg.Headers {
			headers[key] = value
		}
		layer["headers"] = headers
	}
	if includeZero || cfg.BearerTokenTTL != 0 {
		layer["bearer_token_ttl"] = cfg.BearerTokenTTL
	}
	if includeZero || cfg.MaxBodyBytes != 0 {
		layer["max_body_bytes"] = cfg.MaxBodyBytes
	}
	if includeZero || cfg.RequestTimeout != 0 {
		layer["request_timeout"] = cfg.RequestTimeout
	}
	return layer
}
