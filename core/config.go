package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIBaseURL     = "https://api.twitter.com"
	DefaultPort           = 1337
	DefaultWebhookRoute   = "/webhook"
	DefaultBearerTokenTTL = 12 * time.Hour
	DefaultMaxBodyBytes   = int64(1 << 20)
	DefaultRequestTimeout = 30 * time.Second
)

type Config struct {
	Token          string            `koanf:"token" mapstructure:"token" yaml:"token"`
	TokenSecret    string            `koanf:"token_secret" mapstructure:"token_secret" yaml:"token_secret"`
	ConsumerKey    string            `koanf:"consumer_key" mapstructure:"consumer_key" yaml:"consumer_key"`
	ConsumerSecret string            `koanf:"consumer_secret" mapstructure:"consumer_secret" yaml:"consumer_secret"`
	NgrokSecret    string            `koanf:"ngrok_secret" mapstructure:"ngrok_secret" yaml:"ngrok_secret"`
	Env            string            `koanf:"env" mapstructure:"env" yaml:"env"`
	Port           int               `koanf:"port" mapstructure:"port" yaml:"port"`
	Headers        map[string]string `koanf:"headers" mapstructure:"headers" yaml:"headers"`
	APIBaseURL     string            `koanf:"api_base_url" mapstructure:"api_base_url" yaml:"api_base_url"`
	WebhookRoute   string            `koanf:"webhook_route" mapstructure:"webhook_route" yaml:"webhook_route"`
	// BearerTokenTTL bounds how long an app-only token is reused. Zero falls
	// back to DefaultBearerTokenTTL.
	BearerTokenTTL time.Duration `koanf:"bearer_token_ttl" mapstructure:"bearer_token_ttl" yaml:"bearer_token_ttl"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout" yaml:"request_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		APIBaseURL:     DefaultAPIBaseURL,
		WebhookRoute:   DefaultWebhookRoute,
		BearerTokenTTL: DefaultBearerTokenTTL,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Validate rejects incomplete configuration. It is called once, when the
// controller is built.
func (c Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{field: "token", value: c.Token},
		{field: "token_secret", value: c.TokenSecret},
		{field: "consumer_key", value: c.ConsumerKey},
		{field: "consumer_secret", value: c.ConsumerSecret},
		{field: "env", value: c.Env},
	}
	for _, entry := range required {
		if strings.TrimSpace(entry.value) == "" {
			return NewError(KindTypeConstraint, fmt.Sprintf("core: %s is required", entry.field))
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return NewError(KindTypeConstraint, fmt.Sprintf("core: port %d is out of range", c.Port))
	}
	if c.APIBaseURL != "" {
		parsed, err := url.Parse(c.APIBaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return NewError(KindTypeConstraint, fmt.Sprintf("core: api_base_url %q is not an absolute url", c.APIBaseURL))
		}
	}
	if c.WebhookRoute != "" && !strings.HasPrefix(c.WebhookRoute, "/") {
		return NewError(KindTypeConstraint, "core: webhook_route must start with /")
	}
	if c.BearerTokenTTL < 0 {
		return NewError(KindTypeConstraint, "core: bearer_token_ttl must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return NewError(KindTypeConstraint, "core: max_body_bytes must not be negative")
	}
	return nil
}

// AppCredential returns the credential the configuration carries for the app
// owner.
func (c Config) AppCredential() (Credential, error) {
	return NewCredential(c.ConsumerKey, c.ConsumerSecret, c.Token, c.TokenSecret)
}

func (c Config) BaseURL() string {
	base := strings.TrimSpace(c.APIBaseURL)
	if base == "" {
		base = DefaultAPIBaseURL
	}
	return strings.TrimRight(base, "/")
}

func (c Config) Route() string {
	route := strings.TrimSpace(c.WebhookRoute)
	if route == "" {
		return DefaultWebhookRoute
	}
	return route
}

func (c Config) TokenTTL() time.Duration {
	if c.BearerTokenTTL <= 0 {
		return DefaultBearerTokenTTL
	}
	return c.BearerTokenTTL
}

func (c Config) BodyLimit() int64 {
	if c.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return c.MaxBodyBytes
}
