package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-autohook/core"
	"github.com/goliatone/go-autohook/ratelimit"
)

// AuthSigner renders OAuth 1.0a Authorization headers.
type AuthSigner interface {
	AuthorizationHeader(method, rawURL string, credential core.Credential, body any) (string, error)
}

// TokenSource issues app-only bearer tokens.
type TokenSource interface {
	Token(ctx context.Context, credential core.Credential) (string, error)
	Invalidate(ctx context.Context, credential core.Credential) error
}

// Call describes one request to the remote API, relative to the base url.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	// Form is sent as an urlencoded body and takes part in the signature.
	Form url.Values
	// Bearer selects app-only auth. It takes precedence over User, and no
	// signature is computed when it is set.
	Bearer bool
	User   *core.Credential
}

type ClientConfig struct {
	Transport core.Transport
	Signer    AuthSigner
	Tokens    TokenSource
	App       core.Credential
	BaseURL   string
	Headers   map[string]string
	Timeout   time.Duration
	Tracker   *ratelimit.Tracker
	Now       func() time.Time
}

// Client decorates calls with auth and sends them through the transport.
// Status classification is left to the caller.
type Client struct {
	transport core.Transport
	signer    AuthSigner
	tokens    TokenSource
	app       core.Credential
	baseURL   string
	headers   map[string]string
	timeout   time.Duration
	tracker   *ratelimit.Tracker
	now       func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = core.DefaultAPIBaseURL
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	headers := make(map[string]string, len(cfg.Headers))
	for key, value := range cfg.Headers {
		headers[key] = value
	}
	return &Client{
		transport: cfg.Transport,
		signer:    cfg.Signer,
		tokens:    cfg.Tokens,
		app:       cfg.App,
		baseURL:   base,
		headers:   headers,
		timeout:   cfg.Timeout,
		tracker:   cfg.Tracker,
		now:       now,
	}
}

// URL joins the base url, path and encoded query.
func (c *Client) URL(path string, query url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) Do(ctx context.Context, call Call) (core.TransportResponse, error) {
	if c == nil || c.transport == nil {
		return core.TransportResponse{}, core.NewError(core.KindGeneric, "transport: client requires a transport")
	}
	method := strings.ToUpper(strings.TrimSpace(call.Method))
	if method == "" {
		method = http.MethodGet
	}
	target := c.URL(call.Path, call.Query)

	headers := make(map[string]string, len(c.headers)+2)
	for key, value := range c.headers {
		headers[key] = value
	}
	var body []byte
	if len(call.Form) > 0 {
		body = []byte(call.Form.Encode())
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	}

	switch {
	case call.Bearer:
		if c.tokens == nil {
			return core.TransportResponse{}, core.NewError(core.KindBearerToken, "transport: bearer token source is not configured")
		}
		token, err := c.tokens.Token(ctx, c.app)
		if err != nil {
			return core.TransportResponse{}, err
		}
		headers["Authorization"] = "Bearer " + token
	case call.User != nil:
		if c.signer == nil {
			return core.TransportResponse{}, core.NewError(core.KindAuthentication, "transport: signer is not configured")
		}
		var form any
		if len(call.Form) > 0 {
			form = call.Form
		}
		header, err := c.signer.AuthorizationHeader(method, target, *call.User, form)
		if err != nil {
			return core.TransportResponse{}, err
		}
		headers["Authorization"] = header
	}

	res, err := c.transport.Do(ctx, core.TransportRequest{
		Method:   method,
		URL:      target,
		Headers:  headers,
		Body:     body,
		Timeout:  c.timeout,
		Metadata: map[string]any{"path": call.Path, "bearer": call.Bearer},
	})
	if err != nil {
		return core.TransportResponse{}, core.WrapError(err, core.KindGeneric, "transport: "+method+" "+call.Path)
	}
	if c.tracker != nil {
		c.tracker.Observe(call.Path, res.Headers, c.now())
	}
	if call.Bearer && res.StatusCode == http.StatusUnauthorized {
		_ = c.tokens.Invalidate(ctx, c.app)
	}
	return res, nil
}
