package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-autohook/core"
)

const (
	TokenPath           = "/oauth2/token"
	bearerCacheKeyScope = "autohook::bearer::v1"
	tokenRequestBody    = "grant_type=client_credentials"
)

type BearerTokenSourceConfig struct {
	Transport  core.Transport
	BaseURL    string
	Headers    map[string]string
	Classifier *core.Classifier
	// Cache holds issued tokens. When nil a cache with TTL is created.
	Cache repositorycache.CacheService
	TTL   time.Duration
}

// BearerTokenSource exchanges the app consumer pair for an app-only token and
// memoizes it per consumer key. A failed exchange is never cached.
type BearerTokenSource struct {
	transport  core.Transport
	tokenURL   string
	headers    map[string]string
	classifier *core.Classifier
	cache      repositorycache.CacheService
}

type tokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
}

func NewBearerTokenSource(cfg BearerTokenSourceConfig) (*BearerTokenSource, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("auth: bearer token transport is required")
	}
	cache := cfg.Cache
	if cache == nil {
		cacheConfig := repositorycache.DefaultConfig()
		if cfg.TTL > 0 {
			cacheConfig.TTL = cfg.TTL
		}
		created, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("auth: bearer token cache: %w", err)
		}
		cache = created
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = core.NewClassifier()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = core.DefaultAPIBaseURL
	}
	return &BearerTokenSource{
		transport:  cfg.Transport,
		tokenURL:   base + TokenPath,
		headers:    cloneHeaders(cfg.Headers),
		classifier: classifier,
		cache:      cache,
	}, nil
}

// BearerCacheKey is autohook::bearer::v1::<consumer_key>.
func BearerCacheKey(credential core.Credential) string {
	return bearerCacheKeyScope + "::" + credential.ConsumerKey()
}

func (s *BearerTokenSource) Token(ctx context.Context, credential core.Credential) (string, error) {
	if s == nil {
		return "", core.NewError(core.KindBearerToken, "auth: bearer token source is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, BearerCacheKey(credential), func(ctx context.Context) (string, error) {
		return s.Fetch(ctx, credential)
	})
}

// Invalidate drops the memoized token so the next call exchanges again.
func (s *BearerTokenSource) Invalidate(ctx context.Context, credential core.Credential) error {
	if s == nil {
		return nil
	}
	return s.cache.Delete(ctx, BearerCacheKey(credential))
}

// Fetch performs the exchange without consulting the cache.
func (s *BearerTokenSource) Fetch(ctx context.Context, credential core.Credential) (string, error) {
	headers := cloneHeaders(s.headers)
	headers["Authorization"] = "Basic " + basicAuth(credential.ConsumerKey(), credential.ConsumerSecret())
	headers["Content-Type"] = "application/x-www-form-urlencoded;charset=UTF-8"

	res, err := s.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     s.tokenURL,
		Headers: headers,
		Body:    []byte(tokenRequestBody),
	})
	if err != nil {
		return "", core.WrapError(err, core.KindBearerToken, "auth: bearer token request failed")
	}
	if res.StatusCode != http.StatusOK {
		return "", s.classifier.UpstreamError(core.KindBearerToken, TokenPath, res)
	}

	var decoded tokenResponse
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return "", core.WrapError(err, core.KindBearerToken, "auth: bearer token response is not json")
	}
	if strings.TrimSpace(decoded.AccessToken) == "" {
		return "", core.NewError(core.KindBearerToken, "auth: bearer token response has no access_token")
	}
	return decoded.AccessToken, nil
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

func cloneHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		out[key] = value
	}
	return out
}
