package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-autohook/core"
)

type stubTransport struct {
	mu        sync.Mutex
	requests  []core.TransportRequest
	responses []core.TransportResponse
}

func (s *stubTransport) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return core.TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{"token_type":"bearer","access_token":"fallback"}`)}, nil
	}
	res := s.responses[0]
	s.responses = s.responses[1:]
	return res, nil
}

func (s *stubTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func appCredential(t *testing.T) core.Credential {
	t.Helper()
	credential, err := core.NewCredential("test", "test", "test", "test")
	if err != nil {
		t.Fatalf("new credential: %v", err)
	}
	return credential
}

func TestBearerTokenSource_MemoizesSuccess(t *testing.T) {
	transport := &stubTransport{responses: []core.TransportResponse{
		{StatusCode: http.StatusOK, Body: []byte(`{"token_type":"bearer","access_token":"AAAA"}`)},
	}}
	source, err := NewBearerTokenSource(BearerTokenSourceConfig{Transport: transport, BaseURL: "https://api.example.com/"})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		token, err := source.Token(ctx, appCredential(t))
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		if token != "AAAA" {
			t.Fatalf("expected memoized token, got %q", token)
		}
	}
	if transport.calls() != 1 {
		t.Fatalf("expected one exchange, got %d", transport.calls())
	}

	req := transport.requests[0]
	if req.URL != "https://api.example.com/oauth2/token" || req.Method != http.MethodPost {
		t.Fatalf("unexpected token request %s %s", req.Method, req.URL)
	}
	if req.Headers["Authorization"] != "Basic dGVzdDp0ZXN0" {
		t.Fatalf("unexpected basic auth header %q", req.Headers["Authorization"])
	}
	if string(req.Body) != "grant_type=client_credentials" {
		t.Fatalf("unexpected body %q", req.Body)
	}

	if err := source.Invalidate(ctx, appCredential(t)); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := source.Token(ctx, appCredential(t)); err != nil {
		t.Fatalf("token after invalidate: %v", err)
	}
	if transport.calls() != 2 {
		t.Fatalf("expected a new exchange after invalidation, got %d", transport.calls())
	}
}

func TestBearerTokenSource_UpstreamFailureEmbedsCode(t *testing.T) {
	transport := &stubTransport{responses: []core.TransportResponse{
		{StatusCode: http.StatusServiceUnavailable, Body: []byte(`{"errors":[{"message":"test error","code":1337}]}`)},
		{StatusCode: http.StatusOK, Body: []byte(`{"token_type":"bearer","access_token":"BBBB"}`)},
	}}
	source, err := NewBearerTokenSource(BearerTokenSourceConfig{Transport: transport})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	_, err = source.Token(context.Background(), appCredential(t))
	if !core.IsKind(err, core.KindBearerToken) {
		t.Fatalf("expected bearer token error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Twitter code: 1337") {
		t.Fatalf("expected upstream code in message, got %q", err.Error())
	}
	var rich *core.Error
	if !goerrors.As(err, &rich) || rich.UpstreamCode != 1337 || rich.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error details %+v", rich)
	}

	token, err := source.Token(context.Background(), appCredential(t))
	if err != nil || token != "BBBB" {
		t.Fatalf("expected failed exchange not to be cached, got %q %v", token, err)
	}
}

func TestBearerTokenSource_RejectsEmptyToken(t *testing.T) {
	transport := &stubTransport{responses: []core.TransportResponse{
		{StatusCode: http.StatusOK, Body: []byte(`{"token_type":"bearer"}`)},
	}}
	source, err := NewBearerTokenSource(BearerTokenSourceConfig{Transport: transport})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if _, err := source.Token(context.Background(), appCredential(t)); !core.IsKind(err, core.KindBearerToken) {
		t.Fatalf("expected bearer token error, got %v", err)
	}
}

func TestBearerCacheKey(t *testing.T) {
	if key := BearerCacheKey(appCredential(t)); key != "autohook::bearer::v1::test" {
		t.Fatalf("unexpected cache key %q", key)
	}
}
