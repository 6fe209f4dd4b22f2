package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-autohook/core"
	"github.com/goliatone/go-autohook/webhooks"
)

const testSecret = "test"

func newTestServer(t *testing.T, limit int64) (*Server, *[]core.Event) {
	t.Helper()
	server := NewServer(ServerConfig{
		Route:          "/webhook",
		ConsumerSecret: testSecret,
		MaxBodyBytes:   limit,
		Now:            func() time.Time { return time.Unix(1_700_000_000, 0).UTC() },
		NewID:          func() string { return "evt_1" },
	})
	var mu sync.Mutex
	events := []core.Event{}
	if _, err := server.Dispatcher().On(func(_ context.Context, event core.Event, req *http.Request) error {
		raw, _ := io.ReadAll(req.Body)
		if string(raw) != string(event.Raw) {
			t.Errorf("expected handler request body to be replayable")
		}
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
		return nil
	}); err != nil {
		t.Fatalf("register handler: %v", err)
	}
	return server, &events
}

func signedPost(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Twitter-Webhooks-Signature", webhooks.ComputeChallengeResponse(body, testSecret))
	return req
}

func TestServer_DispatchesVerifiedEvent(t *testing.T) {
	server, events := newTestServer(t, 0)
	body := `{"for_user_id":"42","tweet_create_events":[{"id_str":"1"}]}`

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, signedPost("/webhook", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(*events) != 1 {
		t.Fatalf("expected one event, got %d", len(*events))
	}
	event := (*events)[0]
	if event.ID != "evt_1" || event.Body["for_user_id"] != "42" {
		t.Fatalf("unexpected event %+v", event)
	}
	if string(event.Raw) != body {
		t.Fatalf("expected raw body to be kept, got %s", event.Raw)
	}
}

func TestServer_RejectsBadSignature(t *testing.T) {
	server, events := newTestServer(t, 0)

	req := signedPost("/webhook", `{"a":1}`)
	req.Header.Set("X-Twitter-Webhooks-Signature", "sha256=forged")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	unsigned := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"a":1}`))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, unsigned)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing header, got %d", rec.Code)
	}
	if len(*events) != 0 {
		t.Fatalf("expected no events dispatched, got %d", len(*events))
	}
}

func TestServer_AnswersVerifiedCRC(t *testing.T) {
	server, events := newTestServer(t, 0)
	rawQuery := "crc_token=challenge&nonce=abc"

	req := httptest.NewRequest(http.MethodGet, "/webhook?"+rawQuery, nil)
	req.Header.Set("X-Twitter-Webhooks-Signature", webhooks.ComputeChallengeResponse(rawQuery, testSecret))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected json content type, got %q", rec.Header().Get("Content-Type"))
	}
	var response webhooks.ChallengeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.ResponseToken != webhooks.ComputeChallengeResponse("challenge", testSecret) {
		t.Fatalf("unexpected response token %q", response.ResponseToken)
	}
	if len(*events) != 0 {
		t.Fatalf("expected handshake not to dispatch events")
	}
}

func TestServer_UnverifiedCRCGetsNoResponseToken(t *testing.T) {
	server, _ := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/webhook?crc_token=challenge", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "response_token") {
		t.Fatalf("expected no handshake response, got %s", rec.Body.String())
	}
}

func TestServer_RejectsOversizedBody(t *testing.T) {
	server, events := newTestServer(t, 8)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, signedPost("/webhook", `{"long":"payload"}`))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if len(*events) != 0 {
		t.Fatalf("expected no events dispatched")
	}
}

func TestServer_RejectsNonJSONBody(t *testing.T) {
	server, events := newTestServer(t, 0)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, signedPost("/webhook", "test=1&other_test=2"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(*events) != 0 {
		t.Fatalf("expected no events dispatched")
	}
}

func TestServer_OtherRoutesAndMethods(t *testing.T) {
	server, _ := newTestServer(t, 0)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, signedPost("/elsewhere", `{}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/webhook", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestServer_HandlerFailureStillAcknowledges(t *testing.T) {
	server, events := newTestServer(t, 0)
	if _, err := server.Dispatcher().On(func(context.Context, core.Event, *http.Request) error {
		return errors.New("downstream unavailable")
	}); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, signedPost("/webhook", `{"a":1}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(*events) != 1 {
		t.Fatalf("expected first handler to receive the event")
	}
}

func TestHTTPListener_ServesAndShutsDown(t *testing.T) {
	server, events := newTestServer(t, 0)
	listener := NewHTTPListener(nil)
	listener.Host = "127.0.0.1"

	if err := listener.Listen(context.Background(), 0, server.Handler()); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := listener.Listen(context.Background(), 0, server.Handler()); err == nil {
		t.Fatalf("expected second listen to fail")
	}

	body := `{"a":1}`
	req, err := http.NewRequest(http.MethodPost, "http://"+listener.Addr()+"/webhook", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Twitter-Webhooks-Signature", webhooks.ComputeChallengeResponse(body, testSecret))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK || len(*events) != 1 {
		t.Fatalf("expected event over the wire, got %d and %d events", res.StatusCode, len(*events))
	}

	if err := listener.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if listener.Addr() != "" {
		t.Fatalf("expected address to be cleared")
	}
}
