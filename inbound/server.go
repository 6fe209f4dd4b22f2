package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-autohook/core"
	"github.com/goliatone/go-autohook/webhooks"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type ServerConfig struct {
	Route          string
	ConsumerSecret string
	MaxBodyBytes   int64
	// Verifier defaults to webhooks.SignatureVerifier over ConsumerSecret.
	Verifier   Verifier
	Dispatcher *Dispatcher
	Logger     core.Logger
	Now        func() time.Time
	NewID      func() string
}

// Server answers CRC handshakes and accepts activity events on one route.
type Server struct {
	route          string
	consumerSecret string
	maxBodyBytes   int64
	verifier       Verifier
	dispatcher     *Dispatcher
	logger         core.Logger
	now            func() time.Time
	newID          func() string
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(cfg ServerConfig) *Server {
	route := strings.TrimSpace(cfg.Route)
	if route == "" {
		route = core.DefaultWebhookRoute
	}
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = core.DefaultMaxBodyBytes
	}
	logger := glog.Ensure(cfg.Logger)
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = webhooks.NewSignatureVerifier(cfg.ConsumerSecret)
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(logger)
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Server{
		route:          route,
		consumerSecret: cfg.ConsumerSecret,
		maxBodyBytes:   limit,
		verifier:       verifier,
		dispatcher:     dispatcher,
		logger:         logger,
		now:            now,
		newID:          newID,
	}
}

func (s *Server) Route() string { return s.route }

func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Handler returns the router. It can be mounted on a host's own server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get(s.route, s.handleRequest)
	r.Post(s.route, s.handleRequest)

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.maxBodyBytes {
		s.logger.Warn("webhook payload too large", "path", r.URL.Path, "limit", s.maxBodyBytes)
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	req := toInboundRequest(r, body)
	if err := s.verifier.Verify(ctx, req); err != nil {
		s.logger.Warn("webhook signature verification failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error_kind", string(core.KindOf(err)),
			"error", err,
		)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	if crcToken := r.URL.Query().Get(webhooks.CRCTokenParam); crcToken != "" {
		s.respondJSON(w, http.StatusOK, webhooks.ValidateWebhook(crcToken, s.consumerSecret))
		return
	}
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusBadRequest, "crc_token is required")
		return
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		s.logger.Warn("webhook body is not a json object", "path", r.URL.Path, "error", err)
		s.respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	event := core.Event{
		ID:         s.newID(),
		Body:       parsed,
		Raw:        body,
		Headers:    req.Headers,
		ReceivedAt: s.now(),
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	result, err := s.dispatcher.Dispatch(ctx, event, r)
	if err != nil {
		s.logger.Warn("webhook event delivered with handler failures", "event_id", event.ID, "error", err)
	}
	s.logger.Info("webhook event received", "event_id", event.ID, "handlers", result.Metadata["handlers"])
	w.WriteHeader(http.StatusOK)
}

func toInboundRequest(r *http.Request, body []byte) core.InboundRequest {
	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		headers[strings.ToLower(key)] = strings.Join(values, ",")
	}
	query := map[string]string{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	return core.InboundRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    query,
		Headers:  headers,
		Body:     body,
		RawQuery: r.URL.RawQuery,
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write webhook response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
