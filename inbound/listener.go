package inbound

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-autohook/core"
)

// HTTPListener serves a handler on a local TCP port.
type HTTPListener struct {
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Logger       core.Logger

	mu     sync.Mutex
	server *http.Server
	addr   string
}

func NewHTTPListener(logger core.Logger) *HTTPListener {
	return &HTTPListener{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		Logger:       glog.Ensure(logger),
	}
}

// Listen binds the port and returns once the socket is open; serving
// continues in the background until Shutdown. Port 0 picks a free port.
func (l *HTTPListener) Listen(_ context.Context, port int, handler http.Handler) error {
	if l == nil {
		return inboundInternal("inbound: listener is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: listener handler is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.server != nil {
		return inboundError(
			"inbound: listener already started",
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.ErrorTextInternal,
			map[string]any{"addr": l.addr},
		)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", l.Host, port))
	if err != nil {
		return inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: listen failed",
			http.StatusInternalServerError,
			core.ErrorTextInternal,
			map[string]any{"port": port},
		)
	}
	logger := glog.Ensure(l.Logger)
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  l.ReadTimeout,
		WriteTimeout: l.WriteTimeout,
		IdleTimeout:  l.IdleTimeout,
	}
	l.server = server
	l.addr = ln.Addr().String()

	logger.Info("webhook listener starting", "addr", l.addr)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("webhook listener stopped", "addr", ln.Addr().String(), "error", err)
		}
	}()
	return nil
}

// Addr is the bound address, empty until Listen succeeds.
func (l *HTTPListener) Addr() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

func (l *HTTPListener) Shutdown(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	server := l.server
	l.server = nil
	l.addr = ""
	l.mu.Unlock()
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: listener shutdown failed",
			http.StatusInternalServerError,
			core.ErrorTextInternal,
			nil,
		)
	}
	return nil
}

var _ core.Listener = (*HTTPListener)(nil)
