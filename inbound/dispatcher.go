package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-autohook/core"
)

type registration struct {
	id      uint64
	handler core.EventHandler
}

// Dispatcher fans verified events out to handlers in registration order.
type Dispatcher struct {
	logger core.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers []registration
}

func NewDispatcher(logger core.Logger) *Dispatcher {
	return &Dispatcher{logger: glog.Ensure(logger)}
}

// On registers handler and returns a func that removes it. Calling the
// returned func more than once is a no-op.
func (d *Dispatcher) On(handler core.EventHandler) (func(), error) {
	if d == nil {
		return func() {}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return func() {}, inboundBadInput("inbound: event handler is nil", nil)
	}
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.handlers = append(d.handlers, registration{id: id, handler: handler})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id) })
	}, nil
}

func (d *Dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for index, entry := range d.handlers {
		if entry.id == id {
			d.handlers = append(d.handlers[:index:index], d.handlers[index+1:]...)
			return
		}
	}
}

func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Dispatch calls every handler with the event. A failing or panicking
// handler is logged and does not stop the ones after it.
func (d *Dispatcher) Dispatch(ctx context.Context, event core.Event, req *http.Request) (core.InboundResult, error) {
	if d == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	d.mu.RLock()
	handlers := make([]registration, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	var failures []error
	for _, entry := range handlers {
		if err := d.invoke(ctx, entry.handler, event, req); err != nil {
			d.logger.Error("event handler failed", "event_id", event.ID, "handler", entry.id, "error", err)
			failures = append(failures, err)
		}
	}

	result := core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"event_id": event.ID,
			"handlers": len(handlers),
			"failed":   len(failures),
		},
	}
	if len(failures) > 0 {
		return result, inboundWrapError(
			errors.Join(failures...),
			goerrors.CategoryOperation,
			"inbound: event handler failed",
			http.StatusInternalServerError,
			core.ErrorTextInternal,
			map[string]any{"event_id": event.ID, "failed": len(failures)},
		)
	}
	return result, nil
}

func (d *Dispatcher) invoke(ctx context.Context, handler core.EventHandler, event core.Event, req *http.Request) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("inbound: event handler panic: %v", recovered)
		}
	}()
	return handler(ctx, event, req)
}
