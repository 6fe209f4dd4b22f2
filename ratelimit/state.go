package ratelimit

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	HeaderLimit     = "x-rate-limit-limit"
	HeaderRemaining = "x-rate-limit-remaining"
	HeaderReset     = "x-rate-limit-reset"
)

// State is the rate limit window reported by the remote API for one path.
type State struct {
	Path      string
	Limit     int
	Remaining int
	HasLimit  bool
	ResetAt   time.Time
	UpdatedAt time.Time
}

// HasReset reports whether the reset header was present and parseable.
func (s State) HasReset() bool {
	return !s.ResetAt.IsZero()
}

// ResetIn is the time left in the window, computed in milliseconds as
// reset_seconds*1000 - now_ms. It may be negative when the window is over.
func (s State) ResetIn(now time.Time) time.Duration {
	if !s.HasReset() {
		return 0
	}
	return time.Duration(s.ResetAt.UnixMilli()-now.UnixMilli()) * time.Millisecond
}

// Exhausted reports whether the last response said no calls are left.
func (s State) Exhausted(now time.Time) bool {
	if !s.HasLimit || s.Remaining > 0 {
		return false
	}
	return !s.HasReset() || now.Before(s.ResetAt)
}

// FromHeaders reads the rate limit headers of a response. Missing or
// malformed headers leave the matching fields unset.
func FromHeaders(path string, headers map[string]string, now time.Time) State {
	state := State{Path: strings.TrimSpace(path), UpdatedAt: now.UTC()}
	if limit, ok := parseHeaderInt(headers, HeaderLimit); ok {
		state.Limit = limit
		state.HasLimit = true
	}
	if remaining, ok := parseHeaderInt(headers, HeaderRemaining); ok {
		state.Remaining = remaining
	}
	if resetAt, ok := parseHeaderResetAt(headers); ok {
		state.ResetAt = resetAt
	}
	return state
}

// Tracker keeps the last observed window per path.
type Tracker struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewTracker() *Tracker {
	return &Tracker{items: map[string]State{}}
}

// Observe records the headers of a response and returns the parsed state.
// Responses without rate limit headers do not replace a known window.
func (t *Tracker) Observe(path string, headers map[string]string, now time.Time) State {
	state := FromHeaders(path, headers, now)
	if t == nil || (!state.HasLimit && !state.HasReset()) {
		return state
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[state.Path] = state
	return state
}

func (t *Tracker) Get(path string) (State, bool) {
	if t == nil {
		return State{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.items[strings.TrimSpace(path)]
	return state, ok
}

func (t *Tracker) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = map[string]State{}
}

func parseHeaderInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseHeaderResetAt(headers map[string]string) (time.Time, bool) {
	value := headerValue(headers, HeaderReset)
	if value == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
