package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type TransportRequest struct {
	Method   string
	URL      string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
	Timeout  time.Duration
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// Transport sends bytes to the remote API. Pooling, TLS and timeouts belong
// to the implementation.
type Transport interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// Tunnel exposes a local port on a public https URL.
type Tunnel interface {
	ExposePort(ctx context.Context, port int, authToken string) (string, error)
}

// Listener serves handler on the local port until Shutdown is called.
type Listener interface {
	Listen(ctx context.Context, port int, handler http.Handler) error
	Shutdown(ctx context.Context) error
}

type Webhook struct {
	ID               string `json:"id"`
	URL              string `json:"url"`
	Valid            bool   `json:"valid"`
	CreatedTimestamp string `json:"created_timestamp,omitempty"`
}

type SubscriptionCount struct {
	SubscriptionsCount int `json:"subscriptions_count"`
	ProvisionedCount   int `json:"provisioned_count"`
}

// Exhausted reports whether no subscription slot is left under the plan.
func (c SubscriptionCount) Exhausted() bool {
	return c.SubscriptionsCount >= c.ProvisionedCount
}

type UserAuth struct {
	AccessToken       string
	AccessTokenSecret string
	ScreenName        string
}

type UserIdentity struct {
	ID         string `json:"id_str"`
	ScreenName string `json:"screen_name"`
}

// Event is a verified inbound activity payload.
type Event struct {
	ID         string
	Body       map[string]any
	Raw        []byte
	Headers    map[string]string
	ReceivedAt time.Time
}

type EventHandler func(ctx context.Context, event Event, req *http.Request) error

type InboundRequest struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    []byte
	// RawQuery is the undecoded query string, signed in place of an empty body.
	RawQuery string
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
