package core

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-autohook/ratelimit"
)

const unknownErrorMessage = "Unknown error"

// Classifier turns remote responses into typed errors. Every controller
// operation routes its responses through it.
type Classifier struct {
	Now func() time.Time
}

func NewClassifier() *Classifier {
	return &Classifier{Now: func() time.Time { return time.Now().UTC() }}
}

type upstreamErrorBody struct {
	Errors []struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"errors"`
}

// Classify returns nil for 200, 201 and 204. Other statuses map to
// KindAuthentication, KindRateLimit or the fallback kind.
func (c *Classifier) Classify(path string, res TransportResponse, fallback ErrorKind) error {
	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return c.upstreamError(KindAuthentication, path, res)
	case 420, http.StatusTooManyRequests:
		return c.rateLimitError(path, res)
	default:
		if fallback == "" {
			fallback = KindGeneric
		}
		return c.upstreamError(fallback, path, res)
	}
}

// UpstreamError builds an error of the given kind from a response without
// consulting the status table.
func (c *Classifier) UpstreamError(kind ErrorKind, path string, res TransportResponse) *Error {
	return c.upstreamError(kind, path, res)
}

func (c *Classifier) upstreamError(kind ErrorKind, path string, res TransportResponse) *Error {
	message, code := ParseUpstreamError(res.Body)
	err := NewError(kind, formatUpstreamMessage(message, res.StatusCode, code))
	err.StatusCode = res.StatusCode
	err.UpstreamCode = code
	err.UpstreamMessage = message
	err.Path = path
	return err
}

func (c *Classifier) rateLimitError(path string, res TransportResponse) *Error {
	now := c.now()
	window := ratelimit.FromHeaders(path, res.Headers, now)
	message, code := ParseUpstreamError(res.Body)

	err := &Error{
		Kind:            KindRateLimit,
		StatusCode:      res.StatusCode,
		UpstreamCode:    code,
		UpstreamMessage: message,
		Path:            path,
		Limit:           window.Limit,
		ResetAt:         window.ResetAt,
		ResetIn:         window.ResetIn(now),
	}
	if window.HasLimit && window.HasReset() {
		minutes := int64(math.Round(float64(err.ResetIn.Milliseconds()) / 60 / 1000))
		err.Message = fmt.Sprintf(
			"You exceeded the rate limit for %s (%d requests available, 0 remaining). Wait %d minutes before trying again.",
			path, window.Limit, minutes,
		)
		return err
	}
	err.Message = fmt.Sprintf("You exceeded the rate limit for %s. Wait until rate limit resets and try again.", path)
	return err
}

func (c *Classifier) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// ParseUpstreamError reads the first entry of a structured error list. A body
// without one yields "Unknown error" and code 0.
func ParseUpstreamError(body []byte) (string, int) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return unknownErrorMessage, 0
	}
	var decoded upstreamErrorBody
	if err := json.Unmarshal(body, &decoded); err != nil || len(decoded.Errors) == 0 {
		return unknownErrorMessage, 0
	}
	message := strings.TrimSpace(decoded.Errors[0].Message)
	if message == "" {
		message = unknownErrorMessage
	}
	return message, decoded.Errors[0].Code
}
