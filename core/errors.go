package core

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind discriminates the remote error taxonomy.
type ErrorKind string

const (
	KindAuthentication       ErrorKind = "authentication"
	KindRateLimit            ErrorKind = "rate_limit"
	KindWebhookURI           ErrorKind = "webhook_uri"
	KindTooManyWebhooks      ErrorKind = "too_many_webhooks"
	KindUserSubscription     ErrorKind = "user_subscription"
	KindTooManySubscriptions ErrorKind = "too_many_subscriptions"
	KindBearerToken          ErrorKind = "bearer_token"
	KindTypeConstraint       ErrorKind = "type_constraint"
	KindMissingHeader        ErrorKind = "missing_header"
	KindGeneric              ErrorKind = "generic"
)

const (
	ErrorTextAuthentication       = "AUTOHOOK_AUTHENTICATION"
	ErrorTextRateLimit            = "AUTOHOOK_RATE_LIMIT"
	ErrorTextWebhookURI           = "AUTOHOOK_WEBHOOK_URI"
	ErrorTextTooManyWebhooks      = "AUTOHOOK_TOO_MANY_WEBHOOKS"
	ErrorTextUserSubscription     = "AUTOHOOK_USER_SUBSCRIPTION"
	ErrorTextTooManySubscriptions = "AUTOHOOK_TOO_MANY_SUBSCRIPTIONS"
	ErrorTextBearerToken          = "AUTOHOOK_BEARER_TOKEN"
	ErrorTextTypeConstraint       = "AUTOHOOK_TYPE_CONSTRAINT"
	ErrorTextMissingHeader        = "AUTOHOOK_MISSING_HEADER"
	ErrorTextGeneric              = "AUTOHOOK_REMOTE_ERROR"
	ErrorTextInternal             = "AUTOHOOK_INTERNAL"
	ErrorTextExternalFailure      = "AUTOHOOK_EXTERNAL_FAILURE"
	ErrorTextBadInput             = "AUTOHOOK_BAD_INPUT"
)

// UpstreamCodeTooManyWebhooks is returned by the remote API when the
// environment already holds its maximum number of webhooks.
const UpstreamCodeTooManyWebhooks = 214

// UpstreamCodeTooManySubscriptions is the same code answered to a subscribe
// request once the provisioned subscriptions are in use.
const UpstreamCodeTooManySubscriptions = UpstreamCodeTooManyWebhooks

// Error is the single error shape returned by network-facing operations.
type Error struct {
	Kind            ErrorKind
	Message         string
	StatusCode      int
	UpstreamCode    int
	UpstreamMessage string
	Path            string

	// Rate limit details, set when Kind is KindRateLimit.
	Limit   int
	ResetAt time.Time
	ResetIn time.Duration

	Source error
}

func NewError(kind ErrorKind, message string) *Error {
	if kind == "" {
		kind = KindGeneric
	}
	return &Error{Kind: kind, Message: strings.TrimSpace(message)}
}

func WrapError(source error, kind ErrorKind, message string) *Error {
	err := NewError(kind, message)
	err.Source = source
	if rich, ok := source.(*Error); ok && rich != nil {
		err.StatusCode = rich.StatusCode
		err.UpstreamCode = rich.UpstreamCode
		err.UpstreamMessage = rich.UpstreamMessage
		err.Path = rich.Path
	}
	return err
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Source != nil && e.Message != "" {
		return e.Message + ": " + e.Source.Error()
	}
	if e.Message == "" && e.Source != nil {
		return e.Source.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Source
}

// HasUpstreamCode reports whether the remote API returned a structured error.
func (e *Error) HasUpstreamCode() bool {
	return e != nil && e.UpstreamCode != 0
}

// Retryable reports whether repeating the same call later may succeed. No
// operation retries on its own.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindRateLimit:
		return true
	case KindGeneric:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

func (e *Error) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category, code := serviceCategory(e)
	rich := goerrors.New(e.Error(), category).
		WithCode(code).
		WithTextCode(TextCodeFor(e.Kind))
	metadata := map[string]any{"kind": string(e.Kind)}
	if e.StatusCode != 0 {
		metadata["status_code"] = e.StatusCode
	}
	if e.HasUpstreamCode() {
		metadata["upstream_code"] = e.UpstreamCode
	}
	if e.Path != "" {
		metadata["path"] = e.Path
	}
	if e.Kind == KindRateLimit {
		if !e.ResetAt.IsZero() {
			metadata["reset_at"] = e.ResetAt.UTC().Format(time.RFC3339)
		}
		metadata["reset_in_ms"] = e.ResetIn.Milliseconds()
	}
	return rich.WithMetadata(metadata)
}

func serviceCategory(e *Error) (goerrors.Category, int) {
	switch e.Kind {
	case KindAuthentication, KindBearerToken:
		return goerrors.CategoryAuth, http.StatusUnauthorized
	case KindRateLimit:
		return goerrors.CategoryRateLimit, http.StatusTooManyRequests
	case KindTooManyWebhooks, KindTooManySubscriptions:
		return goerrors.CategoryConflict, http.StatusConflict
	case KindTypeConstraint:
		return goerrors.CategoryBadInput, http.StatusBadRequest
	case KindMissingHeader:
		return goerrors.CategoryValidation, http.StatusBadRequest
	case KindWebhookURI, KindUserSubscription:
		return goerrors.CategoryOperation, statusOr(e.StatusCode, http.StatusBadGateway)
	default:
		return goerrors.CategoryExternal, statusOr(e.StatusCode, http.StatusBadGateway)
	}
}

func statusOr(status int, fallback int) int {
	if status > 0 {
		return status
	}
	return fallback
}

func TextCodeFor(kind ErrorKind) string {
	switch kind {
	case KindAuthentication:
		return ErrorTextAuthentication
	case KindRateLimit:
		return ErrorTextRateLimit
	case KindWebhookURI:
		return ErrorTextWebhookURI
	case KindTooManyWebhooks:
		return ErrorTextTooManyWebhooks
	case KindUserSubscription:
		return ErrorTextUserSubscription
	case KindTooManySubscriptions:
		return ErrorTextTooManySubscriptions
	case KindBearerToken:
		return ErrorTextBearerToken
	case KindTypeConstraint:
		return ErrorTextTypeConstraint
	case KindMissingHeader:
		return ErrorTextMissingHeader
	default:
		return ErrorTextGeneric
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) ErrorKind {
	var rich *Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ToServiceError maps any error into the go-errors envelope.
func ToServiceError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var domain *Error
	if goerrors.As(err, &domain) && domain != nil {
		return domain.ToServiceError()
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "autohook: unexpected error").
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorTextInternal)
}

func formatUpstreamMessage(message string, status int, code int) string {
	if code != 0 {
		return fmt.Sprintf("%s (HTTP status: %d, Twitter code: %d)", message, status, code)
	}
	return fmt.Sprintf("%s (HTTP status: %d)", message, status)
}
