package command

import (
	"strings"

	"github.com/goliatone/go-autohook/core"
)

const (
	TypeStart          = "autohook.command.webhook.start"
	TypeRemoveWebhook  = "autohook.command.webhook.remove"
	TypeRemoveWebhooks = "autohook.command.webhook.remove_all"
	TypeSubscribe      = "autohook.command.subscription.subscribe"
	TypeUnsubscribe    = "autohook.command.subscription.unsubscribe"
)

// StartMessage registers WebhookURL, or a tunnel URL when it is empty.
type StartMessage struct {
	WebhookURL string
}

func (StartMessage) Type() string { return TypeStart }

func (m StartMessage) Validate() error {
	url := strings.TrimSpace(m.WebhookURL)
	if url != "" && !strings.HasPrefix(url, "https://") {
		return commandValidationError("webhook_url", "must use https")
	}
	return nil
}

type RemoveWebhookMessage struct {
	Webhook core.Webhook
}

func (RemoveWebhookMessage) Type() string { return TypeRemoveWebhook }

func (m RemoveWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Webhook.ID) == "" {
		return commandValidationError("webhook_id", "webhook id is required")
	}
	return nil
}

type RemoveWebhooksMessage struct{}

func (RemoveWebhooksMessage) Type() string { return TypeRemoveWebhooks }

func (RemoveWebhooksMessage) Validate() error { return nil }

type SubscribeMessage struct {
	Auth core.UserAuth
}

func (SubscribeMessage) Type() string { return TypeSubscribe }

func (m SubscribeMessage) Validate() error {
	if strings.TrimSpace(m.Auth.AccessToken) == "" {
		return commandValidationError("access_token", "access token is required")
	}
	if strings.TrimSpace(m.Auth.AccessTokenSecret) == "" {
		return commandValidationError("access_token_secret", "access token secret is required")
	}
	return nil
}

type UnsubscribeMessage struct {
	UserID string
}

func (UnsubscribeMessage) Type() string { return TypeUnsubscribe }

func (m UnsubscribeMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}
