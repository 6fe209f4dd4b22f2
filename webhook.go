package autohook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-autohook/core"
	"github.com/goliatone/go-autohook/transport"
)

const accountActivityPath = "/1.1/account_activity/all"

func webhooksPath(env string) string {
	return accountActivityPath + "/" + url.PathEscape(env) + "/webhooks.json"
}

func webhookPath(env, id string) string {
	return accountActivityPath + "/" + url.PathEscape(env) + "/webhooks/" + url.PathEscape(id) + ".json"
}

// Start registers webhookURL for the environment. With an empty URL it first
// opens the local listener and asks the tunnel for a public URL, then appends
// the webhook route. The URL must be absolute https; anything else fails
// before the registration request is sent.
func (a *Autohook) Start(ctx context.Context, webhookURL string) (core.Webhook, error) {
	startedAt := time.Now()
	fields := map[string]any{}
	webhook, err := a.start(ctx, strings.TrimSpace(webhookURL), fields)
	a.observe(ctx, startedAt, "start", err, fields)
	return webhook, err
}

func (a *Autohook) start(ctx context.Context, webhookURL string, fields map[string]any) (core.Webhook, error) {
	failed := false
	if webhookURL == "" {
		if a.tunnel == nil {
			return core.Webhook{}, core.NewError(core.KindTypeConstraint, "autohook: a webhook url or a tunnel is required")
		}
		opened, err := a.listen(ctx)
		if err != nil {
			return core.Webhook{}, err
		}
		// A listener opened by this call does not outlive a failed start.
		defer func() {
			if opened && failed {
				a.stopListening(ctx)
			}
		}()
		publicURL, err := a.tunnel.ExposePort(ctx, a.config.Port, a.config.NgrokSecret)
		if err != nil {
			failed = true
			return core.Webhook{}, core.WrapError(err, core.KindWebhookURI, "autohook: tunnel did not expose the listener")
		}
		webhookURL = strings.TrimRight(strings.TrimSpace(publicURL), "/") + a.server.Route()
	}
	fields["url"] = webhookURL
	if err := validateWebhookURL(webhookURL); err != nil {
		failed = true
		return core.Webhook{}, err
	}

	webhook, err := a.registerWebhook(ctx, webhookURL)
	if err != nil {
		failed = true
		return core.Webhook{}, err
	}
	fields["webhook_id"] = webhook.ID

	a.mu.Lock()
	a.state = StateWebhookRegistered
	a.webhook = &webhook
	a.mu.Unlock()
	return webhook, nil
}

// listen opens the listener unless it is already up and reports whether
// this call opened it.
func (a *Autohook) listen(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listening {
		return false, nil
	}
	if err := a.listener.Listen(ctx, a.config.Port, a.server.Handler()); err != nil {
		return false, err
	}
	a.listening = true
	a.state = StateServerListening
	a.logger.Info("webhook listener started", "port", a.config.Port, "route", a.server.Route())
	return true, nil
}

func (a *Autohook) stopListening(ctx context.Context) {
	a.mu.Lock()
	if !a.listening {
		a.mu.Unlock()
		return
	}
	a.listening = false
	if a.webhook == nil {
		a.state = StateIdle
	}
	a.mu.Unlock()
	if err := a.listener.Shutdown(ctx); err != nil {
		a.logger.Warn("webhook listener shutdown failed", "error", err)
	}
}

func validateWebhookURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return core.WrapError(err, core.KindTypeConstraint, fmt.Sprintf("autohook: %q is not a valid url", raw))
	}
	if parsed.Scheme != "https" || parsed.Host == "" {
		return core.NewError(core.KindTypeConstraint, fmt.Sprintf("autohook: webhook url %q must be an absolute https url", raw))
	}
	return nil
}

func (a *Autohook) registerWebhook(ctx context.Context, webhookURL string) (core.Webhook, error) {
	path := webhooksPath(a.config.Env)
	app := a.app
	res, err := a.call(ctx, transport.Call{
		Method: http.MethodPost,
		Path:   path,
		Query:  url.Values{"url": {webhookURL}},
		User:   &app,
	}, core.KindWebhookURI)
	if err != nil {
		var rich *core.Error
		if goerrors.As(err, &rich) && rich.UpstreamCode == core.UpstreamCodeTooManyWebhooks {
			rich.Kind = core.KindTooManyWebhooks
		}
		return core.Webhook{}, err
	}

	webhook := core.Webhook{URL: webhookURL}
	if len(strings.TrimSpace(string(res.Body))) > 0 {
		if err := json.Unmarshal(res.Body, &webhook); err != nil {
			return core.Webhook{}, core.WrapError(err, core.KindWebhookURI, "autohook: webhook registration response is not json")
		}
		if webhook.URL == "" {
			webhook.URL = webhookURL
		}
	}
	return webhook, nil
}

// GetWebhooks lists the webhooks registered for the environment.
func (a *Autohook) GetWebhooks(ctx context.Context) ([]core.Webhook, error) {
	startedAt := time.Now()
	webhooks, err := a.getWebhooks(ctx)
	a.observe(ctx, startedAt, "get_webhooks", err, map[string]any{"count": len(webhooks)})
	return webhooks, err
}

func (a *Autohook) getWebhooks(ctx context.Context) ([]core.Webhook, error) {
	res, err := a.call(ctx, transport.Call{
		Method: http.MethodGet,
		Path:   webhooksPath(a.config.Env),
		Bearer: true,
	}, core.KindWebhookURI)
	if err != nil {
		return nil, err
	}
	webhooks := []core.Webhook{}
	if len(strings.TrimSpace(string(res.Body))) == 0 {
		return webhooks, nil
	}
	if err := json.Unmarshal(res.Body, &webhooks); err != nil {
		return nil, core.WrapError(err, core.KindWebhookURI, "autohook: webhook list is not json")
	}
	return webhooks, nil
}

// RemoveWebhook deletes one webhook from the environment.
func (a *Autohook) RemoveWebhook(ctx context.Context, webhook core.Webhook) error {
	startedAt := time.Now()
	err := a.removeWebhook(ctx, webhook)
	a.observe(ctx, startedAt, "remove_webhook", err, map[string]any{"webhook_id": webhook.ID})
	return err
}

func (a *Autohook) removeWebhook(ctx context.Context, webhook core.Webhook) error {
	id := strings.TrimSpace(webhook.ID)
	if id == "" {
		return core.NewError(core.KindTypeConstraint, "autohook: webhook id is required")
	}
	app := a.app
	if _, err := a.call(ctx, transport.Call{
		Method: http.MethodDelete,
		Path:   webhookPath(a.config.Env, id),
		User:   &app,
	}, core.KindWebhookURI); err != nil {
		return err
	}

	a.mu.Lock()
	if a.webhook != nil && a.webhook.ID == id {
		a.webhook = nil
		if a.listening {
			a.state = StateServerListening
		} else {
			a.state = StateIdle
		}
	}
	a.mu.Unlock()
	a.logger.Info("webhook removed", "webhook_id", id, "url", webhook.URL)
	return nil
}

// RemoveWebhooks deletes every webhook of the environment in listing order.
// The first failed delete stops the run and is returned; webhooks after it
// stay registered.
func (a *Autohook) RemoveWebhooks(ctx context.Context) error {
	startedAt := time.Now()
	fields := map[string]any{}
	err := a.removeWebhooks(ctx, fields)
	a.observe(ctx, startedAt, "remove_webhooks", err, fields)
	return err
}

func (a *Autohook) removeWebhooks(ctx context.Context, fields map[string]any) error {
	webhooks, err := a.getWebhooks(ctx)
	if err != nil {
		return err
	}
	fields["listed"] = len(webhooks)
	removed := 0
	for _, webhook := range webhooks {
		if err := a.removeWebhook(ctx, webhook); err != nil {
			fields["removed"] = removed
			fields["webhook_id"] = webhook.ID
			return err
		}
		removed++
	}
	fields["removed"] = removed
	return nil
}
