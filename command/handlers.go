package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-autohook/core"
)

// MutatingService is the slice of the controller that changes remote state.
type MutatingService interface {
	Start(ctx context.Context, webhookURL string) (core.Webhook, error)
	RemoveWebhook(ctx context.Context, webhook core.Webhook) error
	RemoveWebhooks(ctx context.Context) error
	Subscribe(ctx context.Context, auth core.UserAuth) (core.UserIdentity, error)
	Unsubscribe(ctx context.Context, userID string) error
}

type StartCommand struct {
	service MutatingService
}

func NewStartCommand(service MutatingService) *StartCommand {
	return &StartCommand{service: service}
}

func (c *StartCommand) Execute(ctx context.Context, msg StartMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: start service is required")
	}
	out, err := c.service.Start(ctx, msg.WebhookURL)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveWebhookCommand struct {
	service MutatingService
}

func NewRemoveWebhookCommand(service MutatingService) *RemoveWebhookCommand {
	return &RemoveWebhookCommand{service: service}
}

func (c *RemoveWebhookCommand) Execute(ctx context.Context, msg RemoveWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: remove webhook service is required")
	}
	return c.service.RemoveWebhook(ctx, msg.Webhook)
}

type RemoveWebhooksCommand struct {
	service MutatingService
}

func NewRemoveWebhooksCommand(service MutatingService) *RemoveWebhooksCommand {
	return &RemoveWebhooksCommand{service: service}
}

func (c *RemoveWebhooksCommand) Execute(ctx context.Context, _ RemoveWebhooksMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: remove webhooks service is required")
	}
	return c.service.RemoveWebhooks(ctx)
}

type SubscribeCommand struct {
	service MutatingService
}

func NewSubscribeCommand(service MutatingService) *SubscribeCommand {
	return &SubscribeCommand{service: service}
}

func (c *SubscribeCommand) Execute(ctx context.Context, msg SubscribeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscribe service is required")
	}
	out, err := c.service.Subscribe(ctx, msg.Auth)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UnsubscribeCommand struct {
	service MutatingService
}

func NewUnsubscribeCommand(service MutatingService) *UnsubscribeCommand {
	return &UnsubscribeCommand{service: service}
}

func (c *UnsubscribeCommand) Execute(ctx context.Context, msg UnsubscribeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: unsubscribe service is required")
	}
	return c.service.Unsubscribe(ctx, msg.UserID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
