package gojob

import (
	"context"
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"

	autohook "github.com/goliatone/go-autohook"
	"github.com/goliatone/go-autohook/adapters/gocommand"
	autohookcommand "github.com/goliatone/go-autohook/command"
	"github.com/goliatone/go-autohook/core"
)

// Job ids are the command types, which is also the key the command registry
// mirrors commands under.
const (
	JobIDRemoveWebhook  = autohookcommand.TypeRemoveWebhook
	JobIDRemoveWebhooks = autohookcommand.TypeRemoveWebhooks
	JobIDUnsubscribe    = autohookcommand.TypeUnsubscribe
)

const dedupDrop job.DeduplicationPolicy = "drop"

// ToExecutionMessage encodes a lifecycle command as a go-job message.
// Subscribe and Start are not queueable: the first carries user secrets and
// the second needs the caller to wait for the registered webhook.
func ToExecutionMessage(msg any) (*job.ExecutionMessage, error) {
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return nil, err
	}
	out := &job.ExecutionMessage{DedupPolicy: dedupDrop}
	switch m := msg.(type) {
	case autohookcommand.RemoveWebhooksMessage:
		out.JobID = JobIDRemoveWebhooks
		out.Parameters = map[string]any{}
		out.IdempotencyKey = JobIDRemoveWebhooks
	case autohookcommand.RemoveWebhookMessage:
		id := strings.TrimSpace(m.Webhook.ID)
		out.JobID = JobIDRemoveWebhook
		out.Parameters = map[string]any{"webhook_id": id, "webhook_url": m.Webhook.URL}
		out.IdempotencyKey = JobIDRemoveWebhook + ":" + id
	case autohookcommand.UnsubscribeMessage:
		id := strings.TrimSpace(m.UserID)
		out.JobID = JobIDUnsubscribe
		out.Parameters = map[string]any{"user_id": id}
		out.IdempotencyKey = JobIDUnsubscribe + ":" + id
	default:
		return nil, fmt.Errorf("gojob: %T cannot run as a job", msg)
	}
	out.ScriptPath = out.JobID
	return out, nil
}

// FromExecutionMessage decodes a go-job message back into the lifecycle
// command it was built from.
func FromExecutionMessage(msg *job.ExecutionMessage) (any, error) {
	if msg == nil {
		return nil, fmt.Errorf("gojob: execution message is required")
	}
	var out any
	switch strings.TrimSpace(msg.JobID) {
	case JobIDRemoveWebhooks:
		out = autohookcommand.RemoveWebhooksMessage{}
	case JobIDRemoveWebhook:
		out = autohookcommand.RemoveWebhookMessage{Webhook: core.Webhook{
			ID:  stringParam(msg.Parameters, "webhook_id"),
			URL: stringParam(msg.Parameters, "webhook_url"),
		}}
	case JobIDUnsubscribe:
		out = autohookcommand.UnsubscribeMessage{UserID: stringParam(msg.Parameters, "user_id")}
	default:
		return nil, fmt.Errorf("gojob: unknown job %q", msg.JobID)
	}
	if err := gocommand.ValidateMessageContract(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dispatch sends a decoded lifecycle command through the command bus.
func Dispatch(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case autohookcommand.RemoveWebhooksMessage:
		return gocommand.Dispatch(ctx, m)
	case autohookcommand.RemoveWebhookMessage:
		return gocommand.Dispatch(ctx, m)
	case autohookcommand.UnsubscribeMessage:
		return gocommand.Dispatch(ctx, m)
	default:
		return fmt.Errorf("gojob: %T cannot run as a job", msg)
	}
}

// RegisterJobCommands registers the queueable facade commands in adapter, so
// that Initialize mirrors them into the adapter's queue registry. They are
// not subscribed; RegisterFacade on the bus adapter does that.
func RegisterJobCommands(adapter *gocommand.RegistryAdapter, facade *autohook.Facade) error {
	if adapter == nil || adapter.Queues() == nil {
		return fmt.Errorf("gojob: adapter needs a queue resolver")
	}
	if facade == nil {
		return fmt.Errorf("gojob: facade is required")
	}
	commands := facade.Commands()
	for _, cmd := range []any{commands.RemoveWebhooks, commands.RemoveWebhook, commands.Unsubscribe} {
		if err := adapter.RegisterCommand(cmd); err != nil {
			return err
		}
	}
	return nil
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}
