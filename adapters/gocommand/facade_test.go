package gocommand

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	autohook "github.com/goliatone/go-autohook"
	autohookcommand "github.com/goliatone/go-autohook/command"
	"github.com/goliatone/go-autohook/core"
	autohookquery "github.com/goliatone/go-autohook/query"
)

type stubControllerService struct {
	removed      int
	unsubscribed []string
}

func (s *stubControllerService) Start(_ context.Context, webhookURL string) (core.Webhook, error) {
	return core.Webhook{ID: "w1", URL: webhookURL, Valid: true}, nil
}

func (s *stubControllerService) RemoveWebhook(context.Context, core.Webhook) error {
	s.removed++
	return nil
}

func (s *stubControllerService) RemoveWebhooks(context.Context) error {
	s.removed++
	return nil
}

func (s *stubControllerService) Subscribe(context.Context, core.UserAuth) (core.UserIdentity, error) {
	return core.UserIdentity{ScreenName: "TestUser"}, nil
}

func (s *stubControllerService) Unsubscribe(_ context.Context, userID string) error {
	s.unsubscribed = append(s.unsubscribed, userID)
	return nil
}

func (s *stubControllerService) GetWebhooks(context.Context) ([]core.Webhook, error) {
	return []core.Webhook{{ID: "w1", URL: "https://example.com/webhook"}}, nil
}

func (s *stubControllerService) SubscriptionCount(context.Context) (core.SubscriptionCount, error) {
	return core.SubscriptionCount{SubscriptionsCount: 1, ProvisionedCount: 15}, nil
}

func TestRegisterFacade_DispatchesThroughController(t *testing.T) {
	svc := &stubControllerService{}
	facade, err := autohook.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	adapter := NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := RegisterFacade(adapter, facade)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer Unsubscribe(subscriptions)
	if len(subscriptions) != 7 {
		t.Fatalf("expected 7 subscriptions, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	if err := Dispatch(ctx, autohookcommand.RemoveWebhooksMessage{}); err != nil {
		t.Fatalf("dispatch remove webhooks: %v", err)
	}
	if err := Dispatch(ctx, autohookcommand.UnsubscribeMessage{UserID: "100001337"}); err != nil {
		t.Fatalf("dispatch unsubscribe: %v", err)
	}
	if svc.removed != 1 || len(svc.unsubscribed) != 1 || svc.unsubscribed[0] != "100001337" {
		t.Fatalf("unexpected controller calls: removed=%d unsubscribed=%v", svc.removed, svc.unsubscribed)
	}

	webhooks, err := Query[autohookquery.GetWebhooksMessage, []core.Webhook](ctx, autohookquery.GetWebhooksMessage{})
	if err != nil {
		t.Fatalf("query webhooks: %v", err)
	}
	if len(webhooks) != 1 || webhooks[0].ID != "w1" {
		t.Fatalf("unexpected webhooks %#v", webhooks)
	}
}

func TestLifecycleCommandMirroredIntoQueueRegistry(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(autohookcommand.NewRemoveWebhooksCommand(&stubControllerService{})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if _, ok := queueRegistry.Get(autohookcommand.TypeRemoveWebhooks); !ok {
		t.Fatalf("expected remove webhooks command to be mirrored into queue registry")
	}
}

func TestRegisterFacade_RequiresFacade(t *testing.T) {
	if _, err := RegisterFacade(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected missing facade to fail")
	}
}
