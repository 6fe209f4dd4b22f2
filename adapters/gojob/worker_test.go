package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"

	autohook "github.com/goliatone/go-autohook"
	"github.com/goliatone/go-autohook/adapters/gocommand"
	"github.com/goliatone/go-autohook/adapters/gologger"
	autohookcommand "github.com/goliatone/go-autohook/command"
	"github.com/goliatone/go-autohook/core"
)

type recordingHook struct {
	started   int
	succeeded int
	retried   []worker.Event
	failed    []worker.Event
}

func (h *recordingHook) OnStart(context.Context, worker.Event) { h.started++ }

func (h *recordingHook) OnSuccess(context.Context, worker.Event) { h.succeeded++ }

func (h *recordingHook) OnFailure(_ context.Context, event worker.Event) {
	h.failed = append(h.failed, event)
}

func (h *recordingHook) OnRetry(_ context.Context, event worker.Event) {
	h.retried = append(h.retried, event)
}

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
	return nil, nil
}

func (s *stubControllerService) SubscriptionCount(context.Context) (core.SubscriptionCount, error) {
	return core.SubscriptionCount{ProvisionedCount: 15}, nil
}

func queueRegistryWith(t *testing.T) *jobqueuecommand.Registry {
	t.Helper()
	reg := jobqueuecommand.NewRegistry()
	noop := command.CommandFunc[autohookcommand.RemoveWebhooksMessage](func(context.Context, autohookcommand.RemoveWebhooksMessage) error {
		return nil
	})
	if err := jobqueuecommand.RegisterCommand(reg, noop); err != nil {
		t.Fatalf("register queue command: %v", err)
	}
	return reg
}

func enqueue(t *testing.T, q *MemoryQueue, msg any) {
	t.Helper()
	encoded, err := ToExecutionMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := q.Enqueue(context.Background(), encoded); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestRetryPolicy_NackFor(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	nack := policy.NackFor(errors.New("connection reset"), 2)
	if !nack.Requeue || nack.DeadLetter || nack.Delay != 2*time.Second {
		t.Fatalf("unexpected nack for transient error: %+v", nack)
	}

	limited := &core.Error{Kind: core.KindRateLimit, Message: "rate limited", ResetIn: 7 * time.Second}
	nack = policy.NackFor(limited, 1)
	if !nack.Requeue || nack.Delay != 7*time.Second {
		t.Fatalf("expected delay to wait for the rate limit reset, got %+v", nack)
	}
	limited.ResetIn = time.Minute
	if nack = policy.NackFor(limited, 1); nack.Delay != 10*time.Second {
		t.Fatalf("expected delay capped at max, got %v", nack.Delay)
	}

	nack = policy.NackFor(core.NewError(core.KindTooManySubscriptions, "full"), 1)
	if nack.Requeue || !nack.DeadLetter {
		t.Fatalf("expected exhausted quota to dead letter, got %+v", nack)
	}

	nack = policy.NackFor(errors.New("still down"), 3)
	if nack.Requeue || !nack.DeadLetter {
		t.Fatalf("expected last attempt to dead letter, got %+v", nack)
	}
}

func TestWorker_RunOnceDispatchesAndAcks(t *testing.T) {
	q := NewMemoryQueue(4)
	enqueue(t, q, autohookcommand.RemoveWebhooksMessage{})
	hook := &recordingHook{}
	var got []any
	w, err := NewWorker(WorkerConfig{
		Dequeuer: q,
		Registry: queueRegistryWith(t),
		Hook:     hook,
		Dispatch: func(_ context.Context, msg any) error {
			got = append(got, msg)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(got) != 1 || got[0] != (autohookcommand.RemoveWebhooksMessage{}) {
		t.Fatalf("unexpected dispatched commands %#v", got)
	}
	if hook.started != 1 || hook.succeeded != 1 {
		t.Fatalf("unexpected hook calls %+v", hook)
	}
	// acked jobs release their idempotency key
	enqueue(t, q, autohookcommand.RemoveWebhooksMessage{})
	if q.Len() != 1 {
		t.Fatalf("expected job to be accepted again, got %d pending", q.Len())
	}
}

func TestWorker_UnregisteredJobIsDeadLettered(t *testing.T) {
	q := NewMemoryQueue(4)
	enqueue(t, q, autohookcommand.UnsubscribeMessage{UserID: "100001337"})
	dispatched := false
	w, err := NewWorker(WorkerConfig{
		Dequeuer: q,
		Registry: queueRegistryWith(t),
		Dispatch: func(context.Context, any) error {
			dispatched = true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected unregistered job to fail")
	}
	if dispatched {
		t.Fatalf("expected unregistered job not to run")
	}
	if dead := q.DeadLetters(); len(dead) != 1 || dead[0].Message.JobID != JobIDUnsubscribe {
		t.Fatalf("unexpected dead letters %+v", dead)
	}
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	q := NewMemoryQueue(4)
	enqueue(t, q, autohookcommand.RemoveWebhooksMessage{})
	hook := &recordingHook{}
	calls := 0
	w, err := NewWorker(WorkerConfig{
		Dequeuer: q,
		Registry: queueRegistryWith(t),
		Policy:   RetryPolicy{MaxAttempts: 3},
		Hook:     hook,
		Dispatch: func(context.Context, any) error {
			calls++
			if calls == 1 {
				return core.NewError(core.KindGeneric, "upstream unavailable")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	if len(hook.retried) != 1 || hook.retried[0].Attempt != 1 {
		t.Fatalf("expected one retry on attempt 1, got %+v", hook.retried)
	}
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if hook.succeeded != 1 || len(hook.failed) != 0 {
		t.Fatalf("unexpected hook calls %+v", hook)
	}
	if len(q.DeadLetters()) != 0 {
		t.Fatalf("expected no dead letters")
	}
}

func TestWorker_PermanentErrorIsDeadLettered(t *testing.T) {
	q := NewMemoryQueue(4)
	enqueue(t, q, autohookcommand.RemoveWebhooksMessage{})
	hook := &recordingHook{}
	w, err := NewWorker(WorkerConfig{
		Dequeuer: q,
		Registry: queueRegistryWith(t),
		Policy:   RetryPolicy{MaxAttempts: 5},
		Hook:     hook,
		Dispatch: func(context.Context, any) error {
			return core.NewError(core.KindTooManyWebhooks, "too many webhooks")
		},
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := w.RunOnce(context.Background()); !core.IsKind(err, core.KindTooManyWebhooks) {
		t.Fatalf("expected too many webhooks error, got %v", err)
	}
	if len(hook.failed) != 1 || len(hook.retried) != 0 {
		t.Fatalf("expected a single failure, got %+v", hook)
	}
	if q.Len() != 0 || len(q.DeadLetters()) != 1 {
		t.Fatalf("expected job to be dead lettered, pending=%d dead=%d", q.Len(), len(q.DeadLetters()))
	}
}

func TestNewWorker_RequiresQueueAndRegistry(t *testing.T) {
	if _, err := NewWorker(WorkerConfig{Registry: jobqueuecommand.NewRegistry()}); err == nil {
		t.Fatalf("expected missing dequeuer to fail")
	}
	if _, err := NewWorker(WorkerConfig{Dequeuer: NewMemoryQueue(1)}); err == nil {
		t.Fatalf("expected missing registry to fail")
	}
}

func TestWorker_RunsLifecycleCommandsThroughCommandBus(t *testing.T) {
	svc := &stubControllerService{}
	facade, err := autohook.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	bus := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := gocommand.RegisterFacade(bus, facade)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer gocommand.Unsubscribe(subscriptions)
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize bus: %v", err)
	}

	jobs := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := RegisterJobCommands(jobs, facade); err == nil {
		t.Fatalf("expected adapter without queue resolver to fail")
	}
	if err := jobs.AddQueueResolver("autohook.queue", jobqueuecommand.NewRegistry()); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := RegisterJobCommands(jobs, facade); err != nil {
		t.Fatalf("register job commands: %v", err)
	}
	if err := jobs.Initialize(); err != nil {
		t.Fatalf("initialize job registry: %v", err)
	}
	for _, id := range []string{JobIDRemoveWebhooks, JobIDRemoveWebhook, JobIDUnsubscribe} {
		if _, ok := jobs.Queues().Get(id); !ok {
			t.Fatalf("expected %s to be mirrored into the queue registry", id)
		}
	}

	q := NewMemoryQueue(4)
	enqueue(t, q, autohookcommand.RemoveWebhooksMessage{})
	enqueue(t, q, autohookcommand.UnsubscribeMessage{UserID: "100001337"})
	_, _, _, jobLogger := gologger.ResolveForJob(gologger.DefaultLoggerName, nil, nil)
	w, err := NewWorker(WorkerConfig{Dequeuer: q, Registry: jobs.Queues(), Logger: jobLogger})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	for range 2 {
		if err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("run once: %v", err)
		}
	}
	if svc.removed != 1 || len(svc.unsubscribed) != 1 || svc.unsubscribed[0] != "100001337" {
		t.Fatalf("unexpected controller calls: removed=%d unsubscribed=%v", svc.removed, svc.unsubscribed)
	}
}
