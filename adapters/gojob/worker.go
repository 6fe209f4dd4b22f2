package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-autohook/core"
)

// RetryPolicy bounds how often a failed lifecycle job is retried.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NackFor returns the nack options for the given failed attempt. Errors the
// remote API will answer the same way again (bad input, exhausted quotas)
// are dead lettered at once.
func (p RetryPolicy) NackFor(err error, attempt int) queue.NackOptions {
	out := queue.NackOptions{Requeue: true, Reason: strings.TrimSpace(errorText(err))}
	if p.BaseDelay > 0 && attempt > 0 {
		out.Delay = p.BaseDelay * time.Duration(1<<min(attempt-1, 10))
	}
	if rich := rateLimitReset(err); rich > out.Delay {
		out.Delay = rich
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if permanent(err) {
		out.Requeue = false
		out.DeadLetter = true
		return out
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax
	}
	return out
}

type WorkerConfig struct {
	Dequeuer queue.Dequeuer
	// Registry holds the commands mirrored by the command registry. Jobs
	// missing from it are dead lettered without running.
	Registry *jobqueuecommand.Registry
	Dispatch func(ctx context.Context, msg any) error
	Policy   RetryPolicy
	Hook     worker.Hook
	Logger   job.Logger
	Now      func() time.Time
}

// Worker runs queued lifecycle commands through the command bus.
type Worker struct {
	dequeuer queue.Dequeuer
	registry *jobqueuecommand.Registry
	dispatch func(ctx context.Context, msg any) error
	policy   RetryPolicy
	hook     worker.Hook
	logger   job.Logger
	now      func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("gojob: queue registry is required")
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = Dispatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		dequeuer: cfg.Dequeuer,
		registry: cfg.Registry,
		dispatch: cfg.Dispatch,
		policy:   cfg.Policy,
		hook:     cfg.Hook,
		logger:   cfg.Logger,
		now:      cfg.Now,
		attempts: map[string]int{},
	}, nil
}

// RunOnce takes one job from the queue and runs it. The job's own error is
// returned after the delivery was acked or nacked.
func (w *Worker) RunOnce(ctx context.Context) error {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	if msg == nil {
		_ = delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "empty delivery"})
		return fmt.Errorf("gojob: delivery has no message")
	}
	if _, ok := w.registry.Get(msg.JobID); !ok {
		err := fmt.Errorf("gojob: job %q is not registered", msg.JobID)
		_ = delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
		return err
	}
	command, err := FromExecutionMessage(msg)
	if err != nil {
		_ = delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
		return err
	}

	attempt := w.nextAttempt(msg)
	startedAt := w.now()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: startedAt}
	w.onStart(ctx, event)

	runErr := w.dispatch(ctx, command)
	event.Duration = w.now().Sub(startedAt)
	if runErr == nil {
		w.forget(msg)
		if err := delivery.Ack(ctx); err != nil {
			return err
		}
		w.onSuccess(ctx, event)
		w.log("job succeeded", "job_id", msg.JobID, "attempt", attempt, "duration_ms", event.Duration.Milliseconds())
		return nil
	}

	nack := w.policy.NackFor(runErr, attempt)
	event.Err = runErr
	event.Delay = nack.Delay
	if !nack.Requeue {
		w.forget(msg)
	}
	if err := delivery.Nack(ctx, nack); err != nil {
		return errors.Join(runErr, err)
	}
	if nack.Requeue {
		w.onRetry(ctx, event)
	} else {
		w.onFailure(ctx, event)
	}
	w.warn("job failed", "job_id", msg.JobID, "attempt", attempt, "requeue", nack.Requeue, "dead_letter", nack.DeadLetter, "error", runErr)
	return runErr
}

// Run processes jobs until ctx is done. Job errors are reported through the
// hook and logger, not returned.
func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && errors.Is(err, context.Canceled) {
			return nil
		}
	}
}

func (w *Worker) nextAttempt(msg *job.ExecutionMessage) int {
	key := attemptKey(msg)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) forget(msg *job.ExecutionMessage) {
	w.mu.Lock()
	delete(w.attempts, attemptKey(msg))
	w.mu.Unlock()
}

func (w *Worker) onStart(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *Worker) onSuccess(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *Worker) onFailure(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func (w *Worker) onRetry(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, event)
	}
}

func (w *Worker) log(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Info(msg, args...)
	}
}

func (w *Worker) warn(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}

func attemptKey(msg *job.ExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return msg.JobID
}

func permanent(err error) bool {
	switch core.KindOf(err) {
	case core.KindTypeConstraint, core.KindTooManySubscriptions, core.KindTooManyWebhooks:
		return true
	}
	return false
}

func rateLimitReset(err error) time.Duration {
	var rich *core.Error
	if goerrors.As(err, &rich) && rich.Kind == core.KindRateLimit && rich.ResetIn > 0 {
		return rich.ResetIn
	}
	return 0
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
