package gojob

import (
	"context"
	"fmt"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// MemoryQueue is an in-process go-job queue for a single controller. Jobs
// with an idempotency key already pending are dropped.
type MemoryQueue struct {
	mu      sync.Mutex
	ready   chan *job.ExecutionMessage
	pending map[string]struct{}
	dead    []DeadLetter
}

// DeadLetter is a job that will not be retried.
type DeadLetter struct {
	Message *job.ExecutionMessage
	Reason  string
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 16
	}
	return &MemoryQueue{
		ready:   make(chan *job.ExecutionMessage, capacity),
		pending: map[string]struct{}{},
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	q.mu.Lock()
	if key := msg.IdempotencyKey; key != "" {
		if _, dup := q.pending[key]; dup {
			q.mu.Unlock()
			return nil
		}
		q.pending[key] = struct{}{}
	}
	q.mu.Unlock()

	select {
	case q.ready <- msg:
		return nil
	case <-ctx.Done():
		q.release(msg)
		return ctx.Err()
	default:
		q.release(msg)
		return fmt.Errorf("gojob: queue is full")
	}
}

// Dequeue blocks until a job is ready or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: queue is not configured")
	}
	select {
	case msg := <-q.ready:
		return &memoryDelivery{queue: q, msg: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len is the number of jobs waiting.
func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.ready)
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.dead...)
}

func (q *MemoryQueue) release(msg *job.ExecutionMessage) {
	if msg.IdempotencyKey == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, msg.IdempotencyKey)
	q.mu.Unlock()
}

func (q *MemoryQueue) requeue(msg *job.ExecutionMessage, delay time.Duration) {
	if delay <= 0 {
		select {
		case q.ready <- msg:
		default:
			go func() { q.ready <- msg }()
		}
		return
	}
	time.AfterFunc(delay, func() { q.ready <- msg })
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *job.ExecutionMessage
	once  sync.Once
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.once.Do(func() { d.queue.release(d.msg) })
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.once.Do(func() {
		if opts.Requeue && !opts.DeadLetter {
			d.queue.requeue(d.msg, opts.Delay)
			return
		}
		d.queue.release(d.msg)
		if opts.DeadLetter {
			d.queue.mu.Lock()
			d.queue.dead = append(d.queue.dead, DeadLetter{Message: d.msg, Reason: opts.Reason})
			d.queue.mu.Unlock()
		}
	})
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
