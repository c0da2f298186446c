package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memoryQueueDepth = 64

// MemoryQueue moves tasks over in-process channels. It backs the standalone
// single-binary mode where the web process runs its own worker; tasks are
// lost on restart.
type MemoryQueue struct {
	log       *slog.Logger
	retryBase time.Duration

	mu     sync.Mutex
	queues map[TaskType]chan Task
}

func NewMemory(log *slog.Logger) *MemoryQueue {
	return &MemoryQueue{
		log:       log,
		retryBase: time.Second,
		queues:    make(map[TaskType]chan Task),
	}
}

func (q *MemoryQueue) channel(t TaskType) chan Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.queues[t]
	if !ok {
		ch = make(chan Task, memoryQueueDepth)
		q.queues[t] = ch
	}
	return ch
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Type == "" {
		return errors.New("task type required")
	}
	select {
	case q.channel(task.Type) <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	ch := q.channel(taskType)
	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-ch:
			if err := waitUntil(ctx, task.NotBefore); err != nil {
				return nil
			}
			if err := handler(ctx, task); err != nil {
				requeueFailed(ctx, q, q.log, task, q.retryBase, err)
			}
		}
	}
}
