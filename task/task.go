package task

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidQueueType  = errors.New("invalid queue type")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrUnknownKind       = errors.New("no handler registered for task kind")
)

// Task is the metadata stored at task:{id}
type Task struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	QueueType QueueType      `json:"queue_type"`
	Data      map[string]any `json:"data"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Timeout is the metadata lifetime in seconds; an unclaimed task expires with it
	Timeout int `json:"timeout,omitempty"`

	RunAt  *time.Time     `json:"run_at,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// HandlerFunc executes one task of a registered kind
type HandlerFunc func(ctx context.Context, t Task) (map[string]any, error)

/* Enqueuer is what producers need from the queue */
type Enqueuer interface {
	Enqueue(ctx context.Context, queueType QueueType, kind string, data map[string]any, timeout time.Duration) (string, error)
	EnqueueAt(ctx context.Context, queueType QueueType, kind string, data map[string]any, runAt time.Time) (string, error)
}
