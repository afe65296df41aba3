package event

import (
	"context"
	"time"
)

/* Event bus used by every component to notify collaborators of state changes.
 * Events are fire and forget: a publish with no subscriber is not an error.
 */

const (
	TopicTask     = "task_events"
	TopicWorkflow = "workflow_events"
	TopicCache    = "cache_events"
	TopicActivity = "activity_events"
)

const (
	TaskQueued           = "task_queued"
	TaskUpdated          = "task_updated"
	WorkflowStateUpdated = "workflow_state_updated"
	WorkflowCached       = "workflow_cached"
	CacheInvalidated     = "cache_invalidated"
	WorkflowError        = "workflow_error"
)

type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// New builds an event stamped with the current time
func New(eventType string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Handler receives events of a subscribed topic
type Handler func(Event)

// Unsubscribe stops a subscription
type Unsubscribe func() error

type Publisher interface {
	Publish(ctx context.Context, topic string, e Event) error
}

type Subscriber interface {
	/* Subscribe delivers every event published on topic to handler until the
	 * returned Unsubscribe is called or ctx is done. Handlers run on a single
	 * goroutine per subscription, in publish order.
	 */
	Subscribe(ctx context.Context, topic string, handler Handler) (Unsubscribe, error)
}

type Bus interface {
	Publisher
	Subscriber
}
