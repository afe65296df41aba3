package webhook

import (
	"context"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// Reader provides read operations for webhooks and their deliveries
type Reader interface {
	Get(ctx context.Context, id string) (Webhook, error)
	/* List returns the webhooks of a user, newest first */
	List(ctx context.Context, userID string, filter ListFilter) ([]Webhook, error)
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	/* ListDeliveries pages the deliveries of a webhook, newest first */
	ListDeliveries(ctx context.Context, webhookID string, filter DeliveryFilter) ([]Delivery, error)
}

// Writer provides write operations for webhooks and their deliveries
type Writer interface {
	Create(ctx context.Context, wh Webhook) error
	/* UpdateConfig replaces the target config; the secret is never touched */
	UpdateConfig(ctx context.Context, id string, cfg Config) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	/* RecordOutcome counts a terminal delivery outcome and stamps last_triggered */
	RecordOutcome(ctx context.Context, id string, success bool, at time.Time) error

	CreateDelivery(ctx context.Context, d Delivery) error
	/* SaveDelivery persists every delivery field except attempts */
	SaveDelivery(ctx context.Context, d Delivery) error
	/* IncrementAttempts atomically bumps the delivery attempts and the webhook
	 * total_attempts counter, returning the new attempts value
	 */
	IncrementAttempts(ctx context.Context, deliveryID, webhookID string) (int, error)
	/* ClaimStalled returns pending deliveries due before dueBefore and moves
	 * their due time to claimUntil
	 */
	ClaimStalled(ctx context.Context, dueBefore, claimUntil time.Time, limit int) ([]string, error)
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	Reader
	Writer
	Close(ctx context.Context) error
}
