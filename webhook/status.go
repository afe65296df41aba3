package webhook

import "fmt"

/* Status represents the lifecycle of a registered webhook
 * Only Active webhooks accept triggers and delivery attempts
 */
type Status int

const (
	Active Status = iota + 1
	Inactive
	Failed
	Deleted
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Failed:
		return "failed"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) (Status, error) {
	switch str {
	case "active":
		return Active, nil
	case "inactive":
		return Inactive, nil
	case "failed":
		return Failed, nil
	case "deleted":
		return Deleted, nil
	default:
		return 0, fmt.Errorf("invalid webhook status: %q", str)
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Active || s > Deleted {
		return fmt.Errorf("invalid webhook status: %d", s)
	}
	return nil
}

/* DeliveryStatus represents the state of a single delivery
 * Follows the lifecycle: Pending -> Success/Failed
 * A pending delivery with a next retry is waiting for its next attempt
 */
type DeliveryStatus int

const (
	DeliveryPending DeliveryStatus = iota + 1
	DeliverySuccess
	DeliveryFailed
)

// String returns the string representation of the delivery status
func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliverySuccess:
		return "success"
	case DeliveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewDeliveryStatus creates a DeliveryStatus from a string
func NewDeliveryStatus(str string) (DeliveryStatus, error) {
	switch str {
	case "pending":
		return DeliveryPending, nil
	case "success":
		return DeliverySuccess, nil
	case "failed":
		return DeliveryFailed, nil
	default:
		return 0, fmt.Errorf("invalid delivery status: %q", str)
	}
}

// Validate checks if the delivery status is valid
func (s DeliveryStatus) Validate() error {
	if s < DeliveryPending || s > DeliveryFailed {
		return fmt.Errorf("invalid delivery status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s DeliveryStatus) IsFinal() bool {
	return s == DeliverySuccess || s == DeliveryFailed
}
