package task

import "fmt"

/* QueueType selects one of the three priority lists
 * Workers always drain High before Normal and Normal before Low
 */
type QueueType int

const (
	High QueueType = iota + 1
	Normal
	Low
)

// Priorities lists the queues in the order workers drain them
var Priorities = []QueueType{High, Normal, Low}

// String returns the string representation of the queue type
func (q QueueType) String() string {
	switch q {
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// NewQueueType parses a queue type name
func NewQueueType(str string) (QueueType, error) {
	switch str {
	case "high":
		return High, nil
	case "normal":
		return Normal, nil
	case "low":
		return Low, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidQueueType, str)
	}
}

// Validate checks if the queue type is valid
func (q QueueType) Validate() error {
	if q < High || q > Low {
		return fmt.Errorf("%w: %d", ErrInvalidQueueType, q)
	}
	return nil
}

// Key returns the list holding ids of this priority
func (q QueueType) Key() string {
	return fmt.Sprintf("queue:%s_priority", q.String())
}

func (q QueueType) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *QueueType) UnmarshalText(text []byte) error {
	parsed, err := NewQueueType(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
