package task

import "fmt"

/* Status represents the lifecycle of a task
 * Queued -> Processing -> Completed/Failed
 */
type Status int

const (
	Queued Status = iota + 1
	Processing
	Completed
	Failed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Queued:
		return "queued"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) (Status, error) {
	switch str {
	case "queued":
		return Queued, nil
	case "processing":
		return Processing, nil
	case "completed":
		return Completed, nil
	case "failed":
		return Failed, nil
	default:
		return 0, fmt.Errorf("invalid task status: %q", str)
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Queued || s > Failed {
		return fmt.Errorf("invalid task status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == Completed || s == Failed
}

// CanTransition reports whether a task may move from s to next
func (s Status) CanTransition(next Status) bool {
	switch s {
	case Queued:
		return next == Processing
	case Processing:
		return next == Completed || next == Failed
	default:
		return false
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := NewStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
