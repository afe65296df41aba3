package recovery

import "time"

// Policy is the retry budget of an ErrorType
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// Policies is the fixed retry table by ErrorType
var Policies = map[ErrorType]Policy{
	Validation:  {MaxRetries: 0, Delay: 0},
	Processing:  {MaxRetries: 3, Delay: 300 * time.Second},
	Integration: {MaxRetries: 5, Delay: 600 * time.Second},
	System:      {MaxRetries: 2, Delay: 1800 * time.Second},
	Timeout:     {MaxRetries: 3, Delay: 900 * time.Second},
}

// Action is what the handler does about a failure
type Action string

const (
	ActionFail  Action = "fail"
	ActionRetry Action = "retry"
)

const (
	ReasonValidation         = "validation_error"
	ReasonMaxRetriesExceeded = "max_retries_exceeded"
)

// Strategy is the recovery decision for one failure
type Strategy struct {
	Action          Action        `json:"action"`
	Reason          string        `json:"reason,omitempty"`
	Delay           time.Duration `json:"delay,omitempty"`
	CleanupRequired bool          `json:"cleanup_required"`
}

// Context describes the failing execution
type Context struct {
	UserID  string         `json:"user_id,omitempty"`
	Step    string         `json:"step,omitempty"`
	Retries int            `json:"retries"`
	Values  map[string]any `json:"values,omitempty"`
}

// DetermineStrategy decides between failing and retrying.
// Validation failures never retry, whatever budget is left.
func DetermineStrategy(errType ErrorType, ec Context) Strategy {
	if errType == Validation {
		return Strategy{Action: ActionFail, Reason: ReasonValidation}
	}

	policy, ok := Policies[errType]
	if !ok {
		policy = Policies[System]
	}
	if ec.Retries >= policy.MaxRetries {
		return Strategy{Action: ActionFail, Reason: ReasonMaxRetriesExceeded}
	}

	switch errType {
	case Integration:
		return Strategy{Action: ActionRetry, Delay: policy.Delay}
	case System:
		return Strategy{Action: ActionRetry, Delay: policy.Delay, CleanupRequired: true}
	default:
		return Strategy{Action: ActionRetry, Delay: policy.Delay}
	}
}
