package recovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// Kind is the structured category a failure is raised with
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindProcessing
	KindConnectivity
	KindTimeout
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProcessing:
		return "processing"
	case KindConnectivity:
		return "connectivity"
	case KindTimeout:
		return "timeout"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

/* Error tags a failure with a Kind so it can be classified without
 * matching on concrete error types
 */
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error from a format string
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ErrorType is the coarse failure category used to pick a recovery policy
type ErrorType int

const (
	Validation ErrorType = iota + 1
	Processing
	Integration
	System
	Timeout
)

func (t ErrorType) String() string {
	switch t {
	case Validation:
		return "validation"
	case Processing:
		return "processing"
	case Integration:
		return "integration"
	case System:
		return "system"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Severity drives how loudly a failure is logged
type Severity int

const (
	Low Severity = iota + 1
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// KindOf extracts the Kind of err. Untagged standard library network and
// deadline errors are mapped to connectivity and timeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindConnectivity
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnectivity
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnectivity
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindConnectivity
	}

	return KindUnknown
}

// Classify maps a failure to its ErrorType and Severity
func Classify(err error) (ErrorType, Severity) {
	switch KindOf(err) {
	case KindValidation:
		return Validation, Low
	case KindConnectivity:
		return Integration, High
	case KindTimeout:
		return Timeout, Medium
	case KindProcessing:
		return Processing, Medium
	case KindInternal:
		return System, High
	default:
		return System, High
	}
}
