package webhook

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

var (
	ErrWebhookNotFound   = errors.New("webhook not found")
	ErrDeliveryNotFound  = errors.New("delivery not found")
	ErrWebhookNotActive  = errors.New("webhook is not active")
	ErrInvalidConfig     = errors.New("invalid webhook config")
	ErrInvalidPayload    = errors.New("payload must be a JSON object")
	ErrDeliveryNotFailed = errors.New("only failed deliveries can be retried")
)

const (
	DefaultHeaderName    = "X-Webhook-Signature"
	DefaultHashAlgorithm = "sha256"

	MinTimeout     = time.Second
	MaxTimeout     = 300 * time.Second
	DefaultTimeout = 30 * time.Second
)

var allowedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// RetryStrategy controls the exponential backoff between delivery attempts
type RetryStrategy struct {
	MaxRetries      int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultRetryStrategy returns 3 retries starting at one minute, doubling up to one hour
func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{
		MaxRetries:      3,
		InitialInterval: time.Minute,
		Multiplier:      2.0,
		MaxInterval:     time.Hour,
	}
}

// Validate checks the backoff parameters
func (r RetryStrategy) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrInvalidConfig)
	}
	if r.InitialInterval <= 0 {
		return fmt.Errorf("%w: initial_interval must be positive", ErrInvalidConfig)
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be >= 1", ErrInvalidConfig)
	}
	if r.MaxInterval < r.InitialInterval {
		return fmt.Errorf("%w: max_interval must be >= initial_interval", ErrInvalidConfig)
	}
	return nil
}

// Backoff returns min(initial * multiplier^(attempts-1), max) for attempts >= 1
func (r RetryStrategy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(r.InitialInterval) * math.Pow(r.Multiplier, float64(attempts-1))
	if math.IsInf(delay, 0) || delay > float64(r.MaxInterval) {
		return r.MaxInterval
	}
	return time.Duration(delay)
}

// Config describes where and how a webhook is delivered
type Config struct {
	URL           string
	Method        string
	Headers       map[string]string
	Timeout       time.Duration
	VerifyTLS     bool
	RetryStrategy RetryStrategy
}

// DefaultConfig returns a POST config for targetURL with the default timeout and retries
func DefaultConfig(targetURL string) Config {
	return Config{
		URL:           targetURL,
		Method:        "POST",
		Headers:       map[string]string{},
		Timeout:       DefaultTimeout,
		VerifyTLS:     true,
		RetryStrategy: DefaultRetryStrategy(),
	}
}

// Validate checks the target, method, timeout and retry strategy
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: url must be absolute: %q", ErrInvalidConfig, c.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https: %q", ErrInvalidConfig, u.Scheme)
	}
	if !allowedMethods[strings.ToUpper(c.Method)] {
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidConfig, c.Method)
	}
	if c.Timeout < MinTimeout || c.Timeout > MaxTimeout {
		return fmt.Errorf("%w: timeout must be between %s and %s", ErrInvalidConfig, MinTimeout, MaxTimeout)
	}
	return c.RetryStrategy.Validate()
}

/* Secret is generated once at registration and never changes afterwards
 * HeaderName carries the hex HMAC of the canonical JSON payload
 */
type Secret struct {
	Key           string
	HeaderName    string
	HashAlgorithm string
}

/* Webhook represents a registered outbound target owned by a user
 * Uses value semantics as it represents data, not behavior
 */
type Webhook struct {
	ID                   string
	Name                 string
	Config               Config
	Secret               Secret
	WorkflowID           string
	UserID               string
	Status               Status
	TotalDeliveries      int64
	SuccessfulDeliveries int64
	FailedDeliveries     int64
	TotalAttempts        int64
	LastTriggered        *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Response is what the target answered on the last attempt
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Delivery is one logical send of a payload to a webhook, across all its attempts
type Delivery struct {
	ID          string
	WebhookID   string
	Payload     map[string]any
	Status      DeliveryStatus
	Headers     map[string]string
	Attempts    int
	NextRetry   *time.Time
	Response    *Response
	Error       string
	ErrorType   string
	DurationMS  int64
	RetryOf     string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// ListFilter narrows a webhook listing; zero values match everything
type ListFilter struct {
	WorkflowID string
	Status     Status
}

// DeliveryFilter narrows and pages a delivery listing
type DeliveryFilter struct {
	Status DeliveryStatus
	Limit  int
	Offset int
}
