package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// MaxResponseBody caps how much of a target response is kept on the delivery
const MaxResponseBody = 64 * 1024

// Request is one outbound HTTP attempt
type Request struct {
	Method    string
	URL       string
	Headers   map[string]string
	Body      []byte
	Timeout   time.Duration
	VerifyTLS bool
}

// Result is what the target answered
type Result struct {
	StatusCode int
	Headers    map[string]string
	Body       string
	Duration   time.Duration
}

// Success reports a 2xx answer
func (r Result) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

/* Sender performs outbound attempts
 * A transport failure is returned as an error; any HTTP answer, whatever
 * its status, is a Result
 */
type Sender interface {
	Send(ctx context.Context, req Request) (Result, error)
}

// Dispatcher is the net/http Sender. An optional token bucket paces every
// outgoing attempt across all webhooks.
type Dispatcher struct {
	client   *http.Client
	insecure *http.Client
	limiter  *rate.Limiter
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithRateLimit allows at most limit attempts per second with the given burst
func WithRateLimit(limit rate.Limit, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		d.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithTransport sends every attempt through rt, whatever its VerifyTLS.
// TLS settings are then up to rt. Mostly for tests.
func WithTransport(rt http.RoundTripper) DispatcherOption {
	return func(d *Dispatcher) {
		d.client = &http.Client{Transport: rt}
		d.insecure = d.client
	}
}

func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	d := &Dispatcher{
		client:   &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		insecure: &http.Client{Transport: insecureTransport},
		limiter:  rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send performs req under its own timeout
func (d *Dispatcher) Send(ctx context.Context, req Request) (Result, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("waiting for outbound rate limit: %w", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := d.client
	if !req.VerifyTLS {
		client = d.insecure
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Duration: time.Since(start)}, err
	}
	defer resp.Body.Close()

	// The status line is the answer. A body cut short keeps what arrived,
	// so a 2xx is never retried over a broken read.
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	if err == nil {
		// Drain the rest so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseBody))
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return Result{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       string(body),
		Duration:   time.Since(start),
	}, nil
}
