package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"graduation-engine/internal/observability"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 30 * time.Second

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultMaxDelay   = 10 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 16 << 20
)

// StatusError is a non-200 HTTP answer from the endpoint.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Temporary reports whether the same request may succeed later.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// HTTPClient calls a JSON-RPC endpoint over HTTP POST.
//
// Transport failures, 429 and 5xx answers are retried with capped exponential
// backoff; a Retry-After header stretches the wait up to the cap. Errors
// reported inside the JSON-RPC body come back as *RPCError and are final.
type HTTPClient struct {
	endpoint   string
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	ids        atomic.Uint64
	logger     *zap.Logger
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.http.Timeout = d }
}

// WithMaxRetries sets how many times a failed attempt is repeated.
// Zero means exactly one attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retryDelay = d }
}

// WithMaxDelay caps the backoff delay, Retry-After included.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.maxDelay = d }
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *HTTPClient) { c.logger = l }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = hc }
}

// NewHTTPClient creates a JSON-RPC client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		http:       &http.Client{Timeout: DefaultTimeout},
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("jsonrpc")
	return c
}

// Call invokes method and decodes the result into result (which may be nil).
func (c *HTTPClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	body, err := json.Marshal(newRequest(c.ids.Add(1), method, params))
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	wait := newBackoff(c.retryDelay, c.maxDelay)
	for attempt := 0; ; attempt++ {
		env, err := c.post(ctx, body)
		if err == nil {
			return env.decode(result)
		}
		if ctx.Err() != nil || !retryable(err) || attempt >= c.maxRetries {
			if attempt == 0 {
				return err
			}
			return fmt.Errorf("%s failed after %d attempts: %w", method, attempt+1, err)
		}

		delay := wait.Next()
		var st *StatusError
		if errors.As(err, &st) && st.RetryAfter > delay {
			delay = min(st.RetryAfter, c.maxDelay)
		}
		c.logger.Debug("retrying call",
			zap.String("method", method),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// post performs one round trip.
func (c *HTTPClient) post(ctx context.Context, body []byte) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Body:       string(bytes.TrimSpace(raw)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &env, nil
}

// retryable reports whether a failed attempt is worth repeating.
// Only non-temporary HTTP statuses are final; remote RPC errors never reach here.
func retryable(err error) bool {
	var st *StatusError
	if errors.As(err, &st) {
		return st.Temporary()
	}
	return true
}

// parseRetryAfter reads the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

var _ Caller = (*HTTPClient)(nil)
