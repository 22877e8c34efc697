// Package transport sends dispatch requests over HTTP with rate limiting and retries.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/dispatch"
)

// DefaultMaxResponseBytes caps a response body read into memory.
const DefaultMaxResponseBytes = 50 << 20 // 50MB

// maxRetryAfter bounds how long a Retry-After header can stall a call.
const maxRetryAfter = 60 * time.Second

// Options configures an HTTP transport. Zero values pick the defaults.
type Options struct {
	Timeout          time.Duration
	MaxResponseBytes int64
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Client overrides the underlying http.Client; Timeout is ignored when set.
	Client *http.Client
}

// HTTP is a dispatch.Transport backed by net/http.
type HTTP struct {
	client           *http.Client
	limiter          *rate.Limiter
	logger           *common.Logger
	maxResponseBytes int64
	maxRetries       int
	initialBackoff   time.Duration
	maxBackoff       time.Duration
}

// NewHTTP creates an HTTP transport.
func NewHTTP(opts Options, logger *common.Logger) *HTTP {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	maxBytes := opts.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RateLimit)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &HTTP{
		client:           client,
		limiter:          limiter,
		logger:           logger,
		maxResponseBytes: maxBytes,
		maxRetries:       retries,
		initialBackoff:   initial,
		maxBackoff:       maxBackoff,
	}
}

// statusError marks a response whose status is worth another attempt.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.code)
}

// Send performs the request. 429 is retried for every method; 5xx and network
// errors only for idempotent methods. When retries run out the last response
// is returned as-is so the caller sees the real status.
func (t *HTTP) Send(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	policy := &retryAfterBackOff{
		BackOff: t.newBackOff(),
		max:     maxRetryAfter,
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(t.maxRetries)), ctx)

	var last *dispatch.Response
	attempt := 0
	op := func() error {
		attempt++
		policy.wait = 0

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		resp, err := t.do(ctx, req)
		if err != nil {
			if ctx.Err() != nil || !idempotent(req.Method) {
				return backoff.Permanent(err)
			}
			return err
		}
		last = resp

		if retryableStatus(req.Method, resp.StatusCode) {
			policy.wait = retryAfter(resp.Header, time.Now())
			return &statusError{code: resp.StatusCode}
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		t.logger.Warn().Str("method", req.Method).Int("attempt", attempt).Dur("backoff", next).Str("error", err.Error()).Msg("retrying request")
	}

	err := backoff.RetryNotify(op, b, notify)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && last != nil {
			return last, nil
		}
		return nil, err
	}
	return last, nil
}

func (t *HTTP) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = t.initialBackoff
	eb.MaxInterval = t.maxBackoff
	eb.MaxElapsedTime = 0
	return eb
}

// do is a single attempt. The body is re-read from the byte slice each time.
func (t *HTTP) do(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > t.maxResponseBytes {
		return nil, backoff.Permanent(fmt.Errorf("response exceeds %d bytes", t.maxResponseBytes))
	}

	return &dispatch.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func retryableStatus(method string, code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return idempotent(method)
	}
	return false
}

// retryAfter reads a Retry-After header in either seconds or HTTP-date form.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// retryAfterBackOff prefers a server-provided delay over the wrapped policy.
type retryAfterBackOff struct {
	backoff.BackOff
	wait time.Duration
	max  time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.wait > 0 {
		if b.wait > b.max {
			return b.max
		}
		return b.wait
	}
	return next
}
