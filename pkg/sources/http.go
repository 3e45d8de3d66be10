package sources

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URI        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URI, e.StatusCode)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPFetcher is an HTTP GET client with retries (exponential backoff and
// jitter), a circuit breaker and an optional rate limit.
type HTTPFetcher struct {
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	breaker    *CircuitBreaker
	limiter    *rate.Limiter
	maxBytes   int64
	userAgent  string
	logger     *slog.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption { return func(f *HTTPFetcher) { f.client = c } }

// WithRetries sets the retry count and the base backoff.
func WithRetries(n int, base time.Duration) HTTPOption {
	return func(f *HTTPFetcher) { f.maxRetries, f.backoff = n, base }
}

// WithLimiter throttles outbound requests.
func WithLimiter(l *rate.Limiter) HTTPOption { return func(f *HTTPFetcher) { f.limiter = l } }

// WithBreaker replaces the circuit breaker.
func WithBreaker(cb *CircuitBreaker) HTTPOption { return func(f *HTTPFetcher) { f.breaker = cb } }

// WithMaxBytes caps response bodies.
func WithMaxBytes(n int64) HTTPOption { return func(f *HTTPFetcher) { f.maxBytes = n } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption { return func(f *HTTPFetcher) { f.userAgent = ua } }

// NewHTTPFetcher returns a fetcher with a 30s timeout, 3 retries and a
// breaker that opens after 5 consecutive failures.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
		breaker:    NewCircuitBreaker("http", 5, 10*time.Second),
		maxBytes:   MaxBytes,
		userAgent:  "riskmap/1.0",
		logger:     slog.Default().With("component", "sources"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher. 5xx, 429 and transport errors are retried;
// other non-2xx responses fail immediately with a *StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if !f.breaker.Allow() {
		return nil, fmt.Errorf("circuit breaker open for %s", f.breaker.name)
	}

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, f.delay(attempt-1)); err != nil {
				return nil, err
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		data, err := f.get(ctx, uri)
		if err == nil {
			f.breaker.Success()
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			// The server answered; it is healthy as far as the breaker cares.
			f.breaker.Success()
			return nil, err
		}
		if attempt == 0 || attempt == f.maxRetries {
			f.logger.WarnContext(ctx, "fetch failed", "uri", uri, "attempt", attempt+1, "error", err)
		}
		lastErr = err
	}

	f.breaker.Failure()
	return nil, lastErr
}

func (f *HTTPFetcher) get(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URI: uri, StatusCode: resp.StatusCode}
	}
	return readCapped(resp.Body, f.maxBytes)
}

// delay is base * 2^i plus up to 50ms of jitter.
func (f *HTTPFetcher) delay(i int) time.Duration {
	d := f.backoff << i
	if n, err := rand.Int(rand.Reader, big.NewInt(50)); err == nil {
		d += time.Duration(n.Int64()) * time.Millisecond
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker stops calling a failing upstream for resetTimeout after
// threshold consecutive failures, then lets one probe through.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failures     int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        breakerState
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{name: name, threshold: threshold, resetTimeout: resetTimeout}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == stateOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = stateHalfOpen
			return true
		}
		return false
	}
	return true
}

// Success closes the breaker.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = stateClosed
	cb.failures = 0
}

// Failure records a failed call. A failed half-open probe reopens at once.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.state == stateHalfOpen || cb.failures >= cb.threshold {
		cb.state = stateOpen
	}
}

// Open reports whether the breaker is currently rejecting calls.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen
}
