package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"assetmirror/internal/failure"
	"assetmirror/internal/logging"
	"assetmirror/internal/resolver"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 10 * time.Second
	defaultConcurrency    = 4
)

// TempPattern names in-flight downloads inside a target directory.
const TempPattern = ".fetch-*"

// Fetcher downloads url into a temporary file inside dir and returns its path.
// The caller owns the file and must rename or remove it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, backend resolver.Backend, dir string) (string, error)
}

// Options configures an HTTPFetcher.
type Options struct {
	Timeout               time.Duration
	Retries               int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
	RequestsPerSecond     float64
	Burst                 int
	PerBackendConcurrency int
	UserAgent             string
	HTTPClient            *http.Client
	Logger                *slog.Logger
}

// HTTPFetcher is the production Fetcher.
type HTTPFetcher struct {
	client      *http.Client
	timeout     time.Duration
	retries     int
	baseDelay   time.Duration
	maxDelay    time.Duration
	rps         float64
	burst       int
	concurrency int
	userAgent   string
	logger      *slog.Logger

	mu    sync.Mutex
	gates map[resolver.Backend]*gate

	requests atomic.Int64
	sleep    func(context.Context, time.Duration) error
}

type gate struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

// New constructs an HTTPFetcher.
func New(opts Options) *HTTPFetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	f := &HTTPFetcher{
		client:      client,
		timeout:     opts.Timeout,
		retries:     opts.Retries,
		baseDelay:   opts.RetryBaseDelay,
		maxDelay:    opts.RetryMaxDelay,
		rps:         opts.RequestsPerSecond,
		burst:       opts.Burst,
		concurrency: opts.PerBackendConcurrency,
		userAgent:   strings.TrimSpace(opts.UserAgent),
		logger:      logging.NewComponentLogger(opts.Logger, "fetch"),
		gates:       make(map[resolver.Backend]*gate),
		sleep:       sleepContext,
	}
	if f.timeout <= 0 {
		f.timeout = defaultTimeout
	}
	if f.retries < 0 {
		f.retries = 0
	}
	if f.baseDelay <= 0 {
		f.baseDelay = defaultRetryBaseDelay
	}
	if f.maxDelay <= 0 {
		f.maxDelay = defaultRetryMaxDelay
	}
	if f.concurrency <= 0 {
		f.concurrency = defaultConcurrency
	}
	if f.rps > 0 && f.burst <= 0 {
		f.burst = 1
	}
	return f
}

// Requests reports how many HTTP requests were issued, retries included.
func (f *HTTPFetcher) Requests() int64 {
	return f.requests.Load()
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, backend resolver.Backend, dir string) (string, error) {
	g := f.gateFor(backend)
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-g.slots }()

	attempts := f.retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		path, err := f.fetchOnce(ctx, rawURL, dir)
		if err == nil {
			return path, nil
		}
		lastErr = err

		delay, retry := f.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		f.logger.Debug("fetch attempt failed; retrying",
			logging.String(logging.FieldURL, rawURL),
			logging.String(logging.FieldBackend, backend.String()),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return "", fmt.Errorf("%w: fetch %s (%s backend) failed after %d attempt(s): %w",
		failure.ErrNetwork, rawURL, backend, attempts, lastErr)
}

func (f *HTTPFetcher) gateFor(backend resolver.Backend) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.gates[backend]; ok {
		return g
	}
	g := &gate{slots: make(chan struct{}, f.concurrency)}
	if f.rps > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(f.rps), f.burst)
	}
	f.gates[backend] = g
	return g
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL, dir string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &permanentError{err: fmt.Errorf("build request: %w", err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.requests.Add(1)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", f.classifyTransportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	tmp, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return "", &permanentError{err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return "", f.classifyTransportError(ctx, attemptCtx, fmt.Errorf("read body: %w", copyErr))
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", &permanentError{err: fmt.Errorf("close temp file: %w", closeErr)}
	}
	return tmpPath, nil
}

// classifyTransportError turns a per-attempt deadline into a retryable
// timeout while leaving cancellation of the parent context fatal.
func (f *HTTPFetcher) classifyTransportError(parent, attempt context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return &timeoutError{after: f.timeout, err: err}
	}
	return err
}

func (f *HTTPFetcher) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) {
		return 0, false
	}

	var permErr *permanentError
	if errors.As(err, &permErr) {
		return 0, false
	}

	var toErr *timeoutError
	if errors.As(err, &toErr) {
		return f.backoffDelay(attempt), true
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return f.capDelay(statusErr.RetryAfter), true
			}
			return f.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return f.backoffDelay(attempt), true
	}
	if isTransientConnError(err) {
		return f.backoffDelay(attempt), true
	}
	return 0, false
}

// isTransientConnError reports resets, refusals and truncated bodies from
// flaky gateways. Malformed URLs and unsupported schemes are not transient.
func isTransientConnError(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// backoffDelay doubles the base delay per attempt: 1 -> base, 2 -> base*2, ...
func (f *HTTPFetcher) backoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := f.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > f.maxDelay/2 {
			return f.maxDelay
		}
		delay *= 2
	}
	return f.capDelay(delay)
}

func (f *HTTPFetcher) capDelay(delay time.Duration) time.Duration {
	if delay > f.maxDelay {
		return f.maxDelay
	}
	return delay
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
