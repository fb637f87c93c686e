// Package httpretry is the transport under every call to a Mautic instance.
// Each attempt is observed in the remote request histogram. When retries
// are enabled, idempotent requests are retried on 429 and 5xx answers and
// on transport errors. Throttled answers wait for the instance's
// Retry-After instead of the backoff.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/mautic-sync/internal/metrics"
	"github.com/ignite/mautic-sync/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with metered attempts and optional retries.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	now        func() time.Time
}

// NewRetryClient wraps client. maxRetries is the number of attempts after
// the first; zero sends every request exactly once.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  1 * time.Second,
		maxDelay:   30 * time.Second,
		now:        time.Now,
	}
}

// Do sends req, retrying when allowed. POST is never retried: a refresh
// grant the instance already honoured would be replayed with a rotated
// token. On the final attempt the response is returned as-is so the caller
// can read the Mautic error body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	if rc.maxRetries == 0 || !idempotent(req.Method) {
		return rc.send(req)
	}

	var (
		lastErr error
		wait    time.Duration
		reason  string
	)
	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			metrics.RemoteRetries.WithLabelValues(reason).Inc()
			logger.Warn("httpretry: retrying mautic request",
				"attempt", attempt, "max_retries", rc.maxRetries, "reason", reason,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "wait", wait)

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				return nil, lastErr
			}
		}

		resp, err := rc.send(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			lastErr = err
			reason = "transport"
			wait = rc.backoff(attempt + 1)
			continue
		}

		if !isRetryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}

		reason = strconv.Itoa(resp.StatusCode)
		wait = rc.backoff(attempt + 1)
		if d, ok := retryAfter(resp.Header.Get("Retry-After"), rc.now()); ok {
			wait = min(d, rc.maxDelay)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: mautic returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// send performs one attempt and observes it. A transport failure is
// recorded with status 0.
func (rc *RetryClient) send(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := rc.client.Do(req)
	status := 0
	if err == nil {
		status = resp.StatusCode
	}
	metrics.RecordRemoteRequest(req.Method, status, started)
	return resp, err
}

// backoff is random(0, min(maxDelay, baseDelay * 2^(attempt-1))) with a
// 100ms floor.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	expDelay := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(rc.maxDelay) {
		expDelay = float64(rc.maxDelay)
	}

	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

// retryAfter parses a Retry-After value given as delta-seconds or an
// HTTP date. Dates in the past mean "now".
func retryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// isRetryableStatus returns true if the HTTP status code indicates a
// transient server error that should be retried.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
