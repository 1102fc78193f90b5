package ghlapi

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
)

func newBaseTransport() *http.Transport {
	defaultTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok || defaultTransport == nil {
		return &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		}
	}

	// Clone() deep-copies TLSClientConfig, so no additional clone needed.
	transport := defaultTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		return transport
	}

	if transport.TLSClientConfig.MinVersion < tls.VersionTLS12 {
		transport.TLSClientConfig.MinVersion = tls.VersionTLS12
	}

	return transport
}

// RetryTransport retries rate-limited requests for every method, and 5xx or
// transport failures only for idempotent methods. A create is never replayed
// on a 5xx; the caller verifies instead.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration
}

func NewRetryTransport(base http.RoundTripper) *RetryTransport {
	return &RetryTransport{Base: base, MaxRetries: defaultMaxRetries, BaseDelay: defaultRetryDelay}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.Base.RoundTrip(req)
		if attempt >= t.MaxRetries || !shouldRetry(req.Method, resp, err) {
			return resp, err
		}

		if req.Body != nil && req.GetBody == nil {
			return resp, err
		}

		delay := t.backoff(attempt, resp)
		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
			_ = resp.Body.Close()
		}

		slog.Debug("retrying request", "method", req.Method, "url", req.URL.Redacted(), "attempt", attempt+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, fmt.Errorf("rewind request body: %w", bodyErr)
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
	}
}

func shouldRetry(method string, resp *http.Response, err error) bool {
	idempotent := method == http.MethodGet || method == http.MethodPut || method == http.MethodHead
	if err != nil {
		return idempotent && !isAuthError(err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}

	return idempotent && resp.StatusCode >= http.StatusInternalServerError
}

func (t *RetryTransport) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
			return min(time.Duration(secs)*time.Second, maxRetryDelay)
		}
	}

	base := t.BaseDelay << attempt
	if base <= 0 {
		return 0
	}

	jitter := time.Duration(rand.Int64N(int64(base)/2 + 1))

	return min(base+jitter, maxRetryDelay)
}

// limitTransport spaces outgoing requests, including retries.
type limitTransport struct {
	limiter *rate.Limiter
	base    http.RoundTripper
}

func newLimitTransport(base http.RoundTripper, rps float64) http.RoundTripper {
	if rps <= 0 {
		return base
	}

	burst := max(int(rps), 1)

	return &limitTransport{limiter: rate.NewLimiter(rate.Limit(rps), burst), base: base}
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	return t.base.RoundTrip(req)
}
