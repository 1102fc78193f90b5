// Package ghlapi is a small client for the GoHighLevel v2 calendars API.
package ghlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
)

// APIVersion is sent on every request as the Version header.
const APIVersion = "2021-04-15"

const defaultHTTPTimeout = 30 * time.Second

type Options struct {
	BaseURL    string
	LocationID string
	// TokenSource authorizes requests; nil sends them unauthenticated.
	TokenSource oauth2.TokenSource
	// Transport replaces the default TLS 1.2+ transport.
	Transport         http.RoundTripper
	RequestsPerSecond float64
	// RetryDelay is the first backoff step; zero means the default.
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Client talks to one location. Safe for sequential use by one run.
type Client struct {
	baseURL    string
	locationID string
	http       *http.Client
}

func NewClient(opts Options) *Client {
	base := opts.Transport
	if base == nil {
		base = newBaseTransport()
	}

	var rt http.RoundTripper = base
	if opts.TokenSource != nil {
		rt = &oauth2.Transport{Source: opts.TokenSource, Base: base}
	}
	rt = newLimitTransport(rt, opts.RequestsPerSecond)

	retry := NewRetryTransport(rt)
	if opts.RetryDelay > 0 {
		retry.BaseDelay = opts.RetryDelay
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		locationID: opts.LocationID,
		http:       &http.Client{Transport: retry, Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, in any, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	var raw []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		raw = b
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Version", APIVersion)
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("ghl request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		be := &BackendError{Method: method, Path: path, Status: resp.StatusCode, Message: errorMessage(respBody)}
		if resp.StatusCode == http.StatusUnauthorized {
			return &ghlauth.AuthRequiredError{LocationID: c.locationID, Cause: be}
		}

		return be
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrDecode, method, path, err)
	}

	return nil
}
