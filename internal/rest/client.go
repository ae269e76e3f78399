package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// TokenProvider supplies the Bearer token for a request. Tokens are
// resolved per call so a rotated credential takes effect without
// rebuilding the client.
type TokenProvider func(ctx context.Context) (string, error)

// StatusError is a non-2xx response that was not recovered by retries.
type StatusError struct {
	Code   int
	Method string
	Path   string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"unexpected status %d on %s %s: %s",
		e.Code, e.Method, e.Path, e.Body,
	)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the root URL of the backend.
	BaseURL string

	// Token supplies the Bearer token. Required.
	Token TokenProvider

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client

	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration

	// RequestsPerSec caps the outbound request rate. Zero disables
	// the limiter.
	RequestsPerSec float64

	// MaxElapsed bounds the total time spent retrying one call.
	// Defaults to 20s.
	MaxElapsed time.Duration

	// RetryInterval is the initial backoff delay between attempts.
	// Defaults to the backoff package default.
	RetryInterval time.Duration
}

// Client is a thin JSON client for the HR backend. It handles Bearer
// token authentication, outbound rate limiting, and automatic retry
// with exponential backoff on HTTP 429 and 5xx responses.
type Client struct {
	baseURL    string
	token      TokenProvider
	httpClient *http.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
	retryEvery time.Duration
}

// NewClient creates a new backend client. The baseURL should be the root
// URL of the HR REST backend (e.g. https://hr.corp.example.com/api).
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 5)
	}

	maxElapsed := opts.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = 20 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: httpClient,
		limiter:    limiter,
		maxElapsed: maxElapsed,
		retryEvery: opts.RetryInterval,
	}
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Patch performs an HTTP PATCH request with an optional JSON body and
// unmarshals the JSON response when result is non-nil.
func (c *Client) Patch(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPatch, path, body, result)
}

// Delete performs an HTTP DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting, retries, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	url := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	operation := func() error {
		// Rebuild the body reader on every attempt since it is consumed.
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}

		token, err := c.token(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("resolving token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Transport errors are retryable.
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		statusErr := &StatusError{
			Code:   resp.StatusCode,
			Method: method,
			Path:   path,
			Body:   strings.TrimSpace(string(respBody)),
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= 500:
			return statusErr
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(statusErr)
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return backoff.Permanent(fmt.Errorf(
				"unmarshaling response from %s %s: %w", method, path, err,
			))
		}

		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	if c.retryEvery > 0 {
		b.InitialInterval = c.retryEvery
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return err
	}
	return nil
}
