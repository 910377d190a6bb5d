// Package github provides GitHub API client functionality.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/cache"
)

// Client defaults.
const (
	DefaultBaseURL     = "https://api.github.com"
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyBytes  = 4096
)

// Retry constants.
const (
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 2 * time.Minute
)

// Client handles all GitHub API interactions.
type Client struct {
	tokens        TokenSource
	httpClient    HTTPDoer
	cache         *cache.Cache
	baseURL       string
	retryAttempts uint
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	Tokens      TokenSource  // Credential source, consulted on every request
	Cache       *cache.Cache // Cache for PR details (nil = in-memory)
	HTTPClient  HTTPDoer     // Optional transport override (nil = net/http with HTTPTimeout)
	BaseURL     string       // API root (empty = api.github.com)
	HTTPTimeout time.Duration
	// RetryAttempts is the total number of attempts for rate-limited or
	// server-error responses. Zero or one means no retries.
	RetryAttempts int
}

// New creates a new GitHub API client.
func New(cfg Config) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("token source is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := cfg.Cache
	if c == nil {
		c = cache.NewMemory()
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	attempts := uint(1)
	if cfg.RetryAttempts > 1 {
		attempts = uint(cfg.RetryAttempts)
	}

	return &Client{
		tokens:        cfg.Tokens,
		httpClient:    httpClient,
		cache:         c,
		baseURL:       baseURL,
		retryAttempts: attempts,
	}, nil
}

// Token resolves the current credential. It fails with ErrCredentialMissing
// or ErrCredentialInvalid when no usable token is configured.
func (c *Client) Token(ctx context.Context) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrCredentialMissing
	}
	return strings.TrimSpace(token), nil
}

// drainAndCloseBody drains and closes an HTTP response body to prevent resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

// newAPIError reads a bounded amount of the body for diagnostics.
func newAPIError(op string, resp *http.Response) *APIError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		body = []byte(fmt.Sprintf("(could not read body: %v)", err))
	}
	return &APIError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// url joins the API root with a path. String arguments are escaped as
// single path segments so a name can never add segments or a query.
func (c *Client) url(format string, args ...any) string {
	for i, a := range args {
		if s, ok := a.(string); ok {
			args[i] = escapeSegment(s)
		}
	}
	return c.baseURL + fmt.Sprintf(format, args...)
}

// escapeSegment path-escapes s. PathEscape leaves dot segments alone, and
// those would be resolved as "current" or "parent" directory.
func escapeSegment(s string) string {
	if s == "." || s == ".." {
		return strings.ReplaceAll(s, ".", "%2E")
	}
	return url.PathEscape(s)
}

// doRequest makes an authenticated HTTP request to the GitHub API.
// Rate-limited and server-error responses are retried when the client is
// configured for more than one attempt; the final one is returned as *APIError.
// The caller owns the body of a returned response.
func (c *Client) doRequest(ctx context.Context, op, method, apiURL string, body any) (*http.Response, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	slog.Info("HTTP request", "component", "http", "method", method, "url", apiURL)

	var resp *http.Response
	err = retryWithBackoff(ctx, c.retryAttempts, method+" "+apiURL, func() error {
		var bodyReader io.Reader = http.NoBody
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		localResp, err := c.httpClient.Do(req) //nolint:bodyclose // body is closed below or passed to caller
		if err != nil {
			return &NetworkError{Op: op, Err: err}
		}

		if localResp.StatusCode == http.StatusTooManyRequests || localResp.StatusCode >= http.StatusInternalServerError {
			apiErr := newAPIError(op, localResp)
			drainAndCloseBody(localResp.Body)
			slog.Warn("Transient API failure", "component", "http", "method", method, "url", apiURL, "status", apiErr.StatusCode)
			return apiErr
		}

		resp = localResp
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("HTTP response", "component", "http", "method", method, "url", apiURL, "status", resp.StatusCode)
	return resp, nil
}

// retryWithBackoff executes fn with exponential backoff using the codeGROOVE retry library.
func retryWithBackoff(ctx context.Context, attempts uint, operation string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(initialRetryDelay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt", "component", "retry", "operation", operation, "attempt", n+1, "max_attempts", attempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
}

// isTransient reports whether err is worth another attempt.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr *NetworkError
	return errors.As(err, &netErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// getJSON performs a GET and decodes a 2xx body into v.
func (c *Client) getJSON(ctx context.Context, op, apiURL string, v any) error {
	resp, err := c.doRequest(ctx, op, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return newAPIError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
