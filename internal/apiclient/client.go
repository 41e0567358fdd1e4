// Package apiclient is the typed client for the remote CardHub REST API.
//
// Response shapes are resolved here once: the API may wrap payloads in an
// {"success","message","data"} envelope or return them bare, and listings
// may be Spring pages or plain arrays. Callers only ever see domain types.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "cardhub/pkg/errors"
	"cardhub/pkg/logger"
)

const maxBodyBytes = 8 << 20

// Client calls the card API. It is safe for concurrent use; WithToken
// returns a copy bound to one user's bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	maxRetries int
	retryDelay time.Duration
	logger     logger.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry retries idempotent requests on network errors and 5xx answers.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// New builds a Client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of the client that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token is the bearer token the client sends, if any.
func (c *Client) Token() string {
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.retryDelay):
			}
		}

		raw, err := c.roundTrip(ctx, method, path, query, payload)
		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(unwrapEnvelope(raw), out); err != nil {
				return fmt.Errorf("%w: %s %s: %v", apperrors.ErrInvalidResponse, method, path, err)
			}
			return nil
		}

		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		c.logger.Warn("Card API request failed, retrying", map[string]interface{}{
			"method":  method,
			"path":    path,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
	return lastErr
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &transportError{err: err}
	}

	c.logger.Debug("Card API call", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, raw)
	}
	return raw, nil
}

// transportError marks failures that never produced an HTTP answer.
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("%s: %v", apperrors.ErrUpstreamUnavailable, e.err)
}

func (e *transportError) Unwrap() []error {
	return []error{apperrors.ErrUpstreamUnavailable, e.err}
}

func retryable(err error) bool {
	if _, ok := err.(*transportError); ok {
		return true
	}
	if apiErr, ok := apperrors.AsAPIError(err); ok {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return false
}

// unwrapEnvelope returns the "data" member of an API envelope, or the body
// itself when it is not enveloped.
func unwrapEnvelope(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []byte("null")
	}
	if trimmed[0] != '{' {
		return trimmed
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return trimmed
	}
	if data, ok := probe["data"]; ok {
		return data
	}
	return trimmed
}

func parseAPIError(status int, raw []byte) *apperrors.APIError {
	apiErr := &apperrors.APIError{Status: status}

	trimmed := bytes.TrimSpace(unwrapErrorBody(raw))
	if len(trimmed) == 0 {
		return apiErr
	}

	switch trimmed[0] {
	case '{':
		var body struct {
			Message string            `json:"message"`
			Error   string            `json:"error"`
			Details json.RawMessage   `json:"details"`
			Errors  map[string]string `json:"errors"`
		}
		if err := json.Unmarshal(trimmed, &body); err != nil {
			apiErr.Message = string(trimmed)
			return apiErr
		}
		apiErr.FieldErrors = body.Errors
		switch {
		case body.Message != "":
			apiErr.Message = body.Message
		case body.Error != "":
			apiErr.Message = body.Error
		default:
			apiErr.Message = detailsText(body.Details)
		}
	case '[':
		var lines []string
		if err := json.Unmarshal(trimmed, &lines); err == nil {
			apiErr.Message = strings.Join(lines, ", ")
		}
	case '"':
		_ = json.Unmarshal(trimmed, &apiErr.Message)
	default:
		apiErr.Message = string(trimmed)
	}
	return apiErr
}

// unwrapErrorBody keeps the outer object when it already carries a message,
// otherwise looks inside "data".
func unwrapErrorBody(raw []byte) []byte {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return raw
	}
	if _, ok := probe["message"]; ok {
		return raw
	}
	if data, ok := probe["data"]; ok && len(bytes.TrimSpace(data)) > 0 && !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return data
	}
	return raw
}

func detailsText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return ""
}

// Ping checks that the card API answers at all. Any HTTP answer below 500,
// including 401 for the unauthenticated probe, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, http.MethodGet, "/api/auth/validate", nil, nil)
	if err == nil {
		return nil
	}
	if apiErr, ok := apperrors.AsAPIError(err); ok && apiErr.Status < http.StatusInternalServerError {
		return nil
	}
	return err
}
