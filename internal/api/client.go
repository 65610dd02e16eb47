// Package api is a small JSON client for the food-ordering backend.
// Non-2xx responses are decoded into *domain.Error so callers can branch on
// the error code and show the server's message verbatim.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/tiffin/internal/domain"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// TokenSource supplies the bearer token for authenticated calls.
// An empty token sends no Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenSource
	UserAgent  string       // Optional
	HTTPClient *http.Client // Optional: built from Timeout when nil
	Logger     *slog.Logger // Optional: defaults to slog.Default()
}

// Client issues JSON requests against the backend.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	tokens    TokenSource
	logger    *slog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = StaticToken("")
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      httpClient,
		tokens:    tokens,
		logger:    logger,
	}
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Get issues a GET request and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends a request. body is JSON-encoded when non-nil; out receives the
// decoded response when non-nil. Transport failures yield EUNAVAILABLE,
// HTTP failures yield a code derived from the status.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	op := "api." + strings.ToLower(method) + " " + path

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return domain.Internal(err, op, "failed to encode request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domain.Internal(err, op, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return domain.WrapError(err, domain.EUNAUTHORIZED, op, "Please sign in again")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			"method", method,
			"path", path,
			"error", err,
		)
		return domain.Unavailable(err, op, "")
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, op)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.Internal(err, op, "failed to decode response")
	}
	return nil
}

func decodeError(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	_ = json.Unmarshal(raw, &body)

	message := body.Message
	if message == "" {
		message = body.Error
	}

	return &domain.Error{
		Code:    CodeForStatus(resp.StatusCode),
		Op:      op,
		Message: message,
		Err:     fmt.Errorf("http status %d", resp.StatusCode),
	}
}

// CodeForStatus maps an HTTP status to a domain error code.
func CodeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return domain.EINVALID
	case status == http.StatusUnauthorized:
		return domain.EUNAUTHORIZED
	case status == http.StatusPaymentRequired:
		return domain.EPAYMENT
	case status == http.StatusForbidden:
		return domain.EFORBIDDEN
	case status == http.StatusNotFound:
		return domain.ENOTFOUND
	case status == http.StatusConflict:
		return domain.ECONFLICT
	case status == http.StatusTooManyRequests:
		return domain.ERATELIMIT
	case status >= 500:
		return domain.EUNAVAILABLE
	case status >= 400:
		// Any other rejection is a client-side problem the server explained.
		return domain.EINVALID
	default:
		return domain.EINTERNAL
	}
}
