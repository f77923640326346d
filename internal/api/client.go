// Package api is the HTTP client for the lunar chat service.
//
// The client attaches the current access token to every request and, on an
// unauthenticated response, asks its Reauth hook (the credential broker) for
// a fresh token exactly once before retrying the original request. Auth
// endpoints themselves are excluded from that retry so a failing refresh can
// never loop.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lunar-chat/lunar-cli/internal/debug"
)

const DefaultTimeout = 30 * time.Second

// Default retry configuration values.
const (
	DefaultMax5xxRetries         = 1
	DefaultServerErrorRetryDelay = 1 * time.Second
)

// RetryConfig holds configuration for transient-failure retries.
type RetryConfig struct {
	Max5xxRetries         int
	ServerErrorRetryDelay time.Duration
}

// DefaultRetryConfig returns a RetryConfig populated from environment
// variables with fallback to default values.
//
// Environment variables:
//   - LUNAR_MAX_5XX_RETRIES: max retries for 5xx errors (default: 1)
//   - LUNAR_SERVER_ERROR_DELAY: delay for server error retries (default: "1s")
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Max5xxRetries:         getEnvInt("LUNAR_MAX_5XX_RETRIES", DefaultMax5xxRetries),
		ServerErrorRetryDelay: getEnvDuration("LUNAR_SERVER_ERROR_DELAY", DefaultServerErrorRetryDelay),
	}
}

// Client is the lunar API client.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	UserAgent string

	// TokenFunc supplies the current access token. Nil or an empty return
	// sends the request unauthenticated.
	TokenFunc func() string

	// Reauth is invoked at most once per request when the server responds
	// unauthenticated on a non-auth endpoint. It returns a fresh access
	// token; the original request is then re-issued with it. Nil disables
	// the reactive retry.
	Reauth func(ctx context.Context) (string, error)

	RetryConfig RetryConfig
}

// New creates a lunar API client. The HTTP client carries a cookie jar so
// the server's refresh-token cookie survives across calls.
func New(baseURL string) *Client {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	transport := baseTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12

	jar, _ := cookiejar.New(nil)

	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		RetryConfig: DefaultRetryConfig(),
		HTTP: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
			Jar:       jar,
		},
	}
}

// apiPath returns the absolute URL for an API path.
func (c *Client) apiPath(path string) string {
	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	return c.BaseURL + "/api" + path
}

// isAuthPath reports whether path is one of the auth endpoints that must
// never trigger a reactive refresh (infinite-loop guard).
func isAuthPath(path string) bool {
	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	return strings.HasPrefix(path, "/auth/")
}

// do performs an HTTP request and decodes the response.
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	respBody, err := c.executeRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		return decodeData(respBody, result)
	}
	return nil
}

// executeRequest performs an HTTP request with the reactive-refresh and
// server-error retry logic.
func (c *Client) executeRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	reqURL := c.apiPath(path)
	isIdempotent := method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions

	var token string
	if c.TokenFunc != nil {
		token = c.TokenFunc()
	}

	var retries5xx int
	reauthed := false
	attempt := 0

	for {
		attempt++
		start := time.Now()

		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if debug.IsEnabled(ctx) {
				slog.Debug("request failed", "method", method, "url", reqURL, "attempt", attempt, "error", err)
			}
			return nil, fmt.Errorf("request failed: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if debug.IsEnabled(ctx) {
			slog.Debug("request complete", "method", method, "url", reqURL, "status", resp.StatusCode, "attempt", attempt, "duration", time.Since(start))
		}

		// Unauthenticated: refresh once and replay, unless this is an auth
		// endpoint or the 401 is the unverified-email variant.
		if resp.StatusCode == http.StatusUnauthorized {
			msg := errorMessage(respBody)
			if strings.EqualFold(strings.TrimSpace(msg), ErrUnverifiedEmail.Error()) {
				return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnverifiedEmail)
			}
			if c.Reauth != nil && !reauthed && !isAuthPath(path) {
				reauthed = true
				newToken, reauthErr := c.Reauth(ctx)
				if reauthErr != nil {
					return nil, fmt.Errorf("session refresh: %w", reauthErr)
				}
				token = newToken
				continue
			}
			return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
		}

		// Transient server errors: retry idempotent requests once.
		if resp.StatusCode >= 500 {
			if isIdempotent && retries5xx < c.RetryConfig.Max5xxRetries {
				slog.Info("server error, retrying", "status", resp.StatusCode)
				if err := sleepWithContext(ctx, c.RetryConfig.ServerErrorRetryDelay); err != nil {
					return nil, err
				}
				retries5xx++
				continue
			}
		}

		if resp.StatusCode >= 400 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
		}

		return respBody, nil
	}
}

// Get performs a GET request against an API path.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs a POST request against an API path.
func (c *Client) Post(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// SetRefreshCookie seeds the cookie jar with a previously persisted refresh
// token, restoring the session for a new process. The cookie path matches
// the one the server sets.
func (c *Client) SetRefreshCookie(value string) {
	if c.HTTP.Jar == nil || value == "" {
		return
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return
	}
	c.HTTP.Jar.SetCookies(u, []*http.Cookie{{
		Name:  "refresh_token",
		Value: value,
		Path:  "/api/auth",
	}})
}

// RefreshCookie returns the refresh token currently held in the cookie jar,
// or "" when absent. The server rotates the cookie on every refresh; callers
// read it back to persist the latest value across processes.
func (c *Client) RefreshCookie() string {
	if c.HTTP.Jar == nil {
		return ""
	}
	u, err := url.Parse(c.BaseURL + "/api/auth")
	if err != nil {
		return ""
	}
	for _, cookie := range c.HTTP.Jar.Cookies(u) {
		if cookie.Name == "refresh_token" {
			return cookie.Value
		}
	}
	return ""
}

// WebSocketURL returns the realtime endpoint with the access token carried
// as a query parameter. A credential is mandatory to attempt a connection.
func (c *Client) WebSocketURL(token string) string {
	wsBase := c.BaseURL
	switch {
	case strings.HasPrefix(wsBase, "https://"):
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	case strings.HasPrefix(wsBase, "http://"):
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}
	return wsBase + "/api/ws?token=" + url.QueryEscape(token)
}

// sleepWithContext waits for the duration or returns early on context
// cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) error {
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

// getEnvInt reads an integer from an environment variable with a default fallback.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration from an environment variable with a default fallback.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
