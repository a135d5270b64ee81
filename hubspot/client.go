// ABOUTME: HTTP client for the HubSpot CRM API authenticated with a private app token
// ABOUTME: Wraps JSON request/response handling and surfaces non-2xx replies as HTTPError
package hubspot

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

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is HubSpot's public API host.
	DefaultBaseURL = "https://api.hubapi.com"

	// DefaultTimeout bounds every request when no timeout is configured.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps how much of a response body is read (10MB).
	MaxResponseSize = 10 * 1024 * 1024

	// DefaultRequestsPerSecond and DefaultRequestBurst match HubSpot's
	// private app limit of 100 requests per 10 seconds.
	DefaultRequestsPerSecond = 10
	DefaultRequestBurst      = 10

	// UserAgent is sent with every request.
	UserAgent = "hubsync/1.0"

	// maxErrorBody is how much of an error response is kept in HTTPError.
	maxErrorBody = 512
)

// HTTPError is a non-2xx HubSpot response.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d for %s %s", e.StatusCode, e.Method, e.URL)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// NewHTTPError creates a new HTTP error, truncating the body excerpt.
func NewHTTPError(statusCode int, method, url string, body []byte) error {
	excerpt := strings.TrimSpace(string(body))
	if len(excerpt) > maxErrorBody {
		excerpt = excerpt[:maxErrorBody] + "..."
	}
	return &HTTPError{
		StatusCode: statusCode,
		Method:     method,
		URL:        url,
		Body:       excerpt,
	}
}

// Client talks to HubSpot on behalf of a single tenant.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client that authenticates every request with apiKey as a bearer token.
// An empty baseURL uses DefaultBaseURL; a zero timeout uses DefaultTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("hubspot API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid hubspot base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid hubspot base URL %q: missing scheme or host", baseURL)
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	})
	httpClient := oauth2.NewClient(context.Background(), tokenSource)
	httpClient.Timeout = timeout

	return &Client{
		baseURL: base,
		http:    httpClient,
		limiter: rate.NewLimiter(DefaultRequestsPerSecond, DefaultRequestBurst),
	}, nil
}

// SetRateLimit replaces the outbound request limit. rate.Inf disables it.
func (c *Client) SetRateLimit(limit rate.Limit, burst int) {
	c.limiter = rate.NewLimiter(limit, burst)
}

// BaseURL returns the API root requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimLeft(path, "/")}).String()
}

// do sends a JSON request and decodes a JSON response into out (when non-nil).
// Any non-2xx status is returned as *HTTPError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("request not sent: %w", err)
	}

	endpoint := c.endpoint(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(respBody)) > MaxResponseSize {
		return fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewHTTPError(resp.StatusCode, method, endpoint, respBody)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
		}
	}

	return nil
}
