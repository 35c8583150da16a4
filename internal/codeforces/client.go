package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

const (
	DefaultBaseURL = "https://codeforces.com/api"

	methodUserStatus = "user.status"
	statusOK         = "OK"
)

// Client fetches submissions from the Codeforces API
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	now        func() time.Time
	nonce      func() string
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL points the client at another API root
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithCredentials enables signed requests
func WithCredentials(apiKey, apiSecret string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
		c.apiSecret = apiSecret
	}
}

// withClock fixes time and nonce for signature tests
func withClock(now func() time.Time, nonce func() string) Option {
	return func(c *Client) {
		c.now = now
		c.nonce = nonce
	}
}

// NewClient creates a new Codeforces client
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now:   time.Now,
		nonce: randomNonce,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type apiResponse struct {
	Status  string              `json:"status"`
	Comment string              `json:"comment,omitempty"`
	Result  []models.Submission `json:"result"`
}

// Fetch returns the latest count submissions of handle, newest first
func (c *Client) Fetch(ctx context.Context, handle string, count int) ([]models.Submission, error) {
	params := url.Values{}
	params.Set("handle", handle)
	params.Set("count", strconv.Itoa(count))

	body, status, err := c.doRequest(ctx, methodUserStatus, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFeedUnavailable, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status >= 400 {
			return nil, fmt.Errorf("%w: HTTP %d", models.ErrFeedUnavailable, status)
		}
		return nil, fmt.Errorf("%w: failed to decode response: %v", models.ErrFeedUnavailable, err)
	}

	if resp.Status != statusOK {
		if resp.Status == "" {
			return nil, fmt.Errorf("%w: HTTP %d", models.ErrFeedUnavailable, status)
		}
		return nil, fmt.Errorf("%w: %s", models.ErrFeedRejected, resp.Comment)
	}

	return resp.Result, nil
}

// doRequest performs a GET against an API method. Error statuses are returned with
// their body, Codeforces reports FAILED calls as HTTP 400 with a JSON comment.
func (c *Client) doRequest(ctx context.Context, method string, params url.Values) ([]byte, int, error) {
	if c.apiKey != "" {
		params.Set("apiKey", c.apiKey)
		params.Set("time", strconv.FormatInt(c.now().Unix(), 10))
		params.Set("apiSig", Sign(method, params, c.apiSecret, c.nonce()))
	}

	endpoint := c.baseURL + "/" + method + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return respBody, resp.StatusCode, nil
}
