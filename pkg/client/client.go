// Package client is a Go SDK for the tracker admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a Go SDK for the tracker admin API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	dialer     *websocket.Dialer
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

// NewClient creates a new tracker client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Session represents a tracking session response
type Session struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	ChatID    int64     `json:"chat_id"`
	Handle    string    `json:"handle,omitempty"`
	SheetID   string    `json:"sheet_id,omitempty"`
	Cursor    int64     `json:"cursor,omitempty"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrackRequest starts tracking a handle. Owner defaults to "chat:<chat_id>".
type TrackRequest struct {
	Owner   string `json:"owner,omitempty"`
	ChatID  int64  `json:"chat_id"`
	Handle  string `json:"handle"`
	SheetID string `json:"sheet_id"`
}

// FeedMessage is one live feed entry
type FeedMessage struct {
	Type   string    `json:"type"`
	ChatID int64     `json:"chat_id"`
	Text   string    `json:"text,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// APIError is an error returned by the API envelope
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a session_not_found API error
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "session_not_found"
}

type envelope[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data"`
	Error   *APIError `json:"error"`
}

// Track starts tracking a handle and returns the ready session
func (c *Client) Track(ctx context.Context, req TrackRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return call[*Session](ctx, c, http.MethodPost, "/api/v1/sessions", bytes.NewReader(body))
}

// GetSession retrieves a session by ID
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	return call[*Session](ctx, c, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil)
}

// ListSessions retrieves sessions, optionally filtered by state
func (c *Client) ListSessions(ctx context.Context, state string) ([]*Session, error) {
	path := "/api/v1/sessions"
	if state != "" {
		path += "?state=" + url.QueryEscape(state)
	}

	data, err := call[struct {
		Sessions []*Session `json:"sessions"`
		Total    int        `json:"total"`
	}](ctx, c, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return data.Sessions, nil
}

// StopSession stops tracking and removes the session
func (c *Client) StopSession(ctx context.Context, id string) error {
	_, err := call[map[string]string](ctx, c, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id), nil)
	return err
}

// HealthStatus is the liveness report of the service
type HealthStatus struct {
	Status string   `json:"status"`
	Time   string   `json:"time"`
	Checks []string `json:"checks"`
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	return call[*HealthStatus](ctx, c, http.MethodGet, "/health", nil)
}

// Follow streams the live feed of a session to fn until ctx is canceled or the
// server closes the connection
func (c *Client) Follow(ctx context.Context, id string, fn func(FeedMessage)) error {
	u, err := url.Parse(c.baseURL + "/api/v1/sessions/" + url.PathEscape(id) + "/feed")
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("feed dial failed: HTTP %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("feed dial failed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		var msg FeedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("feed read failed: %w", err)
		}
		fn(msg)
	}
}

// call performs a request and unwraps the response envelope
func call[T any](ctx context.Context, c *Client, method, path string, body io.Reader) (T, error) {
	var zero T

	status, respBody, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return zero, err
	}

	var result envelope[T]
	if err := json.Unmarshal(respBody, &result); err != nil {
		if status >= 400 {
			return zero, fmt.Errorf("HTTP %d: %s", status, string(respBody))
		}
		return zero, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		if result.Error == nil {
			return zero, &APIError{Status: status, Code: "unknown", Message: http.StatusText(status)}
		}
		result.Error.Status = status
		return zero, result.Error
	}

	return result.Data, nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
