package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatGB5/codeforces-submission-bot/internal/config"
	"github.com/PatGB5/codeforces-submission-bot/internal/health"
	"github.com/PatGB5/codeforces-submission-bot/internal/models"
	"github.com/PatGB5/codeforces-submission-bot/internal/notify"
	"github.com/PatGB5/codeforces-submission-bot/internal/tracker"
)

type fakeSessionService struct {
	mu       sync.Mutex
	sessions []models.TrackingSession
	trackErr error
	pingErr  error
	stopped  []string
}

func (f *fakeSessionService) List() []models.TrackingSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TrackingSession(nil), f.sessions...)
}

func (f *fakeSessionService) GetByID(id string) (models.TrackingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return models.TrackingSession{}, tracker.ErrSessionNotFound
}

func (f *fakeSessionService) Track(ctx context.Context, req models.TrackRequest) (models.TrackingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trackErr != nil {
		return models.TrackingSession{}, f.trackErr
	}
	for _, s := range f.sessions {
		if s.Owner == req.Owner {
			return models.TrackingSession{}, tracker.ErrSessionExists
		}
	}
	s := models.TrackingSession{
		ID:      fmt.Sprintf("session-%d", len(f.sessions)+1),
		Owner:   req.Owner,
		ChatID:  req.ChatID,
		Handle:  req.Handle,
		SheetID: req.SheetID,
		Cursor:  100,
		State:   models.SessionReady,
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeSessionService) Stop(ctx context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.sessions {
		if s.Owner == owner {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			f.stopped = append(f.stopped, owner)
			return nil
		}
	}
	return tracker.ErrSessionNotFound
}

func (f *fakeSessionService) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func newTestServer(t *testing.T, apiKey string) (*Server, *fakeSessionService, *notify.Hub) {
	t.Helper()
	sessions := &fakeSessionService{}
	hub := notify.NewHub()
	checks := health.NewRegistry()
	checks.Register("tracker", sessions)
	s := NewServer(config.ServerConfig{Port: 8080, APIKey: apiKey}, sessions, hub, checks)
	return s, sessions, hub
}

func doRequest(t *testing.T, s *Server, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHealthAndReady(t *testing.T) {
	s, sessions, _ := newTestServer(t, "secret-key")

	rec, env := doRequest(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var health struct {
		Checks []string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, []string{"tracker"}, health.Checks)

	rec, _ = doRequest(t, s, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	sessions.pingErr = errors.New("manager closed")
	rec, env = doRequest(t, s, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", env.Error.Code)

	var data struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "manager closed", data.Checks["tracker"])
}

func TestAuthentication(t *testing.T) {
	s, _, _ := newTestServer(t, "secret-key")

	rec, env := doRequest(t, s, http.MethodGet, "/api/v1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", env.Error.Code)

	rec, env = doRequest(t, s, http.MethodGet, "/api/v1/sessions", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_api_key", env.Error.Code)

	rec, _ = doRequest(t, s, http.MethodGet, "/api/v1/sessions", "", map[string]string{"Authorization": "Bearer secret-key"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(t, s, http.MethodGet, "/api/v1/sessions?api_key=secret-key", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticationDisabled(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec, _ := doRequest(t, s, http.MethodGet, "/api/v1/sessions", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTrackAndList(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec, env := doRequest(t, s, http.MethodPost, "/api/v1/sessions",
		`{"chat_id": 42, "handle": "tourist", "sheet_id": "sheet-1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.TrackingSession
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "chat:42", created.Owner)
	assert.Equal(t, models.SessionReady, created.State)

	rec, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions",
		`{"chat_id": 42, "handle": "tourist", "sheet_id": "sheet-1"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_exists", env.Error.Code)

	_, env = doRequest(t, s, http.MethodGet, "/api/v1/sessions", "", nil)
	var list sessionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)

	_, env = doRequest(t, s, http.MethodGet, "/api/v1/sessions?state=awaiting_handle", "", nil)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 0, list.Total)

	rec, env = doRequest(t, s, http.MethodGet, "/api/v1/sessions/"+created.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestTrackValidation(t *testing.T) {
	s, sessions, _ := newTestServer(t, "")

	rec, env := doRequest(t, s, http.MethodPost, "/api/v1/sessions", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", env.Error.Code)

	rec, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions", `{"handle": "x", "sheet_id": "y"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	sessions.trackErr = tracker.ErrEmptyHandle
	rec, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions", `{"chat_id": 1, "sheet_id": "y"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	sessions.trackErr = fmt.Errorf("%w: %w", tracker.ErrInitializationFailed, models.ErrFeedRejected)
	rec, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions", `{"chat_id": 1, "handle": "nobody", "sheet_id": "y"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "initialization_failed", env.Error.Code)

	sessions.trackErr = errors.New("boom")
	rec, env = doRequest(t, s, http.MethodPost, "/api/v1/sessions", `{"chat_id": 1, "handle": "a", "sheet_id": "y"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", env.Error.Code)
}

func TestStopSession(t *testing.T) {
	s, sessions, _ := newTestServer(t, "")
	sessions.sessions = []models.TrackingSession{{ID: "abc", Owner: "chat:7", State: models.SessionReady}}

	rec, env := doRequest(t, s, http.MethodDelete, "/api/v1/sessions/abc", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, []string{"chat:7"}, sessions.stopped)

	rec, env = doRequest(t, s, http.MethodDelete, "/api/v1/sessions/abc", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", env.Error.Code)
}

func TestFeedWebsocket(t *testing.T) {
	s, sessions, hub := newTestServer(t, "secret-key")
	sessions.sessions = []models.TrackingSession{{ID: "abc", Owner: "chat:42", ChatID: 42, Handle: "tourist", State: models.SessionReady}}

	server := httptest.NewServer(s.Router())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/sessions/abc/feed?api_key=secret-key"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello notify.FeedMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Type)
	assert.Equal(t, "Following tourist", hello.Text)

	require.Eventually(t, func() bool { return hub.Subscribers(42) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Send(context.Background(), 42, "New submission by tourist"))

	var msg notify.FeedMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Type)
	assert.Equal(t, "New submission by tourist", msg.Text)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers(42) == 0 }, time.Second, 5*time.Millisecond)
}

func TestFeedUnknownSession(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec, env := doRequest(t, s, http.MethodGet, "/api/v1/sessions/missing/feed", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", env.Error.Code)
}
