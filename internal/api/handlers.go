package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
	"github.com/PatGB5/codeforces-submission-bot/internal/tracker"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondSessionError maps tracker errors to HTTP responses
func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, tracker.ErrSessionExists):
		respondError(w, http.StatusConflict, "session_exists", "a session already exists for this owner")
	case errors.Is(err, tracker.ErrEmptyHandle), errors.Is(err, tracker.ErrEmptySheetID):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, tracker.ErrInitializationFailed):
		respondError(w, http.StatusUnprocessableEntity, "initialization_failed", err.Error())
	default:
		slog.Error("session operation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": s.checks.List(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true
	for name, err := range s.checks.CheckAll(ctx) {
		if err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(apiResponse{
			Success: false,
			Data:    map[string]interface{}{"status": "not_ready", "checks": checks},
			Error:   &apiError{Code: "not_ready", Message: "service not ready"},
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

// Session handlers

type sessionsResponse struct {
	Sessions []models.TrackingSession `json:"sessions"`
	Total    int                      `json:"total"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := sessions[:0]
		for _, sess := range sessions {
			if string(sess.State) == state {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}

	respondJSON(w, http.StatusOK, sessionsResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.sessions.GetByID(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req models.TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ChatID == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "chat_id is required")
		return
	}
	if strings.TrimSpace(req.Owner) == "" {
		req.Owner = fmt.Sprintf("chat:%d", req.ChatID)
	}

	sess, err := s.sessions.Track(r.Context(), req)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.sessions.GetByID(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	if err := s.sessions.Stop(r.Context(), sess.Owner); err != nil {
		respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"id":     sess.ID,
		"status": "stopped",
	})
}
