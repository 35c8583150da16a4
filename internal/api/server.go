package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/PatGB5/codeforces-submission-bot/internal/config"
	"github.com/PatGB5/codeforces-submission-bot/internal/health"
	"github.com/PatGB5/codeforces-submission-bot/internal/models"
	"github.com/PatGB5/codeforces-submission-bot/internal/notify"
)

// SessionService is the session manager as seen by the API
type SessionService interface {
	List() []models.TrackingSession
	GetByID(id string) (models.TrackingSession, error)
	Track(ctx context.Context, req models.TrackRequest) (models.TrackingSession, error)
	Stop(ctx context.Context, owner string) error
}

// Server represents the HTTP admin API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	sessions       SessionService
	hub            *notify.Hub
	checks         *health.Registry
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server. A nil hub disables the live feed and
// a nil checks registry makes /ready always succeed.
func NewServer(cfg config.ServerConfig, sessions SessionService, hub *notify.Hub, checks *health.Registry) *Server {
	if checks == nil {
		checks = health.NewRegistry()
	}
	s := &Server{
		config:         cfg,
		sessions:       sessions,
		hub:            hub,
		checks:         checks,
		authMiddleware: NewAuthMiddleware(cfg.APIKey),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check (public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		r.Route("/sessions", func(r chi.Router) {
			// Initialization fetches from Codeforces, keep a bound on it
			r.With(middleware.Timeout(60*time.Second)).Post("/", s.handleTrack)
			r.Get("/", s.handleListSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleStopSession)
				r.Get("/feed", s.handleFeedWS)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
