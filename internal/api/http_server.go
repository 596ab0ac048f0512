package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pawcare/internal/client"
	"pawcare/internal/config"
	"pawcare/internal/domain"
	"pawcare/internal/lifecycle"
	"pawcare/internal/metrics"
	"pawcare/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HeaderBackendToken carries the end user's token for the booking backend.
const HeaderBackendToken = "X-Backend-Token"

// HTTPServer exposes booking screen sessions over HTTP.
type HTTPServer struct {
	cfg      config.APIConfig
	sessions *session.Manager
	registry *lifecycle.Registry
	gateway  domain.BookingGateway
	logger   *zerolog.Logger
	server   *http.Server
	auth     *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, sessions *session.Manager, registry *lifecycle.Registry, gateway domain.BookingGateway, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{
		cfg:      cfg,
		sessions: sessions,
		registry: registry,
		gateway:  gateway,
		logger:   logger,
		auth:     NewHTTPAuth(cfg),
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Count()})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Wrap)

		r.Get("/status-badge", s.handleStatusBadge)
		r.Get("/domains/{domain}/bookings", s.handleListBookings)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleOpen)
			r.Get("/{id}", s.handleGet)
			r.Delete("/{id}", s.handleClose)
			r.Post("/{id}/resume", s.handleResume)
			r.Post("/{id}/refresh", s.handleRefresh)
			r.Post("/{id}/dismiss", s.handleDismiss)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Post("/{id}/reschedule", s.handleReschedule)
			r.Post("/{id}/review", s.handleReview)
			r.Post("/{id}/schedule", s.handleSchedule)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// requestID reuses the caller's X-Request-ID or mints one, and forwards it
// to the booking backend.
func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(client.HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(client.HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(client.WithRequestID(r.Context(), id)))
	})
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	base := s.logger.With().Str("component", "http").Logger()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.IncHTTP(route, recorder.status)

		base.Info().
			Str("request_id", w.Header().Get(client.HeaderRequestID)).
			Str("method", r.Method).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
