package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ath-alerts/internal/config"
	"ath-alerts/internal/pipeline"
)

// CycleRunner executes one pipeline invocation.
type CycleRunner interface {
	RunCycle(ctx context.Context) (pipeline.Summary, error)
}

// Server exposes the scheduler-facing trigger endpoint and a health check.
type Server struct {
	cfg    config.ServerConfig
	runner CycleRunner
	logger zerolog.Logger
	http   *http.Server
}

// New constructs the trigger server.
func New(cfg config.ServerConfig, runner CycleRunner, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		logger: logger.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.With(s.requireSecret).Post("/internal/ath-scan", s.handleScan)

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("trigger server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// requireSecret authenticates the trigger with a shared bearer secret.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.TriggerSecret == "" {
			writeError(w, http.StatusServiceUnavailable, "trigger secret not configured")
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token != s.cfg.TriggerSecret {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type scanResponse struct {
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	ATHCount   int    `json:"athCount"`
	Skipped    bool   `json:"skipped,omitempty"`
	Timestamp  string `json:"timestamp"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	summary, err := s.runner.RunCycle(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("triggered cycle failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		Success:    true,
		DurationMS: summary.Duration.Milliseconds(),
		ATHCount:   summary.Notified,
		Skipped:    summary.Skipped,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
