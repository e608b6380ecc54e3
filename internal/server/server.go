// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackops/stackops/internal/config"
	"github.com/stackops/stackops/internal/engine"
)

// JobService is the engine surface the HTTP API drives.
type JobService interface {
	SubmitBackup(dryRun bool) bool
	SubmitRestore(dryRun bool) bool
	SubmitFstabSetup() bool
	ClearLog() error
	Status() (engine.Status, error)
}

// LogStream delivers job log lines as they are written.
type LogStream interface {
	Subscribe() (<-chan string, func())
}

// Server is the HTTP front end of the engine.
type Server struct {
	cfg      *config.Config
	jobs     JobService
	stream   LogStream
	metrics  http.Handler
	sessions *sessionStore
	logger   zerolog.Logger
	http     *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithLogStream enables GET /api/log/stream.
func WithLogStream(ls LogStream) Option {
	return func(s *Server) { s.stream = ls }
}

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l.With().Str("component", "http").Logger() }
}

// New creates a new Server.
func New(cfg *config.Config, jobs JobService, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		jobs:     jobs,
		sessions: newSessionStore(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()

	// Job triggers. Paths match the dashboard the service replaced.
	mux.HandleFunc("POST /run", s.withAuth(s.handleBackup))
	mux.HandleFunc("POST /restore", s.withAuth(s.handleRestore))
	mux.HandleFunc("POST /setup-fstab", s.withAuth(s.handleFstab))
	mux.HandleFunc("POST /clear-log", s.withAuth(s.handleClearLog))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.withAuth(s.handleStatus))
	if s.stream != nil {
		mux.HandleFunc("GET /api/log/stream", s.withAuth(s.handleLogStream))
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// Auth
	if cfg.Auth.Mode == config.AuthModePassword {
		mux.HandleFunc("POST /api/auth/login", s.handleLogin)
		mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
		mux.HandleFunc("GET /api/auth/check", s.handleAuthCheck)
	}

	var handler http.Handler = mux
	handler = maxBodyMiddleware(handler, 64<<10)
	handler = corsMiddleware(handler)
	handler = s.logMiddleware(handler)

	// No WriteTimeout: log streams stay open for the length of a job.
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Service.BindAddress, cfg.Service.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

func maxBodyMiddleware(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.Method != http.MethodGet &&
			!strings.Contains(r.Header.Get("Upgrade"), "websocket") {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// logMiddleware leaves the ResponseWriter unwrapped so websocket upgrades
// can still hijack it.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start).Round(time.Millisecond)).
			Msg("request")
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			host := r.Host
			if strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Upgrade, Connection")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOriginPatterns returns WebSocket origin patterns matching the server's host.
func allowedOriginPatterns(r *http.Request) []string {
	patterns := []string{"localhost:*", "127.0.0.1:*"}
	if host := r.Host; host != "" {
		h := host
		if idx := strings.LastIndex(h, ":"); idx > 0 {
			h = h[:idx]
		}
		patterns = append(patterns, h+":*", host)
	}
	return patterns
}
