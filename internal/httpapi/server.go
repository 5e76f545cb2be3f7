// Package httpapi is the monitor daemon's read-only HTTP surface: health,
// channel status, Prometheus metrics, and the recent notification archive.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/latticenet/livewire/internal/live"
	"github.com/latticenet/livewire/internal/store"
)

// Config holds listener settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig binds to localhost only.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8787,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps are the data sources the endpoints read from. Snapshot is required;
// Metrics and Archive are optional and their routes vanish when nil.
type Deps struct {
	Snapshot func() live.Snapshot
	Metrics  http.Handler
	Archive  store.Archiver
}

// Server is the monitor HTTP server.
type Server struct {
	router *mux.Router
	srv    *http.Server
	cfg    Config
	deps   Deps
	log    zerolog.Logger
}

// NewServer builds the router and verifies the port is free.
func NewServer(cfg Config, deps Deps, log zerolog.Logger) (*Server, error) {
	if deps.Snapshot == nil {
		return nil, fmt.Errorf("httpapi: Snapshot dependency is required")
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("httpapi: listen %s: %w", addr, err)
	}
	ln.Close()

	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg,
		deps:   deps,
		log:    log,
	}
	s.routes()
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(s.requestID)
	s.router.Use(s.accessLog)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}
	if s.deps.Archive != nil {
		s.router.HandleFunc("/notifications/recent", s.handleRecent).Methods(http.MethodGet)
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start serves until Shutdown. Blocks; run it on its own goroutine.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("monitor http server listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("monitor http server shutting down")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Snapshot()
	body := map[string]any{
		"healthy": snap.Status != live.StatusError,
		"channel": snap.Status.String(),
	}
	code := http.StatusOK
	if snap.Status == live.StatusError {
		// The channel gave up; report degraded so orchestration can restart
		// or page. Disconnected and connecting are normal transients.
		code = http.StatusServiceUnavailable
		if snap.LastError != "" {
			body["error"] = snap.LastError
		}
	}
	writeJSON(w, code, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Snapshot())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}

	rows, err := s.deps.Archive.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("recent notifications query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(rows),
		"notifications": rows,
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.code).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

type ctxKey int

const requestIDKey ctxKey = iota

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
