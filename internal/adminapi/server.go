// Package adminapi serves the admin surface of both handler families, the
// node ingress and the observation endpoints over HTTP.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"watsoniot-bridge/go-backend/internal/metrics"
	"watsoniot-bridge/go-backend/internal/nodes"
	"watsoniot-bridge/go-backend/internal/platform/ratelimiter"
)

const (
	TokenHeader       = "X-WIOTP-Admin-Token"
	maxBodyBytes      = 1 << 20
	shutdownTimeout   = 5 * time.Second
	defaultHeartbeat  = 20 * time.Second
	readHeaderTimeout = 5 * time.Second
)

type Options struct {
	Addr string
	// Token enables admin auth when non-empty.
	Token   string
	Host    *nodes.Host
	Metrics *metrics.Collector
	Limiter *ratelimiter.Limiter
	Streams *ratelimiter.Slots
	Logger  *slog.Logger
	// Heartbeat is the keepalive period of event streams.
	Heartbeat time.Duration
	Now       func() time.Time
}

type Server struct {
	httpServer *http.Server
	host       *nodes.Host
	token      string
	metrics    *metrics.Collector
	limiter    *ratelimiter.Limiter
	streams    *ratelimiter.Slots
	logger     *slog.Logger
	heartbeat  time.Duration
	now        func() time.Time
	mux        *http.ServeMux
}

func New(opts Options) (*Server, error) {
	if opts.Host == nil {
		return nil, errors.New("adminapi: host is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Streams == nil {
		opts.Streams = ratelimiter.NewSlots(0, 0)
	}
	s := &Server{
		host:      opts.Host,
		token:     strings.TrimSpace(opts.Token),
		metrics:   opts.Metrics,
		limiter:   opts.Limiter,
		streams:   opts.Streams,
		logger:    opts.Logger.With("component", "adminapi"),
		heartbeat: opts.Heartbeat,
		now:       opts.Now,
		mux:       http.NewServeMux(),
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if s.token == "" {
		s.logger.Warn("admin token is not set; admin auth disabled")
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("OPTIONS /", s.handlePreflight)
	s.handle("GET /healthz", false, s.handleHealth)
	s.handle("GET /metrics", true, s.metrics.Handler().ServeHTTP)

	s.handle("GET /watsoniot/{family}/orgid", true, s.handleOrgID)
	s.handle("GET /watsoniot/{family}/getbluemixtypes", true, s.handleBluemixTypes)
	s.handle("GET /watsoniot/{family}/gettypes", true, s.handleTypes)
	s.handle("POST /watsoniot/{family}/newapikey", true, s.handleNewAPIKey)

	s.handle("GET /watsoniot/nodes", true, s.handleListNodes)
	s.handle("POST /watsoniot/nodes/{id}/input", true, s.handleInput)
	s.handle("GET /watsoniot/nodes/{id}/status", true, s.handleStatus)
	s.handle("GET /watsoniot/nodes/{id}/output", true, s.handleOutput)
	s.handle("GET /watsoniot/events", true, s.handleEvents)
}

// Handler exposes the routed handler for embedding and tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()
	s.logger.Info("admin api listening", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// handle registers a route behind CORS, optional auth, rate limiting and
// request accounting.
func (s *Server) handle(pattern string, auth bool, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() { s.metrics.AdminRequest(pattern, rec.code) }()

		if !s.applyCORS(rec, r) {
			return
		}
		if auth && !s.authorize(rec, r) {
			return
		}
		if !s.limiter.Allow(ratelimiter.ClientKey(r, s.extractToken(r)), s.now()) {
			s.metrics.RateLimited()
			http.Error(rec, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		h(rec, r)
	})
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && !isAllowedOrigin(origin) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return false
	}
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+TokenHeader)
	return true
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.token == "" {
		return true
	}
	if s.extractToken(r) != s.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) extractToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get(TokenHeader))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

func isAllowedOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.code = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
