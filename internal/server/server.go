// Package server exposes the city directory and command relay over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"citydir/internal/config"
	"citydir/internal/directory"
	"citydir/internal/metrics"
	"citydir/internal/model"
	"citydir/internal/relay"
	"citydir/internal/upload"
)

// Sender relays one command to a city's command port.
type Sender interface {
	Send(ctx context.Context, address, command string) (string, error)
}

// Server provides the directory HTTP API.
type Server struct {
	cfg     config.ServerConfig
	dir     *directory.Directory
	relay   Sender
	uploads *upload.Store
	log     *slog.Logger
	now     func() time.Time

	// metricsMu serializes appends to the relay CSV so rows from concurrent
	// commands do not interleave.
	metricsMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithSender replaces the TCP relay, mainly for tests.
func WithSender(sender Sender) Option {
	return func(s *Server) { s.relay = sender }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.log = logger }
}

// NewServer constructs a server around an existing directory. The directory
// is shared with the caller and lives as long as the process.
func NewServer(cfg config.ServerConfig, dir *directory.Directory, opts ...Option) (*Server, error) {
	if dir == nil {
		return nil, errors.New("directory is required")
	}
	s := &Server{
		cfg: cfg,
		dir: dir,
		relay: relay.New(relay.Config{
			DialTimeout: cfg.RelayDialTimeout,
			Timeout:     cfg.RelayTimeout,
			ReadSize:    cfg.RelayReadSize,
		}),
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.UploadDir != "" {
		store, err := upload.NewStore(cfg.UploadDir, cfg.UploadMaxBytes)
		if err != nil {
			return nil, fmt.Errorf("upload store: %w", err)
		}
		s.uploads = store
	}
	return s, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/city/register", s.handleRegister)
	mux.HandleFunc("PUT /api/city/info/{id}", s.handleUpdate)
	mux.HandleFunc("GET /api/city/info/{name}", s.handleInfo)
	mux.HandleFunc("POST /api/city/command/{name}", s.handleCommand)
	mux.HandleFunc("GET /api/city/hello/{name}", s.handleHello)
	mux.HandleFunc("POST /api/city/upload/{id}", s.handleUpload)
	mux.HandleFunc("GET /api/cities/list", s.handleList)
	mux.HandleFunc("GET /api/cities/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.logRequests(mux)
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	s.log.Info("directory listening",
		"addr", ln.Addr().String(),
		"registration", s.cfg.Registration,
		"relay_timeout", s.cfg.RelayTimeout,
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) recordRelay(sample model.RelaySample) {
	if s.cfg.MetricsPath == "" {
		return
	}
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	if err := metrics.AppendCSV(s.cfg.MetricsPath, []model.RelaySample{sample}); err != nil {
		s.log.Warn("append relay metrics failed", "path", s.cfg.MetricsPath, "error", err)
	}
}
