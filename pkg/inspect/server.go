package inspect

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/waypoint/pkg/navigation"
)

// Config configures the inspector.
type Config struct {
	// Logger receives request and stream logs. Default: slog.Default().
	Logger *slog.Logger

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// ReadOnly rejects the mutating routes with 405.
	ReadOnly bool

	// MaxBodyBytes bounds request bodies. Default: 1 MiB.
	MaxBodyBytes int64

	// WriteTimeout bounds each WebSocket write. Default: 10s.
	WriteTimeout time.Duration

	// StreamBuffer is the number of snapshots queued per WebSocket client
	// before older ones are dropped. Default: 16.
	StreamBuffer int

	// CheckOrigin validates WebSocket origins. Default: same host only.
	CheckOrigin func(r *http.Request) bool

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration
}

// Option configures the inspector.
type Option func(*Config)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithGatherer enables GET /metrics over g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *Config) { c.Gatherer = g }
}

// WithReadOnly disables navigate, preload, invalidate and history.
func WithReadOnly(readOnly bool) Option {
	return func(c *Config) { c.ReadOnly = readOnly }
}

// WithCheckOrigin sets the WebSocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(c *Config) { c.CheckOrigin = fn }
}

// WithShutdownTimeout sets the graceful shutdown bound.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

func defaultConfig() Config {
	return Config{
		Logger:          slog.Default(),
		MaxBodyBytes:    1 << 20,
		WriteTimeout:    10 * time.Second,
		StreamBuffer:    16,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server exposes a navigation router over HTTP.
type Server struct {
	router   *navigation.Router
	config   Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      chi.Router
	streams  *streamHub
}

// New creates an inspector for r.
func New(r *navigation.Router, opts ...Option) *Server {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	defaults := defaultConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.StreamBuffer <= 0 {
		config.StreamBuffer = defaults.StreamBuffer
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	logger := config.Logger.With("component", "inspect")

	s := &Server{
		router: r,
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
		streams: newStreamHub(),
	}
	s.mux = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(s.logRequests)

	mux.Get("/routes", s.handleRoutes)
	mux.Get("/match", s.handleMatch)
	mux.Get("/state", s.handleState)
	mux.Get("/cache", s.handleCache)
	mux.Get("/ws", s.handleStream)

	mux.Group(func(mux chi.Router) {
		mux.Use(s.denyReadOnly)
		mux.Post("/navigate", s.handleNavigate)
		mux.Post("/preload", s.handlePreload)
		mux.Post("/invalidate", s.handleInvalidate)
		mux.Post("/history/{op}", s.handleHistory)
	})

	if s.config.Gatherer != nil {
		mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	return s.streams.len()
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully and closes the WebSocket streams.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspector listening", "address", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.streams.closeAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.streams.closeAll()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("inspector shutdown complete")
	return nil
}

// =============================================================================
// Middleware
// =============================================================================

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) denyReadOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.ReadOnly {
			s.writeJSON(w, http.StatusMethodNotAllowed, ErrorView{
				Code:    "read_only",
				Message: "inspector is read-only",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
