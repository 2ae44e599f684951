package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jpalmerr/conflux"
	"github.com/jpalmerr/conflux/internal/metrics"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	maxBodySize = 1 << 20 // 1MB
)

// DefaultAllowedOrigins is used when no CORS origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:3000"}

// Engine is the subset of *conflux.Engine the API needs.
type Engine interface {
	Register(ctx context.Context, hc conflux.HealthCheck) (conflux.HealthCheck, error)
	Unregister(ctx context.Context, id string) error
	ListSpecs() []conflux.HealthCheck
	RunCheck(ctx context.Context, id string) (conflux.ProbeResult, error)

	RecordExternalEvent(ctx context.Context, ev conflux.Event) (conflux.Notification, error)
	ListNotifications(ctx context.Context) ([]conflux.Notification, error)
	MarkRead(ctx context.Context, id string) error
	DeleteNotification(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	Subscribe() <-chan conflux.Change
	Unsubscribe(ch <-chan conflux.Change)
}

// Config holds the server's optional settings.
type Config struct {
	// Port is the TCP port to listen on. Zero picks a free port.
	Port int

	// AllowedOrigins for CORS. Empty means [DefaultAllowedOrigins].
	AllowedOrigins []string

	// Metrics, when set, instruments every route and is served at /metrics.
	Metrics *metrics.Collector
}

// Server handles HTTP requests for the conflux API.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	engine     Engine
	cfg        Config
	httpServer *http.Server
	addr       net.Addr
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server]. It is not started until
// [Server.Start] is called.
func NewServer(engine Engine, cfg Config, logger *slog.Logger) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
}

// Handler builds the router. Exposed for tests and for embedding the API
// in another server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.cfg.Metrics != nil {
		r.Use(s.cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/healthcheck", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Get("/", s.handleListChecks)
			r.Delete("/{id}", s.handleUnregister)
			r.Post("/{id}/run", s.handleRunCheck)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Delete("/", s.handleClearNotifications)
			r.Patch("/{id}/read", s.handleMarkRead)
			r.Delete("/{id}", s.handleDeleteNotification)
		})

		r.Post("/events", s.handleRecordEvent)
		r.Get("/sse", s.handleSSE)
	})

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout. Use [Server.Wait] to block until shutdown has finished.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}
	s.addr = ln.Addr()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", s.addr.String())
	return nil
}

// Wait blocks until ctx is done and then shuts the server down gracefully.
func (s *Server) Wait(ctx context.Context) error {
	<-ctx.Done()
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Addr returns the bound address after Start, or nil.
func (s *Server) Addr() net.Addr {
	return s.addr
}
