// Package http exposes the conversation engine over a JSON HTTP API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/aretw0/leadflow/internal/logging"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/flowstore"
	"github.com/aretw0/leadflow/pkg/orchestrator"
)

// DefaultMaxBodyBytes bounds a request body.
const DefaultMaxBodyBytes = 64 << 10

// TurnRunner runs a conversation turn.
type TurnRunner interface {
	Turn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResponse, error)
}

// FlowCatalog lists the loaded flows.
type FlowCatalog interface {
	Flows() []flowstore.Summary
	Flow(id string) (*domain.Flow, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server holds the handlers and their collaborators.
type Server struct {
	turns   TurnRunner
	flows   FlowCatalog
	Streams *StreamManager

	logger         *slog.Logger
	allowedOrigins []string
	rateLimit      int
	rateWindow     time.Duration
	maxBodyBytes   int64
	checks         map[string]HealthCheck
	metrics        http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAllowedOrigins sets the CORS allow list. An empty list allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithRateLimit limits each client IP to n requests per window on the API routes.
// n <= 0 disables the limit.
func WithRateLimit(n int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = n
		s.rateWindow = window
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithHealthCheck adds a named dependency check to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithStreams sets the manager behind /api/chat/events. Register its Hooks
// with the orchestrator so turns reach the subscribers.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewServer creates a server. Call Handler to obtain the router.
func NewServer(turns TurnRunner, flows FlowCatalog, opts ...Option) *Server {
	s := &Server{
		turns:        turns,
		flows:        flows,
		logger:       logging.NewNop(),
		rateWindow:   time.Minute,
		maxBodyBytes: DefaultMaxBodyBytes,
		checks:       make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler is a shorthand for NewServer(...).Handler().
func NewHandler(turns TurnRunner, flows FlowCatalog, opts ...Option) http.Handler {
	return NewServer(turns, flows, opts...).Handler()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(s.rateLimiter())
		}
		r.Post("/chat/next", s.Next)
		r.Get("/chat/events", s.SubscribeEvents)
		r.Get("/flows", s.ListFlows)
		r.Get("/flows/{flowID}", s.GetFlow)
	})
	return r
}

func (s *Server) rateLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(
		s.rateLimit,
		s.rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "too many requests", "RATE_LIMITED")
		}),
	)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
