// Package server exposes the upload, report and recommendation endpoints
// over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/utility-bills/internal/analytics"
	"github.com/sells-group/utility-bills/internal/ingest"
	"github.com/sells-group/utility-bills/internal/metrics"
	"github.com/sells-group/utility-bills/internal/model"
	"github.com/sells-group/utility-bills/internal/resilience"
)

// BillSource reads module bill histories.
type BillSource interface {
	ListBills(ctx context.Context, m model.Module) ([]model.Bill, error)
	Ping(ctx context.Context) error
}

// BreakerStatus reports the classifier circuit breaker on /health.
type BreakerStatus interface {
	State() resilience.CircuitState
	Counters() (consecutiveFailures int, state resilience.CircuitState, rejected int64)
}

// Config holds the HTTP-facing settings.
type Config struct {
	CSRFCookie     string
	CORSOrigins    []string
	UploadRPS      float64
	UploadBurst    int
	MaxUploadBytes int64
	Thresholds     analytics.Thresholds
	// Breaker is optional.
	Breaker BreakerStatus
}

// Server wires handlers to their dependencies.
type Server struct {
	cfg      Config
	pipeline *ingest.Pipeline
	bills    BillSource
	metrics  *metrics.Metrics
	limiter  *ipLimiter
	log      *zap.Logger
}

// New creates a Server. m may be nil.
func New(cfg Config, p *ingest.Pipeline, bills BillSource, m *metrics.Metrics) *Server {
	if cfg.CSRFCookie == "" {
		cfg.CSRFCookie = "csrf_token"
	}
	return &Server{
		cfg:      cfg,
		pipeline: p,
		bills:    bills,
		metrics:  m,
		limiter:  newIPLimiter(cfg.UploadRPS, cfg.UploadBurst),
		log:      zap.L().With(zap.String("component", "server")),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: len(s.cfg.CORSOrigins) > 0,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.With(s.limiter.middleware).Post("/upload", s.handleUpload)
	r.Get("/reports/{module}", s.handleReport)
	r.Get("/recommendations", s.handleRecommendations)
	return r
}

// accessLog logs every request with its status and duration and records
// the request metric under the matched route pattern.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(route, status, elapsed)
		s.log.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
		)
	})
}
