package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/cx-policy-validator/internal/governance"
	"github.com/polisai/cx-policy-validator/pkg/domain"
)

// ValidationPath is the route of the policy definition validation endpoint relative
// to the base path.
const ValidationPath = "/v3/validation/policydefinition"

// RequestIDHeader carries the correlation id of a request.
const RequestIDHeader = "X-Request-ID"

const defaultMaxBodyBytes = 1 << 20

// Pipeline validates a structured document and renders the response document.
type Pipeline interface {
	Validate(ctx context.Context, doc domain.StructuredDocument) (domain.StructuredDocument, error)
}

// DocumentInterceptor rewrites a request body before it enters the pipeline.
type DocumentInterceptor interface {
	Process(ctx context.Context, doc domain.StructuredDocument) (domain.StructuredDocument, error)
}

// Server exposes the validation pipeline over HTTP.
type Server struct {
	pipeline       Pipeline
	interceptor    DocumentInterceptor
	metrics        *Metrics
	logger         *slog.Logger
	basePath       string
	maxBodyBytes   int64
	allowedOrigins []string
	tracerProvider trace.TracerProvider
	health         func(context.Context) error
	limiter        *governance.RateLimiter

	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithBasePath mounts the validation endpoint under path in addition to the bare path.
func WithBasePath(path string) Option {
	return func(s *Server) { s.basePath = strings.TrimRight(path, "/") }
}

// WithInterceptor applies a JSON-LD interceptor to request bodies.
func WithInterceptor(i DocumentInterceptor) Option {
	return func(s *Server) { s.interceptor = i }
}

// WithMetrics records Prometheus metrics and serves them on /metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxBodyBytes limits the size of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithCORSOrigins enables CORS for the listed origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = append([]string(nil), origins...) }
}

// WithTracerProvider sets the provider used by the HTTP instrumentation.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracerProvider = tp }
}

// WithHealthCheck makes /healthz report unavailable while check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// WithRateLimiter throttles the validation endpoint per client address.
func WithRateLimiter(rl *governance.RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// NewServer builds the HTTP handler tree around pipeline.
func NewServer(pipeline Pipeline, opts ...Option) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("api server requires a pipeline")
	}

	s := &Server{
		pipeline:     pipeline,
		logger:       slog.Default(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.basePath != "" && !strings.HasPrefix(s.basePath, "/") {
		return nil, errors.New("base path must start with /")
	}

	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the metrics instance, or nil when metrics are disabled.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	var validate http.Handler = http.HandlerFunc(s.handleValidate)
	if s.limiter != nil {
		validate = s.rateLimit(validate)
	}
	r.Handle(ValidationPath, validate).Methods(http.MethodPost)
	if s.basePath != "" {
		r.Handle(s.basePath+ValidationPath, validate).Methods(http.MethodPost)
	}

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeErrors(w, req, http.StatusNotFound, []domain.ErrorDetail{{
			Message: "no route for " + req.Method + " " + req.URL.Path,
			Type:    domain.ErrorTypeInvalidRequest,
		}})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeErrors(w, req, http.StatusMethodNotAllowed, []domain.ErrorDetail{{
			Message: "method " + req.Method + " is not allowed on " + req.URL.Path,
			Type:    domain.ErrorTypeInvalidRequest,
		}})
	})

	otelOpts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	}
	if s.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(s.tracerProvider))
	}
	var handler http.Handler = otelhttp.NewHandler(r, "cx-policy-validator", otelOpts...)

	if len(s.allowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: s.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
		})
		handler = c.Handler(handler)
	}

	return handler
}

type requestIDKey struct{}

// requestID propagates the caller's X-Request-ID or assigns a new one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFromContext returns the request id assigned by the server.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
