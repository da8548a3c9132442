package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/metrics"
)

// DefaultMaxUploadBytes bounds the size of an uploaded document.
const DefaultMaxUploadBytes = 50 << 20

// Answerer answers questions and manages conversation history.
type Answerer interface {
	Query(ctx context.Context, question string, mode core.Mode, conversationID string) *core.Answer
	History(ctx context.Context, conversationID string) (*core.ConversationRecord, bool, error)
	DeleteHistory(ctx context.Context, conversationID string) (bool, error)
	Conversations(ctx context.Context) ([]core.ConversationSummary, error)
}

// Searcher ranks indexed chunks against a query.
type Searcher interface {
	Retrieve(ctx context.Context, question string, topK int) ([]core.RetrievalResult, error)
}

// Ingester adds and removes documents.
type Ingester interface {
	Ingest(ctx context.Context, filename string, data []byte) (*core.DocumentInfo, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Registry lists registered documents.
type Registry interface {
	List(ctx context.Context) ([]*core.DocumentInfo, error)
	Get(ctx context.Context, id string) (*core.DocumentInfo, error)
}

// Counter reports the number of indexed chunks.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Services are the collaborators the API delegates to.
type Services struct {
	Answers   Answerer
	Search    Searcher
	Ingest    Ingester
	Documents Registry
	Index     Counter

	// ModelConfigured reports whether a language model is available.
	ModelConfigured bool
}

// Server serves the HTTP API.
type Server struct {
	services       Services
	maxUploadBytes int64
	version        string
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes bounds the size of uploaded documents.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithVersion sets the version reported by the banner endpoint.
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "http")
	}
}

// NewServer creates an HTTP API server and registers the application
// collectors with the default Prometheus registry.
func NewServer(services Services, opts ...Option) *Server {
	metrics.Register(prometheus.DefaultRegisterer)

	s := &Server{
		services:       services,
		maxUploadBytes: DefaultMaxUploadBytes,
		version:        "dev",
		logger:         slog.Default().With("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with the middleware stack installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/documents", func(r chi.Router) {
		r.Post("/upload", s.uploadDocument)
		r.Get("/", s.listDocuments)
		r.Get("/{id}", s.getDocument)
		r.Delete("/{id}", s.deleteDocument)
	})

	r.Route("/search", func(r chi.Router) {
		r.Post("/", s.search)
		r.Get("/stats", s.searchStats)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Post("/", s.chat)
		r.Get("/history/{id}", s.getHistory)
		r.Delete("/history/{id}", s.deleteHistory)
		r.Get("/conversations", s.listConversations)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "studyrag",
		"status":  "running",
		"version": s.version,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	chunks, err := s.services.Index.Count(r.Context())
	status, code := "healthy", http.StatusOK
	if err != nil {
		s.logger.Error("health check failed", "err", err)
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"services": map[string]any{
			"api":            true,
			"vector_store":   err == nil,
			"chunks_indexed": chunks,
			"language_model": s.services.ModelConfigured,
		},
	})
}
