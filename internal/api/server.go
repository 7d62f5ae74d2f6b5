package api

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/dgallion1/manualbot/internal/metrics"
	"github.com/dgallion1/manualbot/internal/pipeline"
	"github.com/dgallion1/manualbot/internal/rag"
	"github.com/dgallion1/manualbot/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Backend is the set of operations the HTTP layer exposes.
type Backend interface {
	ProcessDocument(ctx context.Context, data []byte, documentName string) (*pipeline.Result, error)
	SubmitDocument(data []byte, documentName string) (*pipeline.Job, error)
	Job(id string) *pipeline.Job
	Answer(ctx context.Context, conversation []llm.Message, query string) (string, []domain.Citation, error)
	AnswerStream(ctx context.Context, conversation []llm.Message, query string) iter.Seq[rag.Event]
	DeleteDocument(ctx context.Context, documentName string) error
	ListDocuments(ctx context.Context) ([]store.DocumentSummary, error)
	Ping(ctx context.Context) error
	Stats() map[string]llm.StatsSnapshot
	Models() (embedding, generation string)
}

// Options configures the HTTP surface.
type Options struct {
	// APIKey enables bearer-token auth on /api routes when non-empty.
	APIKey         string
	MaxUploadBytes int64
}

// Server is the HTTP API server for manualbot.
type Server struct {
	router  chi.Router
	backend Backend
	metrics *metrics.Metrics
	log     *slog.Logger
	opts    Options
}

// NewServer creates and configures the HTTP server. m may be nil.
func NewServer(backend Backend, m *metrics.Metrics, log *slog.Logger, opts Options) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	s := &Server{
		backend: backend,
		metrics: m,
		log:     log.With("component", "api"),
		opts:    opts,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log, s.metrics))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		if s.opts.APIKey != "" {
			r.Use(AuthMiddleware(s.opts.APIKey, s.log))
		}

		r.Get("/api/stats/llm", s.handleLLMStats)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/ingestion/upload", s.handleUpload)
			r.Get("/ingestion/{jobID}/status", s.handleIngestStatus)
			r.Post("/ingestion/process", s.handleProcess)

			r.Get("/documents", s.handleListDocuments)
			r.Delete("/documents/{name}", s.handleDeleteDocument)

			r.Post("/chat/chat", s.handleChat)
			r.Post("/chat/stream", s.handleChatStream)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"service": "manualbot",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "manualbot"})
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrExtraction):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCapability):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and sends {"error": msg}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.log.Error("request failed",
			"path", r.URL.Path,
			"status", code,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	jsonError(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
