package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/gvmoraes79/FabricaEbook/internal/config"
	"github.com/gvmoraes79/FabricaEbook/internal/generate"
	"github.com/gvmoraes79/FabricaEbook/internal/pipeline"
	"github.com/gvmoraes79/FabricaEbook/internal/render"
)

// Server is the HTTP API for generating, editing and exporting e-books.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	renderer     *render.Renderer
	stats        *generate.LLMStats
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, renderer *render.Renderer, stats *generate.LLMStats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		renderer:     renderer,
		stats:        stats,
		log:          log,
		cfg:          cfg,
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
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.EbookAPIKey, s.log))

		// Each submission costs many generation calls.
		r.Group(func(r chi.Router) {
			if s.cfg.RateLimitPerMinute > 0 {
				r.Use(httprate.LimitByIP(s.cfg.RateLimitPerMinute, time.Minute))
			}
			r.Post("/api/ebooks", s.handleCreate)
			r.Post("/api/ebooks/enhance", s.handleEnhance)
		})

		r.Route("/api/ebooks/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleDocument)
			r.Get("/status", s.handleStatus)
			r.Put("/chapters/{index}", s.handleEditChapter)
			r.Get("/export.pdf", s.handleExportPDF)
			r.Get("/export.txt", s.handleExportText)
		})

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"renderer_ready": s.renderer.Ready(),
		"queue_depth":    s.orchestrator.QueueDepth(),
		"active_jobs":    s.orchestrator.ActiveJobs(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
