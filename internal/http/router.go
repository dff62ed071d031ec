package http

import (
	"net/http"
	"strings"

	"media-transcription-pipeline/internal/app"
	"media-transcription-pipeline/internal/schema"
	"media-transcription-pipeline/internal/service/pipeline"
	"media-transcription-pipeline/internal/service/transcription"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// BlobsPrefix is where an in-process segment store is mounted.
const BlobsPrefix = "/v1/blobs"

// Deps are the services behind the HTTP API.
type Deps struct {
	Manager      *pipeline.Manager
	Orchestrator *transcription.Orchestrator
	Validator    *schema.Validator
	// Blobs serves the in-process segment store. Nil when the store is remote.
	Blobs http.Handler
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, deps Deps) http.Handler {
	h := &handlers{app: application, deps: deps}
	if h.deps.Validator == nil {
		h.deps.Validator = schema.New(0)
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Manager != nil && !deps.Manager.Accepting() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("draining"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		if deps.Blobs != nil {
			r.Mount(strings.TrimPrefix(BlobsPrefix, "/v1"), deps.Blobs)
		}
		r.Get("/info", h.info)
		r.Post("/segments/transcribe", h.transcribeSegment)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.submitJob)
			r.Get("/", h.listJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getJob)
				r.Delete("/", h.cancelJob)
				r.Get("/segments", h.jobSegments)
				r.Get("/events", h.jobEvents)
			})
		})
	})

	return r
}
