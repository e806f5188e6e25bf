// Package api exposes the engine's inspection and control operations over
// HTTP using a chi router.
//
//	GET  /healthz
//	GET  /v1/stats
//	GET  /v1/jobs?status=&limit=&offset=
//	POST /v1/jobs
//	GET  /v1/jobs/failed?limit=&offset=
//	GET  /v1/jobs/{jobId}
//	POST /v1/jobs/{jobId}/retry
//	GET  /v1/events?topic=       (server-sent events, needs WithEventStream)
//
// Errors are JSON {"error": "..."}: unknown IDs map to 404, jobs in the
// wrong state to 409 and malformed input to 400.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/svetoslav0421/nocode-claude-ai/engine"
	"github.com/svetoslav0421/nocode-claude-ai/stream"
)

// API wires the HTTP handlers to an Engine.
type API struct {
	eng       *engine.Engine
	logger    *slog.Logger
	broker    *stream.Broker
	keepAlive time.Duration
}

// Option configures an API.
type Option func(*API)

// WithEventStream enables GET /v1/events backed by b. The broker must also
// be registered as an engine extension to receive events.
func WithEventStream(b *stream.Broker) Option {
	return func(a *API) { a.broker = b }
}

// WithKeepAlive sets the comment interval that keeps idle event streams
// open through proxies.
func WithKeepAlive(d time.Duration) Option {
	return func(a *API) { a.keepAlive = d }
}

// New creates an API from an Engine.
func New(eng *engine.Engine, logger *slog.Logger, opts ...Option) *API {
	a := &API{eng: eng, logger: logger, keepAlive: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a router with every route registered.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the API routes on r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", a.stats)
		r.Get("/events", a.streamEvents)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", a.listJobs)
			r.Post("/", a.enqueueJob)
			r.Get("/failed", a.listFailed)
			r.Get("/{jobId}", a.getJob)
			r.Post("/{jobId}/retry", a.retryJob)
		})
	})
}
