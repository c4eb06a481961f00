// Package api exposes the reverie HTTP surface: conversation history CRUD,
// summarisation triggers, per-conversation settings, the summaries index with
// semantic search, and the operational endpoints (/healthz, /readyz,
// /metrics).
//
// All payloads are JSON. Errors use a single {"error": "..."} envelope with
// conventional status codes: 400 for malformed input, 404 for missing
// summaries, 501 when the configured store has no semantic search.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/reverie/internal/health"
	"github.com/MrWong99/reverie/internal/observe"
	"github.com/MrWong99/reverie/internal/summary"
)

// Server routes HTTP requests to the summarisation service and the history
// store. Construct with [NewServer] and mount via [Server.Handler].
type Server struct {
	store   *summary.StoreGuard
	service *summary.Service
	health  *health.Handler
	metrics *observe.Metrics
	mux     *http.ServeMux
}

// NewServer wires the API routes. The health handler may be nil, in which
// case a handler without readiness checks is used.
func NewServer(store *summary.StoreGuard, service *summary.Service, h *health.Handler, m *observe.Metrics) *Server {
	if h == nil {
		h = health.New()
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	s := &Server{
		store:   store,
		service: service,
		health:  h,
		metrics: m,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// routes registers all endpoints on the internal mux.
func (s *Server) routes() {
	s.mux.HandleFunc("GET /v1/conversations", s.handleListConversations)
	s.mux.HandleFunc("GET /v1/conversations/{id}/messages", s.handleGetMessages)
	s.mux.HandleFunc("POST /v1/conversations/{id}/messages", s.handleAppendMessage)
	s.mux.HandleFunc("POST /v1/conversations/{id}/summarise", s.handleSummarise)
	s.mux.HandleFunc("GET /v1/conversations/{id}/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /v1/conversations/{id}/settings", s.handlePutSettings)
	s.mux.HandleFunc("GET /v1/conversations/{id}/summaries", s.handleListSummaries)
	s.mux.HandleFunc("GET /v1/conversations/{id}/summaries/search", s.handleSearchSummaries)
	s.mux.HandleFunc("DELETE /v1/conversations/{id}/summaries/{sid}", s.handleDeleteSummary)

	s.health.Register(s.mux)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the complete HTTP handler with tracing, metrics, and
// request logging middleware applied.
func (s *Server) Handler() http.Handler {
	return observe.Middleware(s.metrics)(s.mux)
}
