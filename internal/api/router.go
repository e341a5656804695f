// Package api exposes turn consolidation, context assembly, and feedback
// resolution over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rcliao/glucomem/internal/consolidate"
	"github.com/rcliao/glucomem/internal/recall"
	"github.com/rcliao/glucomem/internal/store"
)

// Handler serves the HTTP routes. It holds no per-user state.
type Handler struct {
	consolidator *consolidate.Consolidator
	assembler    *recall.Assembler
	store        store.Store
	log          zerolog.Logger
	loc          *time.Location
	now          func() time.Time
}

// NewHandler returns a Handler over the given components.
func NewHandler(s store.Store, c *consolidate.Consolidator, a *recall.Assembler, log zerolog.Logger) *Handler {
	return &Handler{
		consolidator: c,
		assembler:    a,
		store:        s,
		log:          log.With().Str("component", "api").Logger(),
		now:          time.Now,
	}
}

// WithLocation resolves request times in loc, so "today" in a user message
// means the user's today whatever zone the client sent its clock in.
func (h *Handler) WithLocation(loc *time.Location) *Handler {
	h.loc = loc
	return h
}

// clock returns t, or the server time when t is unset, in the handler's zone.
func (h *Handler) clock(t *time.Time) time.Time {
	now := h.now()
	if t != nil && !t.IsZero() {
		now = *t
	}
	if h.loc != nil {
		now = now.In(h.loc)
	}
	return now
}

// NewRouter wires every route to h.
func NewRouter(h *Handler) *mux.Router {
	root := mux.NewRouter()
	root.Use(Recover(h.log))

	root.HandleFunc("/v1/users/{userId}/turns", h.ProcessTurn).Methods("POST")
	root.HandleFunc("/v1/users/{userId}/context", h.GetContext).Methods("GET")
	root.HandleFunc("/v1/users/{userId}/feedback", h.ListFeedback).Methods("GET")
	root.HandleFunc("/v1/users/{userId}/feedback/{feedbackId}", h.ResolveFeedback).Methods("POST")

	root.HandleFunc("/healthz", h.Health).Methods("GET")
	root.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return root
}

// NewServer returns an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
