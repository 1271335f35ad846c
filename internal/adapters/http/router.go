package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/core/ports"
	"github.com/clinicore/medrag/internal/observability/metrics"
)

// Router exposes the consult API. All handlers are thin: validation and
// transport concerns here, everything else in the use cases.
type Router struct {
	consultUC ports.ConsultService
	events    ports.IndexEventQueue
	options   RouterOptions
}

type RouterOptions struct {
	// RateLimitRPS and RateLimitBurst gate the whole API surface; zero
	// disables the limiter.
	RateLimitRPS   float64
	RateLimitBurst int
	// MaxInFlight bounds concurrently served requests; zero disables the
	// backpressure gate.
	MaxInFlight    int
	AcquireTimeout time.Duration
	// StreamChunkChars is the rune budget per SSE content frame.
	StreamChunkChars int
	Metrics          *metrics.HTTPServerMetrics
	MetricsService   string
}

func NewRouter(consultUC ports.ConsultService, events ports.IndexEventQueue, options RouterOptions) *Router {
	if options.AcquireTimeout <= 0 {
		options.AcquireTimeout = 100 * time.Millisecond
	}
	if options.StreamChunkChars <= 0 {
		options.StreamChunkChars = 40
	}
	return &Router{
		consultUC: consultUC,
		events:    events,
		options:   options,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/api/consult", rt.consult)
	mux.HandleFunc("/api/consult/stream", rt.consultStream)
	mux.HandleFunc("/api/knowledge/rebuild", rt.triggerRebuild)
	if rt.options.Metrics != nil {
		mux.Handle("/metrics", rt.options.Metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.options.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.options.MaxInFlight, rt.options.AcquireTimeout)
	}
	if rt.options.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.options.RateLimitRPS, rt.options.RateLimitBurst)
	}
	if rt.options.Metrics != nil {
		handler = rt.options.Metrics.Middleware(rt.options.MetricsService, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) consult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	req, ok := decodeConsultRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, err := rt.consultUC.Consult(r.Context(), req)
	rt.recordConsult("/api/consult", result, time.Since(start), err)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) consultStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	req, ok := decodeConsultRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	streamConsult(w, r, rt.consultUC, req, rt.options.StreamChunkChars, func(result *domain.ConsultResult, err error) {
		rt.recordConsult("/api/consult/stream", result, time.Since(start), err)
	})
}

// triggerRebuild publishes a knowledge-updated event; the worker picks it up
// asynchronously.
func (rt *Router) triggerRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "rebuild events are not configured"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional for this endpoint.
	_ = json.NewDecoder(r.Body).Decode(&req)
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual"
	}

	if err := rt.events.PublishKnowledgeUpdated(r.Context(), reason); err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuild scheduled", "reason": reason})
}

func decodeConsultRequest(w http.ResponseWriter, r *http.Request) (domain.ConsultRequest, bool) {
	var req domain.ConsultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return domain.ConsultRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return domain.ConsultRequest{}, false
	}
	return req, true
}

func (rt *Router) recordConsult(endpoint string, result *domain.ConsultResult, duration time.Duration, err error) {
	if rt.options.Metrics == nil {
		return
	}
	sources := 0
	if result != nil {
		sources = len(result.Sources)
	}
	rt.options.Metrics.RecordConsult(rt.options.MetricsService, endpoint, sources, duration, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
