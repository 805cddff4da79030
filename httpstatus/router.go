// Package httpstatus serves read-only diagnostics for a hot-swap runtime
// over HTTP: lifecycle statuses, active and shadowed candidates, and
// resolution explanations.
package httpstatus

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/hotswap/health"
	"github.com/GoCodeAlone/hotswap/lifecycle"
	"github.com/GoCodeAlone/hotswap/logging"
	"github.com/GoCodeAlone/hotswap/registry"
)

// Static errors for handler construction.
var (
	ErrStatusSourceNil    = errors.New("status source is nil")
	ErrCandidateSourceNil = errors.New("candidate source is nil")
)

// StatusSource exposes lifecycle state. *lifecycle.Manager implements it.
type StatusSource interface {
	Status(domain, key string) (lifecycle.Status, bool)
	AllStatuses() []lifecycle.Status
}

// CandidateSource exposes the candidate registry. *registry.Resolver
// implements it.
type CandidateSource interface {
	ListActive(domain string) []registry.Candidate
	ListShadowed(domain string) []registry.Candidate
	Explain(domain, key, provider string) registry.Explanation
	Domains() []string
}

// HealthSource exposes the last aggregated health. *health.Monitor
// implements it.
type HealthSource interface {
	Status() *health.AggregatedStatus
}

// Handler routes diagnostics requests.
type Handler struct {
	statuses   StatusSource
	candidates CandidateSource
	health     HealthSource
	logger     logging.Logger
	router     chi.Router
}

// Option configures a Handler
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger logging.Logger) Option {
	return func(h *Handler) {
		h.logger = logging.OrNop(logger)
	}
}

// WithHealth adds GET /health backed by source.
func WithHealth(source HealthSource) Option {
	return func(h *Handler) {
		h.health = source
	}
}

// NewHandler builds the router. Only GET routes are registered.
func NewHandler(statuses StatusSource, candidates CandidateSource, opts ...Option) (*Handler, error) {
	if statuses == nil {
		return nil, ErrStatusSourceNil
	}
	if candidates == nil {
		return nil, ErrCandidateSourceNil
	}

	h := &Handler{
		statuses:   statuses,
		candidates: candidates,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(h.logRequests)
	r.Get("/statuses", h.listStatuses)
	r.Get("/statuses/{domain}/{key}", h.getStatus)
	r.Get("/domains", h.listDomains)
	r.Get("/candidates/{domain}", h.listActive)
	r.Get("/candidates/{domain}/shadowed", h.listShadowed)
	r.Get("/candidates/{domain}/{key}/explain", h.explain)
	if h.health != nil {
		r.Get("/health", h.getHealth)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router = r
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Router returns the underlying chi router so callers can mount it.
func (h *Handler) Router() chi.Router {
	return h.router
}

func (h *Handler) listStatuses(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.statuses.AllStatuses())
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	domain, key := chi.URLParam(r, "domain"), chi.URLParam(r, "key")
	st, ok := h.statuses.Status(domain, key)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no status for "+registry.Target{Domain: domain, Key: key}.String())
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) listDomains(w http.ResponseWriter, r *http.Request) {
	domains := h.candidates.Domains()
	if domains == nil {
		domains = []string{}
	}
	h.writeJSON(w, http.StatusOK, domains)
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, nonNil(h.candidates.ListActive(chi.URLParam(r, "domain"))))
}

func (h *Handler) listShadowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, nonNil(h.candidates.ListShadowed(chi.URLParam(r, "domain"))))
}

func (h *Handler) explain(w http.ResponseWriter, r *http.Request) {
	exp := h.candidates.Explain(chi.URLParam(r, "domain"), chi.URLParam(r, "key"), r.URL.Query().Get("provider"))
	if len(exp.Ordered) == 0 {
		h.writeError(w, http.StatusNotFound, "no candidates for "+registry.Target{Domain: exp.Domain, Key: exp.Key}.String())
		return
	}
	h.writeJSON(w, http.StatusOK, exp)
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	agg := h.health.Status()
	if agg == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no health check has run yet")
		return
	}
	code := http.StatusOK
	if agg.OverallStatus == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, agg)
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, errorBody{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("Diagnostics request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func nonNil(cands []registry.Candidate) []registry.Candidate {
	if cands == nil {
		return []registry.Candidate{}
	}
	return cands
}
