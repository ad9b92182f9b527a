// Package api provides HTTP handlers for the release planning API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/artpar/releaseplan/internal/core/domain"
	"github.com/artpar/releaseplan/internal/shell/api/openapi"
	"github.com/artpar/releaseplan/internal/shell/planning"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds the size of an analysis snapshot accepted over HTTP.
const maxBodyBytes = 10 << 20

// =============================================================================
// Handler
// =============================================================================

// Planner builds plans. *planning.Service satisfies it.
type Planner interface {
	Plan(ctx context.Context, analysis domain.Analysis) (planning.Result, error)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the API.
type Handler struct {
	planner Planner
	checks  map[string]ReadinessCheck
	openapi *openapi.Generator
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithReadinessCheck adds a named check to GET /ready.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

// WithVersion sets the API version reported in the OpenAPI document.
func WithVersion(version string) Option {
	return func(h *Handler) {
		h.openapi = newGenerator(version)
	}
}

// NewHandler creates a new API handler.
func NewHandler(p Planner, l *slog.Logger, opts ...Option) *Handler {
	if l == nil {
		l = slog.Default()
	}
	h := &Handler{
		planner: p,
		checks:  make(map[string]ReadinessCheck),
		openapi: newGenerator("dev"),
		logger:  l,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/plans", h.handleCreatePlan)
	})

	r.Get("/openapi.json", h.openapi.Handler())

	return r
}

func newGenerator(version string) *openapi.Generator {
	g := openapi.NewGenerator(
		openapi.WithVersion(version),
		openapi.WithErrorModel(ErrorResponse{}),
	)
	g.Register(openapi.Endpoint{
		Method:      http.MethodGet,
		Path:        "/health",
		OperationID: "getHealth",
		Summary:     "Liveness check",
		Tag:         "Health",
		Response:    HealthResponse{},
	})
	g.Register(openapi.Endpoint{
		Method:      http.MethodGet,
		Path:        "/ready",
		OperationID: "getReady",
		Summary:     "Readiness check",
		Tag:         "Health",
		Response:    ReadyResponse{},
		Errors:      []int{http.StatusServiceUnavailable},
	})
	g.Register(openapi.Endpoint{
		Method:      http.MethodPost,
		Path:        "/api/v1/plans",
		OperationID: "createPlan",
		Summary:     "Build a deployment plan from an analysis snapshot",
		Tag:         "Plans",
		Request:     domain.Analysis{},
		Response:    PlanResponse{},
		Errors:      []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusBadGateway},
	})
	return g
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"planner": "ok"}
	ready := h.planner != nil
	if !ready {
		checks["planner"] = "failed"
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = "failed"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Plan Handlers
// =============================================================================

func (h *Handler) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var analysis domain.Analysis
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&analysis); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), CodeTooLarge)
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON", CodeValidation)
		return
	}

	result, err := h.planner.Plan(r.Context(), analysis)
	if err != nil {
		if errors.Is(err, planning.ErrPublishFailed) {
			h.writeError(w, http.StatusBadGateway, "plan built but could not be published", CodePublish)
			return
		}
		h.logger.Error("failed to build plan", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to build plan", CodeInternal)
		return
	}

	h.writeJSON(w, http.StatusOK, PlanResponse{
		PlanID:      result.PlanID,
		GeneratedAt: result.GeneratedAt,
		Plan:        result.Plan,
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
