// Package httpapi exposes the certification service over HTTP.
package httpapi

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"pcx/internal/adapters/reports"
	"pcx/internal/blob"
	"pcx/internal/core"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

const (
	HeaderActor = "X-PCX-Actor"
	HeaderRole  = "X-PCX-Role"
)

// Handler serves the REST surface of the service.
type Handler struct {
	svc      *core.Service
	exports  reports.Scheduler
	blobs    blob.Store
	metrics  http.Handler
	vars     http.Handler
	logger   core.Logger
	validate *validator.Validate
}

// Option configures optional collaborators.
type Option func(*Handler)

// WithExports enables the /exports endpoints.
func WithExports(s reports.Scheduler, store blob.Store) Option {
	return func(h *Handler) {
		h.exports = s
		h.blobs = store
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(m http.Handler) Option { return func(h *Handler) { h.metrics = m } }

// WithDebugVars mounts h on /debug/vars.
func WithDebugVars(v http.Handler) Option { return func(h *Handler) { h.vars = v } }

// WithLogger sets the request logger.
func WithLogger(l core.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler builds a handler over svc.
func NewHandler(svc *core.Service, opts ...Option) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	h := &Handler{svc: svc, validate: v}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns a chi router with the standard middleware stack and all
// routes registered.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.requestLog)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	if h.vars != nil {
		r.Method(http.MethodGet, "/debug/vars", h.vars)
	}

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", h.CreateBatch)
		r.Get("/", h.ListBatches)
		r.Get("/{id}", h.GetBatch)
		r.Patch("/{id}", h.UpdateBatch)
		r.Patch("/{id}/status", h.UpdateBatchStatus)
		r.Patch("/{id}/quantities", h.UpdateBatchQuantities)
		r.Get("/{id}/efficiency", h.BatchEfficiency)
		r.Post("/{id}/measurements/{measurementId}", h.LinkMeasurement)
	})

	r.Route("/measurements", func(r chi.Router) {
		r.Post("/", h.CreateMeasurement)
		r.Get("/", h.ListMeasurements)
		r.Get("/{id}", h.GetMeasurement)
		r.Get("/{id}/chain", h.MeasurementChain)
		r.Post("/{id}/supersede", h.SupersedeMeasurement)
		r.Post("/{id}/evidence", h.AttachEvidence)
		r.Patch("/{id}/validation-status", h.UpdateValidationStatus)
	})

	r.Route("/discrepancies", func(r chi.Router) {
		r.Post("/", h.CreateDiscrepancy)
		r.Get("/", h.ListDiscrepancies)
		r.Get("/{id}", h.GetDiscrepancy)
		r.Post("/{id}/resolve", h.ResolveDiscrepancy)
		r.Post("/{id}/ignore", h.IgnoreDiscrepancy)
	})

	r.Get("/mass-balance", h.MassBalance)
	r.Get("/reconciliation", h.ReconciliationRows)
	r.Post("/reconciliation/run", h.RunReconciliation)

	r.Get("/reports/summary", h.Summary)
	r.Get("/reports/audit", h.AuditTrail)

	r.Route("/exports", func(r chi.Router) {
		r.Post("/", h.CreateExport)
		r.Get("/{id}", h.GetExport)
		r.Get("/{id}/artifacts/{format}", h.DownloadArtifact)
	})
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if h.logger != nil {
			h.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", chimw.GetReqID(r.Context()))
		}
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
