package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pcx/internal/core"
	"pcx/pkg/domain"
)

type createDiscrepancyRequest struct {
	Type          string                     `json:"type"`
	Severity      domain.DiscrepancySeverity `json:"severity" validate:"omitempty,oneof=HIGH MEDIUM LOW"`
	Description   string                     `json:"description"`
	BatchID       string                     `json:"batchId" validate:"required"`
	ProcessStep   string                     `json:"processStep"`
	ExpectedValue *float64                   `json:"expectedValue"`
	ActualValue   *float64                   `json:"actualValue"`
	Unit          string                     `json:"unit"`
	SLADeadline   *time.Time                 `json:"slaDeadline"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) CreateDiscrepancy(w http.ResponseWriter, r *http.Request) {
	var req createDiscrepancyRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, res, err := h.svc.CreateDiscrepancy(r.Context(), core.CreateDiscrepancyInput(req), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entityResponse("discrepancy", d, res))
}

func (h *Handler) GetDiscrepancy(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDiscrepancy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discrepancy": d})
}

func discrepancyFilter(r *http.Request) core.DiscrepancyFilter {
	q := r.URL.Query()
	return core.DiscrepancyFilter{
		Status:   domain.DiscrepancyStatus(q.Get("status")),
		Severity: domain.DiscrepancySeverity(q.Get("severity")),
		BatchID:  q.Get("batchId"),
	}
}

func (h *Handler) ListDiscrepancies(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListDiscrepancies(r.Context(), discrepancyFilter(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discrepancies": list})
}

func (h *Handler) ResolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, res, err := h.svc.ResolveDiscrepancy(r.Context(), chi.URLParam(r, "id"), req.Reason, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse("discrepancy", d, res))
}

func (h *Handler) IgnoreDiscrepancy(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, res, err := h.svc.IgnoreDiscrepancy(r.Context(), chi.URLParam(r, "id"), req.Reason, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse("discrepancy", d, res))
}

func (h *Handler) ReconciliationRows(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ReconciliationRows(r.Context(), discrepancyFilter(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	created, res, err := h.svc.RunReconciliationCheck(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse("created", created, res))
}
