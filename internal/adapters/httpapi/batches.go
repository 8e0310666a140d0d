package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pcx/internal/core"
	"pcx/pkg/domain"
)

type compositionRequest struct {
	MaterialTypeCode string                `json:"materialTypeCode" validate:"required"`
	MaterialTypeName string                `json:"materialTypeName"`
	Classification   domain.Classification `json:"classification" validate:"required,oneof=RECYCLED VIRGIN MIXED WASTE"`
	Percentage       float64               `json:"percentage" validate:"gte=0,lte=100"`
}

type createBatchRequest struct {
	ProductName      string               `json:"productName" validate:"required"`
	ProductType      domain.ProductType   `json:"productType" validate:"required,oneof=PELLETS FLAKES GRANULES REGRIND"`
	Composition      []compositionRequest `json:"composition" validate:"required,min=1,dive"`
	ExpectedQuantity float64              `json:"expectedQuantity" validate:"gt=0"`
	Unit             domain.Unit          `json:"unit" validate:"omitempty,oneof=kg lbs ton"`
	StartDate        *time.Time           `json:"startDate"`
	SourceDocumentID *string              `json:"sourceDocumentId"`
	Notes            string               `json:"notes"`
	Metadata         domain.BatchMetadata `json:"metadata"`
}

func (req createBatchRequest) input() core.CreateBatchInput {
	in := core.CreateBatchInput{
		ProductName:      req.ProductName,
		ProductType:      req.ProductType,
		ExpectedQuantity: req.ExpectedQuantity,
		Unit:             req.Unit,
		SourceDocumentID: req.SourceDocumentID,
		Notes:            req.Notes,
		Metadata:         req.Metadata,
	}
	if req.StartDate != nil {
		in.StartDate = *req.StartDate
	}
	for _, c := range req.Composition {
		in.Composition = append(in.Composition, domain.MaterialComposition(c))
	}
	return in
}

type statusRequest struct {
	Status domain.BatchStatus `json:"status" validate:"required"`
}

type quantitiesRequest struct {
	Expected *float64     `json:"expected" validate:"omitempty,gte=0"`
	Received *float64     `json:"received" validate:"omitempty,gte=0"`
	Consumed *float64     `json:"consumed" validate:"omitempty,gte=0"`
	Yielded  *float64     `json:"yielded" validate:"omitempty,gte=0"`
	Waste    *float64     `json:"waste" validate:"omitempty,gte=0"`
	Unit     *domain.Unit `json:"unit" validate:"omitempty,oneof=kg lbs ton"`
}

type batchPatchRequest struct {
	ProductName      *string               `json:"productName" validate:"omitempty,min=1"`
	ProductType      *domain.ProductType   `json:"productType" validate:"omitempty,oneof=PELLETS FLAKES GRANULES REGRIND"`
	Notes            *string               `json:"notes"`
	SourceDocumentID *string               `json:"sourceDocumentId"`
	Metadata         *domain.BatchMetadata `json:"metadata"`
	StartDate        *time.Time            `json:"startDate"`
}

func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, res, err := h.svc.CreateBatch(r.Context(), req.input(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entityResponse("batch", batch, res))
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.svc.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.BatchFilter{
		Status:         domain.BatchStatus(q.Get("status")),
		ProductType:    domain.ProductType(q.Get("productType")),
		Classification: domain.Classification(q.Get("classification")),
	}
	var err error
	if filter.From, err = parseTime(q.Get("from")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if filter.To, err = parseTime(q.Get("to")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	batches, err := h.svc.ListBatches(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) UpdateBatchStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, res, err := h.svc.UpdateBatchStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse("batch", batch, res))
}

func (h *Handler) UpdateBatchQuantities(w http.ResponseWriter, r *http.Request) {
	var req quantitiesRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, res, err := h.svc.UpdateBatchQuantities(r.Context(), chi.URLParam(r, "id"), core.QuantitiesPatch(req), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse("batch", batch, res))
}

func (h *Handler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, res, err := h.svc.UpdateBatch(r.Context(), chi.URLParam(r, "id"), core.BatchPatch(req), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse("batch", batch, res))
}

func (h *Handler) BatchEfficiency(w http.ResponseWriter, r *http.Request) {
	eff, err := h.svc.BatchEfficiency(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"efficiency": eff})
}

func (h *Handler) LinkMeasurement(w http.ResponseWriter, r *http.Request) {
	batch, res, err := h.svc.LinkMeasurement(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "measurementId"), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse("batch", batch, res))
}
