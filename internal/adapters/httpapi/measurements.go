package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pcx/internal/core"
	"pcx/pkg/domain"
)

type evidenceRequest struct {
	Type     domain.EvidenceType `json:"type" validate:"required,oneof=PHOTO SCANNED_DOCUMENT"`
	URL      string              `json:"url" validate:"required"`
	Filename string              `json:"filename"`
}

func (e evidenceRequest) evidence() domain.Evidence {
	return domain.Evidence{Type: e.Type, URL: e.URL, Filename: e.Filename}
}

type createMeasurementRequest struct {
	Source                 domain.MeasurementSource `json:"source" validate:"required,oneof=MES SCALE MANUAL DOCUMENT_SCAN"`
	Timestamp              *time.Time               `json:"timestamp"`
	StationID              string                   `json:"stationId"`
	StationName            string                   `json:"stationName"`
	ProcessStep            string                   `json:"processStep" validate:"required"`
	BatchID                *string                  `json:"batchId"`
	OperatorID             string                   `json:"operatorId"`
	OperatorName           string                   `json:"operatorName"`
	Value                  float64                  `json:"value" validate:"gt=0"`
	Unit                   domain.Unit              `json:"unit" validate:"omitempty,oneof=kg lbs ton"`
	MaterialClassification domain.Classification    `json:"materialClassification" validate:"required,oneof=RECYCLED VIRGIN MIXED WASTE"`
	MaterialTypeCode       string                   `json:"materialTypeCode" validate:"required"`
	EntryJustification     string                   `json:"entryJustification"`
	Notes                  string                   `json:"notes"`
	Evidence               []evidenceRequest        `json:"evidence" validate:"omitempty,dive"`
}

func (req createMeasurementRequest) input() core.CreateMeasurementInput {
	in := core.CreateMeasurementInput{
		Source:                 req.Source,
		StationID:              req.StationID,
		StationName:            req.StationName,
		ProcessStep:            req.ProcessStep,
		BatchID:                req.BatchID,
		OperatorID:             req.OperatorID,
		OperatorName:           req.OperatorName,
		Value:                  req.Value,
		Unit:                   req.Unit,
		MaterialClassification: req.MaterialClassification,
		MaterialTypeCode:       req.MaterialTypeCode,
		EntryJustification:     req.EntryJustification,
		Notes:                  req.Notes,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}
	for _, e := range req.Evidence {
		in.Evidence = append(in.Evidence, e.evidence())
	}
	return in
}

type validationStatusRequest struct {
	Status   domain.ValidationStatus `json:"status" validate:"required"`
	Override bool                    `json:"override"`
}

func (h *Handler) CreateMeasurement(w http.ResponseWriter, r *http.Request) {
	var req createMeasurementRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, res, err := h.svc.CreateMeasurement(r.Context(), req.input(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entityResponse("measurement", m, res))
}

func (h *Handler) GetMeasurement(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMeasurement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"measurement": m})
}

func (h *Handler) ListMeasurements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.MeasurementFilter{
		BatchID:          q.Get("batchId"),
		Source:           domain.MeasurementSource(q.Get("source")),
		Classification:   domain.Classification(q.Get("classification")),
		ProcessStep:      q.Get("processStep"),
		ValidationStatus: domain.ValidationStatus(q.Get("status")),
	}
	if raw := q.Get("headsOnly"); raw != "" {
		heads, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "headsOnly must be a boolean")
			return
		}
		filter.HeadsOnly = heads
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
	list, err := h.svc.ListMeasurements(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"measurements": list})
}

func (h *Handler) MeasurementChain(w http.ResponseWriter, r *http.Request) {
	chain, err := h.svc.MeasurementChain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chain": chain})
}

func (h *Handler) SupersedeMeasurement(w http.ResponseWriter, r *http.Request) {
	var req createMeasurementRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, res, err := h.svc.SupersedeMeasurement(r.Context(), chi.URLParam(r, "id"), req.input(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entityResponse("measurement", m, res))
}

func (h *Handler) AttachEvidence(w http.ResponseWriter, r *http.Request) {
	var req evidenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, res, err := h.svc.AttachEvidence(r.Context(), chi.URLParam(r, "id"), req.evidence(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse("measurement", m, res))
}

func (h *Handler) UpdateValidationStatus(w http.ResponseWriter, r *http.Request) {
	var req validationStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, res, err := h.svc.UpdateValidationStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actorFrom(r), req.Override)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse("measurement", m, res))
}
