package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pcx/internal/adapters/reports"
	"pcx/internal/core"
)

type exportRequest struct {
	Dataset reports.Dataset  `json:"dataset" validate:"required,oneof=batches measurements discrepancies reconciliation mass_balance"`
	Formats []reports.Format `json:"formats" validate:"omitempty,dive,oneof=json csv xlsx"`
	BatchID string           `json:"batchId"`
}

func (h *Handler) MassBalance(w http.ResponseWriter, r *http.Request) {
	mb, err := h.svc.MassBalance(r.Context(), core.MassBalanceScope{BatchID: r.URL.Query().Get("batchId")})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"massBalance": mb})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": sum})
}

func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := h.svc.AuditTrail(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) CreateExport(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusNotFound, "exports not configured")
		return
	}
	var req exportRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.exports.EnqueueExport(r.Context(), reports.ExportInput{
		Dataset:     req.Dataset,
		Formats:     req.Formats,
		BatchID:     req.BatchID,
		RequestedBy: actorFrom(r).ID,
	})
	if errors.Is(err, reports.ErrQueueFull) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) GetExport(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusNotFound, "exports not configured")
		return
	}
	record, ok := h.exports.GetExport(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

// DownloadArtifact streams a finished artifact from the blob store.
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil || h.blobs == nil {
		writeError(w, http.StatusNotFound, "exports not configured")
		return
	}
	record, ok := h.exports.GetExport(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	format := reports.Format(chi.URLParam(r, "format"))
	for _, artifact := range record.Artifacts {
		if artifact.Format != format {
			continue
		}
		info, body, err := h.blobs.Get(r.Context(), artifact.Key)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		defer body.Close()
		w.Header().Set("Content-Type", info.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
		return
	}
	writeError(w, http.StatusNotFound, "artifact not found")
}
