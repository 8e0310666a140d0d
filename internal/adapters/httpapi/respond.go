package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"pcx/internal/blob"
	"pcx/internal/core"
	"pcx/pkg/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		verr domain.ValidationError
		nerr domain.NotFoundError
		rerr domain.RuleViolationError
	)
	switch {
	case errors.As(err, &verr):
		body := map[string]any{"error": verr.Error()}
		if verr.Field != "" {
			body["fields"] = map[string]string{verr.Field: verr.Message}
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &nerr):
		writeError(w, http.StatusNotFound, nerr.Error())
	case errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, "artifact not found")
	case errors.As(err, &rerr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      rerr.Error(),
			"violations": rerr.Result.Violations,
		})
	default:
		if h.logger != nil {
			h.logger.Error("request failed", "error", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a bounded JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body required")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		}
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationFields(verrs),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func validationFields(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// actorFrom reads the mocked identity headers.
func actorFrom(r *http.Request) core.Actor {
	actor := core.SystemActor
	if id := strings.TrimSpace(r.Header.Get(HeaderActor)); id != "" {
		actor.ID = id
	}
	if role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole))); role != "" {
		actor.Role = role
	}
	return actor
}

// parseTime accepts RFC 3339 timestamps or bare dates.
func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, domain.Invalid("date", "cannot parse %q", value)
}

// entityResponse wraps a mutation result with any non-blocking violations.
func entityResponse(key string, entity any, res domain.Result) map[string]any {
	body := map[string]any{key: entity}
	if len(res.Violations) > 0 {
		body["violations"] = res.Violations
	}
	return body
}
