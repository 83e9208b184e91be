package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/rag"
	"github.com/bull/znatok/internal/settings"
)

// ValidationError reports a rejected request body, field by field.
// A zero Status means 422.
type ValidationError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for f, m := range e.Fields {
		parts = append(parts, f+": "+m)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

type errorResponse struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// writeError answers with the stable user-facing message for err. The
// internal error text goes to the log only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := http.StatusInternalServerError, "Internal server error"

	var verr *ValidationError
	var serr *settings.ValidationError
	switch {
	case errors.As(err, &verr):
		code := verr.Status
		if code == 0 {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, errorResponse{Detail: verr.Message, Fields: verr.Fields})
		return
	case errors.As(err, &serr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "Invalid settings", Fields: serr.Fields})
		return
	case errors.Is(err, rag.ErrEmptyQuestion):
		status, detail = http.StatusBadRequest, "Question is required"
	case errors.Is(err, rag.ErrSearchFailed):
		status, detail = http.StatusInternalServerError, "Search failed"
	case errors.Is(err, rag.ErrGenerationFailed):
		status, detail = http.StatusBadGateway, "AI service unavailable"
	}

	s.logger.Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return &ValidationError{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
			Fields:  map[string]string{"body": err.Error()},
		}
	}
	return nil
}
