package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/sources"
)

type syncResponse struct {
	Status  string `json:"status"`
	Synced  int    `json:"synced"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

func sourceErrorStatus(err error) int {
	switch {
	case errors.Is(err, sources.ErrUnknownSource):
		return http.StatusNotFound
	case errors.Is(err, sources.ErrNotConfigured):
		return http.StatusBadRequest
	case errors.Is(err, sources.ErrSyncInProgress):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// handleSync runs one pass synchronously.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := s.deps.Sources.Run(r.Context(), name)
	if err != nil {
		s.logger.Error("Sync failed", zap.String("source", name), zap.Error(err))
		writeJSON(w, sourceErrorStatus(err), statusResponse{Status: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Status: "ok", Synced: res.Synced, Skipped: res.Skipped, Failed: res.Failed})
}

func (s *Server) handleSourceStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Sources.Status(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, sourceErrorStatus(err), statusResponse{Status: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSourceTest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.deps.Sources.Test(r.Context(), name); err != nil {
		status := sourceErrorStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, statusResponse{Status: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
