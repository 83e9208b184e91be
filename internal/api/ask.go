package api

import (
	"net/http"

	"github.com/bull/znatok/internal/rag"
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req rag.AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.deps.Asker.Ask(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
