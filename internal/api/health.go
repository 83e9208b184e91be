package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	VectorStore string `json:"vector_store"`
	Timestamp   string `json:"timestamp"`
}

// handleHealth checks vector store connectivity and answers 503 when it is
// unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	response := HealthResponse{
		Service:   "znatok-backend",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if s.deps.Health != nil {
		if err := s.deps.Health.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.VectorStore = "disconnected"
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
	}

	response.Status = "ok"
	response.VectorStore = "connected"
	writeJSON(w, http.StatusOK, response)
}
