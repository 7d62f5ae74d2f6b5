package api

import "net/http"

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	embedding, generation := s.backend.Models()
	writeJSON(w, http.StatusOK, map[string]any{
		"models": map[string]string{
			"embedding":  embedding,
			"generation": generation,
		},
		"stats": s.backend.Stats(),
	})
}
