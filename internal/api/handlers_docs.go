package api

import (
	"net/http"
	"net/url"

	"github.com/dgallion1/manualbot/internal/store"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.backend.ListDocuments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []store.DocumentSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleDeleteDocument removes a document with all of its chunks. Deleting an
// unknown document still reports success.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		jsonError(w, "invalid document name", http.StatusBadRequest)
		return
	}
	if err := s.backend.DeleteDocument(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":       "document deleted",
		"document_name": name,
	})
}
