package http

import (
	"net/http"
	"strconv"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// ingestRequest is the body of POST /api/ingest.
type ingestRequest struct {
	FileName string `json:"fileName"`
}

type ingestResponse struct {
	Success    bool  `json:"success"`
	DocumentID int64 `json:"documentId,omitempty"`
}

// handleIngest registers an uploaded file and triggers vectorization.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	doc, err := s.ingest.Ingest(r.Context(), req.FileName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Success: true, DocumentID: doc.ID})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errs.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	docs, err := s.ingest.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := s.ingest.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRetrigger(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := s.ingest.Retrigger(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func documentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.InvalidInput("document id must be a positive integer")
	}
	return id, nil
}
