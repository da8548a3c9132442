package rest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/studyrag/extract"
	"github.com/poiesic/studyrag/ingestion"
	"github.com/poiesic/studyrag/storage"
)

type uploadResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
}

type documentResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	UploadDate time.Time `json:"upload_date"`
	ChunkCount int       `json:"chunk_count"`
	FileSize   int64     `json:"file_size"`
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "A file must be provided in the \"file\" form field")
		return
	}
	defer file.Close()

	if !extract.Supported(header.Filename) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File type %s not supported. Allowed: %s",
			extract.Extension(header.Filename), strings.Join(extract.SupportedExtensions(), ", ")))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Error reading upload: %v", err))
		return
	}

	doc, err := s.services.Ingest.Ingest(r.Context(), header.Filename, data)
	switch {
	case errors.Is(err, ingestion.ErrEmptyDocument):
		writeError(w, http.StatusBadRequest, "Could not extract text from document")
		return
	case errors.Is(err, extract.ErrUnsupportedType), errors.Is(err, ingestion.ErrInvalidFilename):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("document upload failed", "filename", header.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing document: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		ChunkCount: doc.ChunkCount,
		Message:    fmt.Sprintf("Document uploaded and indexed successfully with %d chunks", doc.ChunkCount),
	})
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.services.Documents.List(r.Context())
	if err != nil {
		s.logger.Error("listing documents failed", "err", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error listing documents: %v", err))
		return
	}
	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = documentResponse{
			ID:         d.ID,
			Filename:   d.Filename,
			UploadDate: d.UploadedAt,
			ChunkCount: d.ChunkCount,
			FileSize:   d.FileSize,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.services.Documents.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		UploadDate: doc.UploadedAt,
		ChunkCount: doc.ChunkCount,
		FileSize:   doc.FileSize,
	})
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existed, err := s.services.Ingest.Delete(r.Context(), id)
	if err != nil {
		s.logger.Error("deleting document failed", "document_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error deleting document: %v", err))
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Document %s deleted successfully", id)})
}
