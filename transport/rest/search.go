package rest

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/poiesic/studyrag/retrieval"
)

const defaultSearchTopK = 5

type searchRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

type searchResult struct {
	Content         string  `json:"content"`
	Filename        string  `json:"filename"`
	SimilarityScore float64 `json:"similarity_score"`
	ChunkIndex      int     `json:"chunk_index"`
}

type searchResponse struct {
	Query        string         `json:"query"`
	Results      []searchResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}
	topK := defaultSearchTopK
	if req.TopK != nil {
		if *req.TopK < 1 {
			writeError(w, http.StatusBadRequest, "top_k must be at least 1")
			return
		}
		topK = *req.TopK
	}

	results, err := s.services.Search.Retrieve(r.Context(), req.Query, topK)
	if err != nil && !errors.Is(err, retrieval.ErrNoRelevantResults) {
		s.logger.Error("search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Error searching documents: "+err.Error())
		return
	}

	out := make([]searchResult, len(results))
	for i, res := range results {
		filename := res.Metadata.Filename
		if filename == "" {
			filename = "Unknown"
		}
		out[i] = searchResult{
			Content:         res.Content,
			Filename:        filename,
			SimilarityScore: roundTo(float64(res.RelevanceScore), 4),
			ChunkIndex:      res.Metadata.ChunkIndex,
		}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:        req.Query,
		Results:      out,
		TotalResults: len(out),
	})
}

func (s *Server) searchStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.services.Index.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error reading index: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_chunks": total,
		"status":       "ready",
	})
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
