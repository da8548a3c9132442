package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/studyrag/core"
)

type chatRequest struct {
	Question       string `json:"question"`
	Mode           string `json:"mode,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question cannot be empty")
		return
	}
	mode, err := core.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid mode %q. Use qa, summary or quiz", req.Mode))
		return
	}

	answer := s.services.Answers.Query(r.Context(), req.Question, mode, req.ConversationID)
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, ok, err := s.services.Answers.History(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error reading conversation: "+err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existed, err := s.services.Answers.DeleteHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error deleting conversation: "+err.Error())
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Conversation %s deleted", id)})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.services.Answers.Conversations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error listing conversations: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}
