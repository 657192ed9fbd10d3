package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mirandol/shoptalk/internal/convo"
)

type startRequest struct {
	UserID string `json:"user_id"`
}

type turnRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.UserID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	res, err := s.engine.Start(r.Context(), req.UserID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	res, err := s.engine.SubmitTurn(r.Context(), req.ConversationID, req.Text)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleMessageStream serves one streamed turn as server-sent events. Each
// event is one JSON frame on a "data:" line; the stream ends after the
// terminal frame.
func (s *Server) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	events, err := s.engine.SubmitTurnStreaming(r.Context(), req.ConversationID, req.Text)
	if err != nil {
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.log.Error("encode stream event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; the engine persists the partial turn on its
			// own once the request context cancels.
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	conv, err := s.engine.End(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversation": conv})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, msgs, err := s.engine.Conversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     msgs,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id query parameter is required"})
		return
	}
	convs, err := s.engine.Conversations(r.Context(), userID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if convs == nil {
		convs = []convo.Conversation{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleConversationProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.engine.DiscussedProducts(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"products": products})
}
