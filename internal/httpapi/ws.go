package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mirandol/shoptalk/internal/stream"
)

// handleChatWS serves streamed turns over one websocket connection. The
// client sends turn requests as JSON; each request is answered by the full
// event sequence for that turn, ending with a terminal frame. Turns are
// processed one at a time per connection.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var req turnRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		events, err := s.engine.SubmitTurnStreaming(r.Context(), req.ConversationID, req.Text)
		if err != nil {
			// Precondition failures terminate the turn, not the connection.
			if werr := conn.WriteJSON(stream.Event{Type: stream.EventError, Error: err.Error()}); werr != nil {
				return
			}
			continue
		}

		for ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Warn("websocket write failed", zap.Error(err))
				// Drain so the engine's turn goroutine can finish and
				// persist.
				for range events {
				}
				return
			}
		}
	}
}
