// Package httpapi exposes the conversation engine over HTTP: JSON routes for
// the synchronous API, server-sent events and websockets for streaming.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mirandol/shoptalk/internal/catalog"
	"github.com/mirandol/shoptalk/internal/convo"
	"github.com/mirandol/shoptalk/internal/observability"
)

var errEmptyBody = errors.New("request body is empty")

// Server wires the engine and catalog into HTTP handlers.
type Server struct {
	engine   *convo.Engine
	catalog  catalog.Store
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewServer(engine *convo.Engine, cat catalog.Store, log *zap.Logger, allowAnyOrigin bool) *Server {
	s := &Server{
		engine:  engine,
		catalog: cat,
		log:     log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if allowAnyOrigin {
		s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/chat", func(r chi.Router) {
			r.Post("/start", s.handleStart)
			r.Post("/message", s.handleMessage)
			r.Post("/message/stream", s.handleMessageStream)
			r.Get("/ws", s.handleChatWS)
			r.Get("/", s.handleListConversations)
			r.Get("/{conversationID}", s.handleGetConversation)
			r.Get("/{conversationID}/products", s.handleConversationProducts)
			r.Post("/{conversationID}/close", s.handleClose)
		})
		r.Route("/products", func(r chi.Router) {
			r.Get("/search", s.handleSearchProducts)
			r.Get("/{productID}", s.handleGetProduct)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

// statusForError maps the engine's error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, convo.ErrConversationNotFound),
		errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, convo.ErrConversationClosed),
		errors.Is(err, convo.ErrConversationAlreadyActive),
		errors.Is(err, convo.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, convo.ErrEmptyMessage), errors.Is(err, errEmptyBody):
		return http.StatusBadRequest
	case errors.Is(err, convo.ErrSynthesisFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
