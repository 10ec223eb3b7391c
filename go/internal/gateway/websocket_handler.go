package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/models"
)

// Authenticator resolves the user of a websocket request.
type Authenticator interface {
	AuthenticateRequest(r *http.Request) (models.User, error)
}

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connections *ConnectionManager
	auth        Authenticator
}

func NewWebSocketHandler(cm *ConnectionManager, auth Authenticator) *WebSocketHandler {
	return &WebSocketHandler{
		connections: cm,
		auth:        auth,
	}
}

// HandleRoomConnection serves /ws/room?room_id=...&token=...
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomIDStr := r.URL.Query().Get("room_id")
	if roomIDStr == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room_id format", http.StatusBadRequest)
		return
	}

	user, err := h.auth.AuthenticateRequest(r)
	if err != nil {
		log.Debug().Err(err).Str("room_id", roomIDStr).Msg("websocket authentication failed")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	h.connections.Serve(w, r, user, roomID)
}

func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connections.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
