package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/session"
)

// RoomEnterer opens a participant session in a room.
type RoomEnterer interface {
	EnterRoom(ctx context.Context, roomID uuid.UUID, user models.User) (*session.Session, error)
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	ExitTimeout     time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		ExitTimeout:     5 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// ConnectionStats summarizes the open connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// ConnectionManager tracks the websocket connections of every room. Each
// connection drives its own session.
type ConnectionManager struct {
	rooms  map[uuid.UUID]map[*Connection]struct{}
	mu     sync.RWMutex
	active sync.WaitGroup

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock
	enterer  RoomEnterer
}

func NewConnectionManager(enterer RoomEnterer, config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	return &ConnectionManager{
		rooms: make(map[uuid.UUID]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		clock:   clock,
		enterer: enterer,
	}
}

// Serve upgrades the request and runs the connection until the client goes
// away. The session is exited before Serve returns.
func (cm *ConnectionManager) Serve(w http.ResponseWriter, r *http.Request, user models.User, roomID uuid.UUID) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()
	cm.active.Add(1)
	defer cm.active.Done()

	sess, err := cm.enterer.EnterRoom(r.Context(), roomID, user)
	if err != nil {
		cm.reject(conn, roomID, err)
		return
	}

	c := &Connection{
		ID:          uuid.NewString(),
		User:        user,
		RoomID:      roomID,
		conn:        conn,
		session:     sess,
		send:        make(chan Message, 16),
		writerDone:  make(chan struct{}),
		manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	cm.register(c)
	defer cm.unregister(c)

	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", user.ID).
		Str("room_id", roomID.String()).
		Msg("WebSocket connection established")

	go c.writePump(sess.Updates())
	c.readPump()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), cm.config.ExitTimeout)
	sess.Exit(ctx)
	cancel()
	<-c.writerDone
}

func (cm *ConnectionManager) reject(conn *websocket.Conn, roomID uuid.UUID, err error) {
	msg := Message{Type: MessageError, Error: err.Error()}
	if errors.Is(err, session.ErrRoomNotFound) {
		msg = Message{Type: MessageRoomNotFound}
	}
	log.Warn().Err(err).Str("room_id", roomID.String()).Msg("enter room failed")

	data, mErr := json.Marshal(msg)
	if mErr != nil {
		return
	}
	deadline := cm.clock.Now().Add(cm.config.WriteTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(msg.Type)), deadline)
}

func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.rooms[conn.RoomID] == nil {
		cm.rooms[conn.RoomID] = make(map[*Connection]struct{})
	}
	cm.rooms[conn.RoomID][conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID.String()).
		Int("total_connections", len(cm.rooms[conn.RoomID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.rooms[conn.RoomID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.rooms, conn.RoomID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.User.ID).
		Str("room_id", conn.RoomID.String()).
		Msg("connection unregistered")
}

// Close disconnects every client and waits for their sessions to exit.
func (cm *ConnectionManager) Close(ctx context.Context) {
	cm.mu.RLock()
	for _, connections := range cm.rooms {
		for c := range connections {
			_ = c.conn.Close()
		}
	}
	cm.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		cm.active.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("timed out waiting for connections to close")
	}
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRooms:     len(cm.rooms),
		RoomConnections: make(map[string]int, len(cm.rooms)),
	}
	for roomID, connections := range cm.rooms {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[roomID.String()] = len(connections)
	}
	return stats
}
