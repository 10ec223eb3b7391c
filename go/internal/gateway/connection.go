package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/session"
)

// Connection is one client's websocket and the session it drives.
type Connection struct {
	ID          string
	User        models.User
	RoomID      uuid.UUID
	ConnectedAt time.Time

	conn       *websocket.Conn
	session    Participant
	send       chan Message
	writerDone chan struct{}
	manager    *ConnectionManager
}

// writePump owns every write to the socket. It returns when updates is
// closed or a write fails.
func (c *Connection) writePump(updates <-chan session.State) {
	cfg := c.manager.config
	ticker := c.manager.clock.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
	}()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				c.setWriteDeadline()
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			masked := maskVotes(st)
			if err := c.write(Message{Type: MessageState, State: &masked}); err != nil {
				c.closeOnWriteError(err)
				return
			}

		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.closeOnWriteError(err)
				return
			}

		case <-ticker.Chan():
			c.setWriteDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeOnWriteError(err)
				return
			}
		}
	}
}

func (c *Connection) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.setWriteDeadline()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) setWriteDeadline() {
	_ = c.conn.SetWriteDeadline(c.manager.clock.Now().Add(c.manager.config.WriteTimeout))
}

// closeOnWriteError unblocks readPump so the session is exited.
func (c *Connection) closeOnWriteError(err error) {
	log.Error().
		Err(err).
		Str("connection_id", c.ID).
		Msg("failed to write to WebSocket")
	_ = c.conn.Close()
}

func (c *Connection) readPump() {
	cfg := c.manager.config
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(c.manager.clock.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(c.manager.clock.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(c.manager.clock.Now().Add(cfg.ReadTimeout))
		c.handleClientMessage(data)
	}
}

func (c *Connection) handleClientMessage(data []byte) {
	var in Intent
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply(Message{Type: MessageError, Error: "malformed message"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.manager.config.WriteTimeout)
	defer cancel()
	if err := apply(ctx, c.session, in); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("event_type", string(in.Type)).
			Msg("intent rejected")
		c.reply(Message{Type: MessageError, Intent: in.Type, Error: err.Error()})
	}
}

func (c *Connection) reply(msg Message) {
	select {
	case c.send <- msg:
	case <-c.writerDone:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping reply")
	}
}
