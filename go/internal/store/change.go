package store

import (
	"encoding/json"
	"fmt"
	"sync"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Table names carried by change events.
const (
	TablePlayers = "players"
	TableTasks   = "tasks"
)

// Change is a single row change. New is set for inserts and updates,
// Old for deletes (and for updates when the backend provides it).
type Change[T any] struct {
	Type EventType
	New  *T
	Old  *T
}

// Subscription delivers changes in commit order until closed.
type Subscription[T any] interface {
	Events() <-chan Change[T]
	Close() error
}

// NewSubscription wraps a channel and its release function.
// closeFn runs at most once.
func NewSubscription[T any](events <-chan Change[T], closeFn func() error) Subscription[T] {
	return &subscription[T]{events: events, closeFn: closeFn}
}

type subscription[T any] struct {
	events  <-chan Change[T]
	closeFn func() error
	once    sync.Once
	err     error
}

func (s *subscription[T]) Events() <-chan Change[T] {
	return s.events
}

func (s *subscription[T]) Close() error {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
	})
	return s.err
}

// Envelope is the wire form of a change, as written to the outbox and the bus.
type Envelope struct {
	ID     string          `json:"id"`
	RoomID string          `json:"room_id"`
	Table  string          `json:"table"`
	Type   EventType       `json:"type"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
}

// DecodeChange converts an envelope into a typed change.
func DecodeChange[T any](env Envelope) (Change[T], error) {
	ch := Change[T]{Type: env.Type}
	switch env.Type {
	case EventInsert, EventUpdate, EventDelete:
	default:
		return ch, fmt.Errorf("unknown event type %q", env.Type)
	}
	if len(env.New) > 0 && string(env.New) != "null" {
		var row T
		if err := json.Unmarshal(env.New, &row); err != nil {
			return ch, fmt.Errorf("decode new row: %w", err)
		}
		ch.New = &row
	}
	if len(env.Old) > 0 && string(env.Old) != "null" {
		var row T
		if err := json.Unmarshal(env.Old, &row); err != nil {
			return ch, fmt.Errorf("decode old row: %w", err)
		}
		ch.Old = &row
	}
	if env.Type == EventDelete && ch.Old == nil {
		return ch, fmt.Errorf("delete event %s has no old row", env.ID)
	}
	if env.Type != EventDelete && ch.New == nil {
		return ch, fmt.Errorf("%s event %s has no new row", env.Type, env.ID)
	}
	return ch, nil
}
