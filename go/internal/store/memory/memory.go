// Package memory is an in-process Store and ChangeFeed. Every write is
// broadcast to the room's subscribers while the store lock is held, so each
// subscription observes changes in commit order.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

const defaultBufferSize = 256

var (
	_ store.Store      = (*Store)(nil)
	_ store.ChangeFeed = (*Store)(nil)
)

type Store struct {
	mu    sync.Mutex
	clock clockwork.Clock
	last  time.Time

	rooms   map[uuid.UUID]models.Room
	players map[uuid.UUID][]models.Player
	tasks   map[uuid.UUID][]models.Task

	playerHub *hub[models.Player]
	taskHub   *hub[models.Task]
}

// New returns an empty store stamping rows with clock.
func New(clock clockwork.Clock) *Store {
	return &Store{
		clock:     clock,
		rooms:     make(map[uuid.UUID]models.Room),
		players:   make(map[uuid.UUID][]models.Player),
		tasks:     make(map[uuid.UUID][]models.Task),
		playerHub: newHub[models.Player](store.TablePlayers, defaultBufferSize),
		taskHub:   newHub[models.Task](store.TableTasks, defaultBufferSize),
	}
}

// now returns a strictly increasing timestamp so creation order is total.
func (s *Store) now() time.Time {
	t := s.clock.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Store) CreateRoom(ctx context.Context, room models.Room) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	if _, exists := s.rooms[room.ID]; exists {
		return models.Room{}, fmt.Errorf("room %s already exists", room.ID)
	}
	if room.Deck == "" {
		room.Deck = models.DefaultDeckID
	}
	room.CreatedAt = s.now()
	s.rooms[room.ID] = room
	return room, nil
}

func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return models.Room{}, fmt.Errorf("room %s: %w", id, store.ErrNotFound)
	}
	return room, nil
}

func (s *Store) ListRooms(ctx context.Context, limit int) ([]models.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.RoomSummary, 0, len(s.rooms))
	for id, room := range s.rooms {
		out = append(out, models.RoomSummary{Room: room, PlayerCount: len(s.players[id])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListPlayers(ctx context.Context, roomID uuid.UUID) ([]models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Player(nil), s.players[roomID]...), nil
}

func (s *Store) UpsertPlayer(ctx context.Context, p models.Player) (models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[p.RoomID]; !ok {
		return models.Player{}, fmt.Errorf("room %s: %w", p.RoomID, store.ErrNotFound)
	}
	p = p.WithVote(p.CurrentVote)

	roster := s.players[p.RoomID]
	for i, existing := range roster {
		if existing.UserID == p.UserID {
			p.JoinedAt = existing.JoinedAt
			roster[i] = p
			s.playerHub.publish(p.RoomID, store.Change[models.Player]{Type: store.EventUpdate, New: ptr(p), Old: ptr(existing)})
			return p, nil
		}
	}
	p.JoinedAt = s.now()
	s.players[p.RoomID] = append(roster, p)
	s.playerHub.publish(p.RoomID, store.Change[models.Player]{Type: store.EventInsert, New: ptr(p)})
	return p, nil
}

func (s *Store) DeletePlayer(ctx context.Context, roomID uuid.UUID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster := s.players[roomID]
	for i, existing := range roster {
		if existing.UserID != userID {
			continue
		}
		roster = append(roster[:i:i], roster[i+1:]...)
		if len(roster) == 0 {
			delete(s.players, roomID)
		} else {
			s.players[roomID] = roster
		}
		s.playerHub.publish(roomID, store.Change[models.Player]{Type: store.EventDelete, Old: ptr(existing)})
		return nil
	}
	return nil
}

func (s *Store) SetVote(ctx context.Context, roomID uuid.UUID, userID string, vote *string) (models.Player, error) {
	return s.updatePlayer(roomID, userID, func(p models.Player) models.Player {
		return p.WithVote(vote)
	})
}

func (s *Store) UpdatePlayerProfile(ctx context.Context, roomID uuid.UUID, userID, name, avatarURL string) (models.Player, error) {
	return s.updatePlayer(roomID, userID, func(p models.Player) models.Player {
		p.Name = name
		p.AvatarURL = avatarURL
		return p
	})
}

func (s *Store) updatePlayer(roomID uuid.UUID, userID string, fn func(models.Player) models.Player) (models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster := s.players[roomID]
	for i, existing := range roster {
		if existing.UserID == userID {
			updated := fn(existing)
			roster[i] = updated
			s.playerHub.publish(roomID, store.Change[models.Player]{Type: store.EventUpdate, New: ptr(updated), Old: ptr(existing)})
			return updated, nil
		}
	}
	return models.Player{}, fmt.Errorf("player %s in room %s: %w", userID, roomID, store.ErrNotFound)
}

func (s *Store) ResetVotes(ctx context.Context, roomID uuid.UUID) ([]models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster := s.players[roomID]
	out := make([]models.Player, len(roster))
	for i, existing := range roster {
		reset := existing.WithVote(nil)
		roster[i] = reset
		out[i] = reset
		s.playerHub.publish(roomID, store.Change[models.Player]{Type: store.EventUpdate, New: ptr(reset), Old: ptr(existing)})
	}
	return out, nil
}

func (s *Store) ListTasks(ctx context.Context, roomID uuid.UUID) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Task(nil), s.tasks[roomID]...), nil
}

func (s *Store) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[t.RoomID]; !ok {
		return models.Task{}, fmt.Errorf("room %s: %w", t.RoomID, store.ErrNotFound)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	t.CreatedAt = s.now()
	s.tasks[t.RoomID] = append(s.tasks[t.RoomID], t)
	s.taskHub.publish(t.RoomID, store.Change[models.Task]{Type: store.EventInsert, New: ptr(t)})
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, id uuid.UUID, upd store.TaskUpdate) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for roomID, tasks := range s.tasks {
		for i, existing := range tasks {
			if existing.ID != id {
				continue
			}
			updated := existing
			if upd.Estimate != nil {
				updated.Estimate = ptr(*upd.Estimate)
			}
			if upd.Status != nil {
				updated.Status = *upd.Status
			}
			tasks[i] = updated
			s.taskHub.publish(roomID, store.Change[models.Task]{Type: store.EventUpdate, New: ptr(updated), Old: ptr(existing)})
			return updated, nil
		}
	}
	return models.Task{}, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
}

func (s *Store) SubscribePlayers(ctx context.Context, roomID uuid.UUID) (store.Subscription[models.Player], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.playerHub.subscribe(roomID)
	return store.NewSubscription[models.Player](ch, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.playerHub.unsubscribe(roomID, ch)
		return nil
	}), nil
}

func (s *Store) SubscribeTasks(ctx context.Context, roomID uuid.UUID) (store.Subscription[models.Task], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.taskHub.subscribe(roomID)
	return store.NewSubscription[models.Task](ch, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.taskHub.unsubscribe(roomID, ch)
		return nil
	}), nil
}

// SubscriberCount returns the number of open subscriptions for a room.
func (s *Store) SubscriberCount(roomID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.playerHub.count(roomID) + s.taskHub.count(roomID)
}

func ptr[T any](v T) *T {
	return &v
}

// hub fans changes out to per-room subscriber channels. Callers hold Store.mu.
type hub[T any] struct {
	table string
	size  int
	subs  map[uuid.UUID]map[chan store.Change[T]]struct{}
}

func newHub[T any](table string, size int) *hub[T] {
	return &hub[T]{table: table, size: size, subs: make(map[uuid.UUID]map[chan store.Change[T]]struct{})}
}

func (h *hub[T]) subscribe(roomID uuid.UUID) chan store.Change[T] {
	ch := make(chan store.Change[T], h.size)
	if h.subs[roomID] == nil {
		h.subs[roomID] = make(map[chan store.Change[T]]struct{})
	}
	h.subs[roomID][ch] = struct{}{}
	return ch
}

func (h *hub[T]) unsubscribe(roomID uuid.UUID, ch chan store.Change[T]) {
	subs, ok := h.subs[roomID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(h.subs, roomID)
	}
}

// publish never blocks. A subscriber whose buffer is full is closed so the
// consumer learns its stream is incomplete.
func (h *hub[T]) publish(roomID uuid.UUID, change store.Change[T]) {
	for ch := range h.subs[roomID] {
		select {
		case ch <- change:
		default:
			log.Warn().
				Str("room_id", roomID.String()).
				Str("table", h.table).
				Msg("subscriber buffer full, closing subscription")
			h.unsubscribe(roomID, ch)
		}
	}
}

func (h *hub[T]) count(roomID uuid.UUID) int {
	return len(h.subs[roomID])
}
