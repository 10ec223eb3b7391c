package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

type Config struct {
	// WriteTimeout bounds each background store write.
	WriteTimeout time.Duration
	// InboxSize is the buffer of the session's reducer queue.
	InboxSize int
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		InboxSize:    64,
	}
}

// Synchronizer opens sessions against a store and its change feed.
type Synchronizer struct {
	store store.Store
	feed  store.ChangeFeed
	decks *models.DeckSet
	cfg   Config
}

func NewSynchronizer(st store.Store, feed store.ChangeFeed, decks *models.DeckSet, cfg Config) *Synchronizer {
	return &Synchronizer{
		store: st,
		feed:  feed,
		decks: decks,
		cfg:   cfg,
	}
}

// EnterRoom registers user in the room and returns a running session.
// The subscriptions are opened before the snapshot is read, so a change
// committed in between is delivered rather than lost. A missing room is
// terminal; every other failure is logged and the session continues with
// what it has.
func (s *Synchronizer) EnterRoom(ctx context.Context, roomID uuid.UUID, user models.User) (*Session, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
		}
		return nil, fmt.Errorf("fetch room %s: %w", roomID, err)
	}

	logger := log.With().
		Str("room_id", roomID.String()).
		Str("user_id", user.ID).
		Logger()

	sess := newSession(room, user, s.decks.Get(room.Deck), s.store, s.cfg, logger)

	sess.players, err = s.feed.SubscribePlayers(ctx, roomID)
	if err != nil {
		logger.Error().Err(err).Msg("subscribe to players failed, continuing without live roster")
		sess.players = nil
	}
	sess.tasks, err = s.feed.SubscribeTasks(ctx, roomID)
	if err != nil {
		logger.Error().Err(err).Msg("subscribe to tasks failed, continuing without live tasks")
		sess.tasks = nil
	}

	players, err := s.store.ListPlayers(ctx, roomID)
	if err != nil {
		logger.Error().Err(err).Msg("load players failed")
	}
	tasks, err := s.store.ListTasks(ctx, roomID)
	if err != nil {
		logger.Error().Err(err).Msg("load tasks failed")
	}
	sess.proj.resetPlayers(players)
	sess.proj.resetTasks(tasks)

	self, err := s.store.UpsertPlayer(ctx, models.Player{
		RoomID:    roomID,
		UserID:    user.ID,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	})
	if err != nil {
		logger.Error().Err(err).Msg("register player failed")
	} else {
		sess.proj.upsertPlayer(self)
	}

	if err := ctx.Err(); err != nil {
		sess.release(context.WithoutCancel(ctx))
		return nil, err
	}

	logger.Info().
		Int("players", len(sess.proj.players)).
		Int("tasks", len(sess.proj.tasks)).
		Msg("entered room")

	sess.start()
	return sess, nil
}
