package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/round"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

// State is the room as projected for one participant.
type State struct {
	Room        models.Room     `json:"room"`
	UserID      string          `json:"user_id"`
	Deck        models.Deck     `json:"deck"`
	Players     []models.Player `json:"players"`
	Tasks       []models.Task   `json:"tasks"`
	CurrentTask *models.Task    `json:"current_task,omitempty"`
	Phase       round.Phase     `json:"phase"`
	Selected    *string         `json:"selected,omitempty"`
	Average     *string         `json:"average,omitempty"`
	Tally       round.Tally     `json:"tally"`
	AllVoted    bool            `json:"all_voted"`
	// Live is false once either subscription is unavailable.
	Live bool `json:"live"`
}

// Session is one participant's presence in a room. A single goroutine owns
// the projection and the round machine; intents, change events and write
// completions are all applied by it, one at a time.
type Session struct {
	room  models.Room
	user  models.User
	deck  models.Deck
	store store.Store
	cfg   Config
	log   zerolog.Logger

	players store.Subscription[models.Player]
	tasks   store.Subscription[models.Task]

	// owned by run
	proj        *projection
	machine     *round.Machine
	livePlayers bool
	liveTasks   bool

	inbox   chan func()
	updates chan State
	latest  atomic.Pointer[State]

	quit     chan struct{}
	done     chan struct{}
	exitOnce sync.Once

	writes       sync.WaitGroup
	lastWrite    chan struct{}
	writeCtx     context.Context
	cancelWrites context.CancelFunc
}

func newSession(room models.Room, user models.User, deck models.Deck, st store.Store, cfg Config, logger zerolog.Logger) *Session {
	writeCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		room:         room,
		user:         user,
		deck:         deck,
		store:        st,
		cfg:          cfg,
		log:          logger,
		proj:         newProjection(room.ID),
		machine:      round.NewMachine(),
		inbox:        make(chan func(), cfg.InboxSize),
		updates:      make(chan State, 1),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		writeCtx:     writeCtx,
		cancelWrites: cancel,
	}
}

func (s *Session) Room() models.Room {
	return s.room
}

func (s *Session) User() models.User {
	return s.user
}

// State returns the latest projected state.
func (s *Session) State() State {
	return *s.latest.Load()
}

// Updates delivers the latest state after every change. Intermediate states
// may be skipped. The channel is closed by Exit.
func (s *Session) Updates() <-chan State {
	return s.updates
}

func (s *Session) start() {
	s.livePlayers = s.players != nil
	s.liveTasks = s.tasks != nil
	s.publish()
	go s.run()
}

func (s *Session) run() {
	defer close(s.done)

	var playerEvents <-chan store.Change[models.Player]
	if s.players != nil {
		playerEvents = s.players.Events()
	}
	var taskEvents <-chan store.Change[models.Task]
	if s.tasks != nil {
		taskEvents = s.tasks.Events()
	}

	for {
		select {
		case <-s.quit:
			return
		case ch, ok := <-playerEvents:
			if !ok {
				playerEvents = nil
				s.livePlayers = false
				s.log.Warn().Msg("player stream closed, falling back to snapshots")
				s.reloadPlayers()
				break
			}
			s.proj.applyPlayer(ch)
			if s.machine.FollowNewRound(s.proj.players) {
				s.log.Debug().Msg("votes cleared by another participant")
			}
		case ch, ok := <-taskEvents:
			if !ok {
				taskEvents = nil
				s.liveTasks = false
				s.log.Warn().Msg("task stream closed, falling back to snapshots")
				s.reloadTasks()
				break
			}
			s.applyTask(ch)
		case fn := <-s.inbox:
			fn()
		}
		s.publish()
	}
}

func (s *Session) applyTask(ch store.Change[models.Task]) {
	prev, applied := s.proj.applyTask(ch)
	if !applied {
		return
	}
	current, ok := s.machine.CurrentTask()
	if !ok || current != ch.New.ID || ch.New.Estimate == nil {
		return
	}
	// a repeat of the stored estimate only counts once this round is fully voted
	if !estimateChanged(prev, ch.New) && !round.AllVoted(s.proj.players) {
		return
	}
	if s.machine.FollowReveal(*ch.New.Estimate, s.proj.players) {
		s.log.Debug().Str("task_id", current.String()).Msg("round revealed by another participant")
	}
}

func estimateChanged(prev, next *models.Task) bool {
	if next.Estimate == nil {
		return false
	}
	return prev == nil || prev.Estimate == nil || *prev.Estimate != *next.Estimate
}

func (s *Session) publish() {
	st := s.buildState()
	s.latest.Store(&st)
	select {
	case s.updates <- st:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- st
	}
}

func (s *Session) buildState() State {
	players := s.proj.snapshotPlayers()
	st := State{
		Room:     s.room,
		UserID:   s.user.ID,
		Deck:     s.deck,
		Players:  players,
		Tasks:    s.proj.snapshotTasks(),
		Phase:    s.machine.Phase(),
		Tally:    round.Count(players),
		AllVoted: round.AllVoted(players),
		Live:     s.livePlayers && s.liveTasks,
	}
	if id, ok := s.machine.CurrentTask(); ok {
		if t, ok := s.proj.task(id); ok {
			st.CurrentTask = &t
		}
	}
	if v, ok := s.machine.Selected(); ok {
		st.Selected = &v
	}
	if est, ok := s.machine.Average(); ok {
		avg := est.String()
		st.Average = &avg
	}
	return st
}

// do runs fn on the session goroutine and returns its result. fn must not
// block: store calls go through dispatch.
func (s *Session) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- func() {
		err := fn()
		s.publish()
		reply <- err
	}:
	case <-s.quit:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch runs a store call in the background. Calls of one session reach
// the store in dispatch order. Failures are logged and dropped. On success
// the returned function, if any, is applied by the session goroutine.
// Only the session goroutine may call dispatch.
func (s *Session) dispatch(op string, call func(ctx context.Context) (func(), error)) {
	prev := s.lastWrite
	done := make(chan struct{})
	s.lastWrite = done

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		ctx, cancel := context.WithTimeout(s.writeCtx, s.cfg.WriteTimeout)
		defer cancel()

		apply, err := call(ctx)
		if err != nil {
			s.log.Error().Err(err).Str("op", op).Msg("store call failed")
			return
		}
		if apply == nil {
			return
		}
		select {
		case s.inbox <- apply:
		case <-s.done:
		}
	}()
}

// execute applies commands to the projection and issues the store writes.
// While a subscription is live its echo events are authoritative, so write
// results only land in the projection when the stream is gone.
func (s *Session) execute(cmds []round.Command) {
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case round.ResetVotes:
			s.proj.clearVotes()
			s.dispatch("reset_votes", func(ctx context.Context) (func(), error) {
				rows, err := s.store.ResetVotes(ctx, s.room.ID)
				if err != nil {
					return nil, err
				}
				return func() { s.confirmPlayers(rows...) }, nil
			})

		case round.SetVote:
			vote := c.Value
			if self, ok := s.proj.player(s.user.ID); ok {
				s.proj.upsertPlayer(self.WithVote(&vote))
			}
			s.dispatch("set_vote", func(ctx context.Context) (func(), error) {
				row, err := s.store.SetVote(ctx, s.room.ID, s.user.ID, &vote)
				if err != nil {
					return nil, err
				}
				return func() { s.confirmPlayers(row) }, nil
			})

		case round.SaveEstimate:
			estimate := c.Estimate
			upd := store.TaskUpdate{Estimate: &estimate}
			if c.Complete {
				status := models.TaskStatusCompleted
				upd.Status = &status
			}
			if t, ok := s.proj.task(c.TaskID); ok {
				t.Estimate = &estimate
				if upd.Status != nil {
					t.Status = *upd.Status
				}
				s.proj.upsertTask(t)
			}
			taskID := c.TaskID
			s.dispatch("save_estimate", func(ctx context.Context) (func(), error) {
				row, err := s.store.UpdateTask(ctx, taskID, upd)
				if err != nil {
					return nil, err
				}
				return func() { s.confirmTask(row) }, nil
			})

		default:
			s.log.Error().Str("command", fmt.Sprintf("%T", cmd)).Msg("unknown round command")
		}
	}
}

func (s *Session) confirmPlayers(rows ...models.Player) {
	if s.livePlayers {
		return
	}
	for _, row := range rows {
		s.proj.upsertPlayer(row)
	}
}

func (s *Session) confirmTask(row models.Task) {
	if s.liveTasks {
		return
	}
	s.proj.upsertTask(row)
}

func (s *Session) reloadPlayers() {
	s.dispatch("reload_players", func(ctx context.Context) (func(), error) {
		rows, err := s.store.ListPlayers(ctx, s.room.ID)
		if err != nil {
			return nil, err
		}
		return func() { s.proj.resetPlayers(rows) }, nil
	})
}

func (s *Session) reloadTasks() {
	s.dispatch("reload_tasks", func(ctx context.Context) (func(), error) {
		rows, err := s.store.ListTasks(ctx, s.room.ID)
		if err != nil {
			return nil, err
		}
		return func() { s.proj.resetTasks(rows) }, nil
	})
}

// CastVote picks a card for the local player.
func (s *Session) CastVote(ctx context.Context, value string) error {
	return s.do(ctx, func() error {
		cmds, err := s.machine.CastVote(value, s.deck)
		if err != nil {
			return err
		}
		s.execute(cmds)
		return nil
	})
}

// Reveal shows all votes and saves the average onto the current task.
func (s *Session) Reveal(ctx context.Context) error {
	return s.do(ctx, func() error {
		cmds, err := s.machine.Reveal(s.proj.players)
		if err != nil {
			return err
		}
		s.execute(cmds)
		return nil
	})
}

// NewRound clears every vote in the room.
func (s *Session) NewRound(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.execute(s.machine.NewRound())
		return nil
	})
}

// SaveEstimate stores the revealed average again and completes the task.
func (s *Session) SaveEstimate(ctx context.Context) error {
	return s.do(ctx, func() error {
		cmds, err := s.machine.SaveEstimate()
		if err != nil {
			return err
		}
		s.execute(cmds)
		return nil
	})
}

// SelectTask makes id the current task and starts a fresh round on it.
func (s *Session) SelectTask(ctx context.Context, id uuid.UUID) error {
	return s.do(ctx, func() error {
		if _, ok := s.proj.task(id); !ok {
			return fmt.Errorf("%w: %s is not in this room", ErrInvalidTask, id)
		}
		s.execute(s.machine.SelectTask(id))
		return nil
	})
}

// CreateTask adds a task to the room and selects it once stored.
func (s *Session) CreateTask(ctx context.Context, title, description string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	task := models.Task{
		ID:          uuid.New(),
		RoomID:      s.room.ID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      models.TaskStatusPending,
	}
	return s.do(ctx, func() error {
		s.dispatch("create_task", func(ctx context.Context) (func(), error) {
			created, err := s.store.CreateTask(ctx, task)
			if err != nil {
				return nil, err
			}
			return func() {
				if _, ok := s.proj.task(created.ID); !ok {
					s.proj.upsertTask(created)
				}
				s.execute(s.machine.SelectTask(created.ID))
			}, nil
		})
		return nil
	})
}

// SetProfile changes the local player's display name and avatar.
func (s *Session) SetProfile(ctx context.Context, name, avatarURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	return s.do(ctx, func() error {
		if self, ok := s.proj.player(s.user.ID); ok {
			if avatarURL == "" {
				avatarURL = self.AvatarURL
			}
			self.Name = name
			self.AvatarURL = avatarURL
			s.proj.upsertPlayer(self)
		}
		s.dispatch("update_profile", func(ctx context.Context) (func(), error) {
			row, err := s.store.UpdatePlayerProfile(ctx, s.room.ID, s.user.ID, name, avatarURL)
			if err != nil {
				return nil, err
			}
			return func() { s.confirmPlayers(row) }, nil
		})
		return nil
	})
}

// SelectCharacter sets the local player's profile from a preset character.
func (s *Session) SelectCharacter(ctx context.Context, characterID string) error {
	c, ok := models.CharacterByID(characterID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCharacter, characterID)
	}
	return s.SetProfile(ctx, c.Name, c.AvatarURL)
}

// Exit removes the local player from the room and releases the
// subscriptions. It may be called any number of times.
func (s *Session) Exit(ctx context.Context) {
	s.exitOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.waitWrites(ctx)
		s.release(ctx)
		close(s.updates)
		s.log.Info().Msg("left room")
	})
}

func (s *Session) waitWrites(ctx context.Context) {
	idle := make(chan struct{})
	go func() {
		s.writes.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		s.log.Warn().Msg("cancelling in-flight store calls")
		s.cancelWrites()
		<-idle
	}
}

func (s *Session) release(ctx context.Context) {
	s.cancelWrites()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.store.DeletePlayer(ctx, s.room.ID, s.user.ID); err != nil {
		s.log.Error().Err(err).Msg("remove player failed")
	}
	if s.players != nil {
		if err := s.players.Close(); err != nil {
			s.log.Error().Err(err).Msg("close player subscription")
		}
	}
	if s.tasks != nil {
		if err := s.tasks.Close(); err != nil {
			s.log.Error().Err(err).Msg("close task subscription")
		}
	}
}
