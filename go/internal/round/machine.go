// Package round holds the vote round state machine of a single participant.
// The machine performs no I/O: each transition returns the store commands
// the caller must issue.
package round

import (
	"errors"

	"github.com/google/uuid"

	"github.com/mcdev12/scrumscope/go/internal/models"
)

var (
	ErrNoTaskSelected  = errors.New("no task selected")
	ErrCardsLocked     = errors.New("cards are locked until the next round")
	ErrInvalidCard     = errors.New("card is not part of the deck")
	ErrNotAllVoted     = errors.New("not every player has voted")
	ErrAlreadyRevealed = errors.New("votes are already revealed")
	ErrNothingToSave   = errors.New("no estimate to save")
)

// Phase of the round as seen by one participant.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseVoting   Phase = "voting"
	PhaseRevealed Phase = "revealed"
)

// Command is a store mutation requested by a transition.
type Command interface {
	command()
}

// ResetVotes clears every vote in the room.
type ResetVotes struct{}

// SetVote records the local player's vote.
type SetVote struct {
	Value string
}

// SaveEstimate persists an estimate onto a task. Complete also marks the task completed.
type SaveEstimate struct {
	TaskID   uuid.UUID
	Estimate string
	Complete bool
}

func (ResetVotes) command()   {}
func (SetVote) command()      {}
func (SaveEstimate) command() {}

// Machine is not safe for concurrent use; it is owned by a session's reducer.
type Machine struct {
	phase    Phase
	taskID   uuid.UUID
	selected *string
	average  *Estimate
}

func NewMachine() *Machine {
	return &Machine{phase: PhaseIdle}
}

func (m *Machine) Phase() Phase {
	return m.phase
}

// CurrentTask returns the selected task, if any.
func (m *Machine) CurrentTask() (uuid.UUID, bool) {
	return m.taskID, m.taskID != uuid.Nil
}

// Selected returns the card the local player picked this round.
func (m *Machine) Selected() (string, bool) {
	if m.selected == nil {
		return "", false
	}
	return *m.selected, true
}

// Average returns the revealed estimate, if one was computed.
func (m *Machine) Average() (Estimate, bool) {
	if m.average == nil {
		return Estimate{}, false
	}
	return *m.average, true
}

// SelectTask points the round at id and starts a fresh vote on it.
// Re-selecting the current task restarts its round.
func (m *Machine) SelectTask(id uuid.UUID) []Command {
	m.taskID = id
	m.clearRound()
	m.phase = PhaseVoting
	return []Command{ResetVotes{}}
}

// CastVote picks a card for the local player.
func (m *Machine) CastVote(value string, deck models.Deck) ([]Command, error) {
	switch m.phase {
	case PhaseIdle:
		return nil, ErrNoTaskSelected
	case PhaseRevealed:
		return nil, ErrCardsLocked
	}
	if !deck.Contains(value) {
		return nil, ErrInvalidCard
	}
	v := value
	m.selected = &v
	return []Command{SetVote{Value: value}}, nil
}

// Reveal shows every vote once all players have voted. When no vote is
// numeric the round is revealed without an estimate and nothing is persisted.
func (m *Machine) Reveal(players []models.Player) ([]Command, error) {
	switch m.phase {
	case PhaseIdle:
		return nil, ErrNoTaskSelected
	case PhaseRevealed:
		return nil, ErrAlreadyRevealed
	}
	if !AllVoted(players) {
		return nil, ErrNotAllVoted
	}
	m.phase = PhaseRevealed
	est, ok := Average(players)
	if !ok {
		m.average = nil
		return nil, nil
	}
	m.average = &est
	return []Command{SaveEstimate{TaskID: m.taskID, Estimate: est.String()}}, nil
}

// FollowReveal moves a voting participant to revealed after another
// participant saved estimate onto the current task. No command is issued.
func (m *Machine) FollowReveal(estimate string, players []models.Player) bool {
	if m.phase != PhaseVoting {
		return false
	}
	m.phase = PhaseRevealed
	m.average = nil
	if v, ok := ParseVote(estimate); ok {
		m.average = &Estimate{Value: v, Votes: Count(players).Voted}
	} else if est, ok := Average(players); ok {
		m.average = &est
	}
	return true
}

// FollowNewRound moves a revealed participant back to voting once the room's
// votes were cleared by someone else.
func (m *Machine) FollowNewRound(players []models.Player) bool {
	if m.phase != PhaseRevealed || len(players) == 0 || Count(players).Voted > 0 {
		return false
	}
	m.clearRound()
	m.phase = PhaseVoting
	return true
}

// NewRound clears all votes and the revealed estimate.
func (m *Machine) NewRound() []Command {
	m.clearRound()
	if m.taskID == uuid.Nil {
		m.phase = PhaseIdle
	} else {
		m.phase = PhaseVoting
	}
	return []Command{ResetVotes{}}
}

// SaveEstimate persists the revealed estimate again and completes the task.
func (m *Machine) SaveEstimate() ([]Command, error) {
	if m.phase != PhaseRevealed || m.average == nil {
		return nil, ErrNothingToSave
	}
	return []Command{SaveEstimate{TaskID: m.taskID, Estimate: m.average.String(), Complete: true}}, nil
}

func (m *Machine) clearRound() {
	m.selected = nil
	m.average = nil
}
