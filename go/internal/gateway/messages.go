package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/round"
	"github.com/mcdev12/scrumscope/go/internal/session"
)

// IntentType names a client request.
type IntentType string

const (
	IntentCastVote     IntentType = "cast_vote"
	IntentReveal       IntentType = "reveal"
	IntentNewRound     IntentType = "new_round"
	IntentSelectTask   IntentType = "select_task"
	IntentCreateTask   IntentType = "create_task"
	IntentSetProfile   IntentType = "set_profile"
	IntentSetCharacter IntentType = "set_character"
	IntentSaveEstimate IntentType = "save_estimate"
)

// MessageType names a server message.
type MessageType string

const (
	MessageState        MessageType = "state"
	MessageError        MessageType = "error"
	MessageRoomNotFound MessageType = "room_not_found"
)

var errUnknownIntent = errors.New("unknown intent")

// Intent is a message from the client.
type Intent struct {
	Type        IntentType `json:"type"`
	Value       string     `json:"value,omitempty"`
	TaskID      string     `json:"task_id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Name        string     `json:"name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	CharacterID string     `json:"character_id,omitempty"`
}

// Message is sent to the client.
type Message struct {
	Type   MessageType    `json:"type"`
	State  *session.State `json:"state,omitempty"`
	Intent IntentType     `json:"intent,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Participant is the part of a session the gateway drives.
type Participant interface {
	CastVote(ctx context.Context, value string) error
	Reveal(ctx context.Context) error
	NewRound(ctx context.Context) error
	SaveEstimate(ctx context.Context) error
	SelectTask(ctx context.Context, id uuid.UUID) error
	CreateTask(ctx context.Context, title, description string) error
	SetProfile(ctx context.Context, name, avatarURL string) error
	SelectCharacter(ctx context.Context, characterID string) error
}

func apply(ctx context.Context, p Participant, in Intent) error {
	switch in.Type {
	case IntentCastVote:
		return p.CastVote(ctx, in.Value)
	case IntentReveal:
		return p.Reveal(ctx)
	case IntentNewRound:
		return p.NewRound(ctx)
	case IntentSaveEstimate:
		return p.SaveEstimate(ctx)
	case IntentSelectTask:
		id, err := uuid.Parse(in.TaskID)
		if err != nil {
			return fmt.Errorf("%w: %q", session.ErrInvalidTask, in.TaskID)
		}
		return p.SelectTask(ctx, id)
	case IntentCreateTask:
		return p.CreateTask(ctx, in.Title, in.Description)
	case IntentSetProfile:
		return p.SetProfile(ctx, in.Name, in.AvatarURL)
	case IntentSetCharacter:
		return p.SelectCharacter(ctx, in.CharacterID)
	default:
		return fmt.Errorf("%w: %q", errUnknownIntent, in.Type)
	}
}

// maskVotes hides the other players' cards until the round is revealed.
func maskVotes(st session.State) session.State {
	if st.Phase == round.PhaseRevealed {
		return st
	}
	players := make([]models.Player, len(st.Players))
	for i, p := range st.Players {
		if p.UserID != st.UserID {
			p.CurrentVote = nil
		}
		players[i] = p
	}
	st.Players = players
	return st
}
