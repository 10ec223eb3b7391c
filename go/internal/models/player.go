package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a user's presence and vote in a room, unique per (RoomID, UserID).
// HasVoted is true exactly when CurrentVote is set.
type Player struct {
	RoomID      uuid.UUID `json:"room_id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatar_url"`
	HasVoted    bool      `json:"has_voted"`
	CurrentVote *string   `json:"current_vote"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Key identifies the player within its room.
func (p Player) Key() string {
	return p.UserID
}

// WithVote returns a copy of p carrying vote. A nil vote clears it.
func (p Player) WithVote(vote *string) Player {
	if vote == nil {
		p.HasVoted = false
		p.CurrentVote = nil
		return p
	}
	v := *vote
	p.HasVoted = true
	p.CurrentVote = &v
	return p
}
