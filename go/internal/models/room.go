package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a shared estimation space. Immutable after creation.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	Deck      string    `json:"deck"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomSummary is a Room with the number of players currently present.
type RoomSummary struct {
	Room
	PlayerCount int `json:"player_count"`
}
