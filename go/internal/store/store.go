package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mcdev12/scrumscope/go/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RoomStore persists rooms.
type RoomStore interface {
	CreateRoom(ctx context.Context, room models.Room) (models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (models.Room, error)
	ListRooms(ctx context.Context, limit int) ([]models.RoomSummary, error)
}

// PlayerStore persists the roster of each room.
type PlayerStore interface {
	ListPlayers(ctx context.Context, roomID uuid.UUID) ([]models.Player, error)
	// UpsertPlayer inserts the row or overwrites the existing one for (RoomID, UserID).
	UpsertPlayer(ctx context.Context, p models.Player) (models.Player, error)
	DeletePlayer(ctx context.Context, roomID uuid.UUID, userID string) error
	// SetVote records vote for the player. A nil vote clears it.
	SetVote(ctx context.Context, roomID uuid.UUID, userID string, vote *string) (models.Player, error)
	UpdatePlayerProfile(ctx context.Context, roomID uuid.UUID, userID, name, avatarURL string) (models.Player, error)
	// ResetVotes clears the vote of every player in the room.
	ResetVotes(ctx context.Context, roomID uuid.UUID) ([]models.Player, error)
}

// TaskUpdate lists the mutable task fields. Nil fields are left unchanged.
type TaskUpdate struct {
	Estimate *string
	Status   *models.TaskStatus
}

// TaskStore persists tasks.
type TaskStore interface {
	// ListTasks returns the room's tasks in creation order.
	ListTasks(ctx context.Context, roomID uuid.UUID) ([]models.Task, error)
	CreateTask(ctx context.Context, t models.Task) (models.Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, upd TaskUpdate) (models.Task, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	RoomStore
	PlayerStore
	TaskStore
}

// ChangeFeed opens room scoped change subscriptions.
type ChangeFeed interface {
	SubscribePlayers(ctx context.Context, roomID uuid.UUID) (Subscription[models.Player], error)
	SubscribeTasks(ctx context.Context, roomID uuid.UUID) (Subscription[models.Task], error)
}
