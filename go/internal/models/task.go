package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Task is a unit of work estimated in a room. Tasks are never deleted.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	RoomID      uuid.UUID  `json:"room_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Estimate    *string    `json:"estimate"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Key identifies the task.
func (t Task) Key() string {
	return t.ID.String()
}

// Before reports whether t sorts ahead of o in creation order.
func (t Task) Before(o Task) bool {
	if t.CreatedAt.Equal(o.CreatedAt) {
		return t.ID.String() < o.ID.String()
	}
	return t.CreatedAt.Before(o.CreatedAt)
}
