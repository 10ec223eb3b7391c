package session

import (
	"sort"

	"github.com/google/uuid"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

// projection is the local copy of a room's rows. Every mutation is keyed by
// primary key, so applying a change twice leaves the same result as once.
// Inserts only add rows that are absent: a redelivered insert must not undo a
// later update.
type projection struct {
	roomID  uuid.UUID
	players []models.Player
	tasks   []models.Task
}

func newProjection(roomID uuid.UUID) *projection {
	return &projection{roomID: roomID}
}

func playerBefore(a, b models.Player) bool {
	if a.JoinedAt.Equal(b.JoinedAt) {
		return a.UserID < b.UserID
	}
	return a.JoinedAt.Before(b.JoinedAt)
}

func (p *projection) resetPlayers(rows []models.Player) {
	p.players = p.players[:0]
	for _, row := range rows {
		p.upsertPlayer(row)
	}
}

func (p *projection) resetTasks(rows []models.Task) {
	p.tasks = p.tasks[:0]
	for _, row := range rows {
		p.upsertTask(row)
	}
}

func (p *projection) player(userID string) (models.Player, bool) {
	for _, row := range p.players {
		if row.UserID == userID {
			return row, true
		}
	}
	return models.Player{}, false
}

func (p *projection) upsertPlayer(row models.Player) {
	if row.RoomID != p.roomID {
		return
	}
	p.removePlayer(row.UserID)
	i := sort.Search(len(p.players), func(i int) bool { return playerBefore(row, p.players[i]) })
	p.players = append(p.players, models.Player{})
	copy(p.players[i+1:], p.players[i:])
	p.players[i] = row
}

func (p *projection) removePlayer(userID string) {
	for i, row := range p.players {
		if row.UserID == userID {
			p.players = append(p.players[:i], p.players[i+1:]...)
			return
		}
	}
}

func (p *projection) applyPlayer(ch store.Change[models.Player]) {
	switch ch.Type {
	case store.EventInsert:
		if ch.New == nil {
			return
		}
		if _, ok := p.player(ch.New.UserID); !ok {
			p.upsertPlayer(*ch.New)
		}
	case store.EventUpdate:
		if ch.New != nil {
			p.upsertPlayer(*ch.New)
		}
	case store.EventDelete:
		if ch.Old != nil && ch.Old.RoomID == p.roomID {
			p.removePlayer(ch.Old.UserID)
		}
	}
}

// clearVotes mirrors a room wide reset locally.
func (p *projection) clearVotes() {
	for i := range p.players {
		p.players[i] = p.players[i].WithVote(nil)
	}
}

func (p *projection) task(id uuid.UUID) (models.Task, bool) {
	for _, row := range p.tasks {
		if row.ID == id {
			return row, true
		}
	}
	return models.Task{}, false
}

// upsertTask stores row and returns the version it replaced, if any.
func (p *projection) upsertTask(row models.Task) *models.Task {
	if row.RoomID != p.roomID {
		return nil
	}
	for i, existing := range p.tasks {
		if existing.ID == row.ID {
			p.tasks[i] = row
			return &existing
		}
	}
	i := sort.Search(len(p.tasks), func(i int) bool { return row.Before(p.tasks[i]) })
	p.tasks = append(p.tasks, models.Task{})
	copy(p.tasks[i+1:], p.tasks[i:])
	p.tasks[i] = row
	return nil
}

// applyTask reports whether ch changed the projection and returns the version
// of the task it replaced. Tasks are never deleted, so delete events are
// ignored.
func (p *projection) applyTask(ch store.Change[models.Task]) (*models.Task, bool) {
	if ch.New == nil {
		return nil, false
	}
	switch ch.Type {
	case store.EventInsert:
		if _, ok := p.task(ch.New.ID); ok {
			return nil, false
		}
		return p.upsertTask(*ch.New), true
	case store.EventUpdate:
		return p.upsertTask(*ch.New), true
	}
	return nil, false
}

func (p *projection) snapshotPlayers() []models.Player {
	return append([]models.Player(nil), p.players...)
}

func (p *projection) snapshotTasks() []models.Task {
	return append([]models.Task(nil), p.tasks...)
}
