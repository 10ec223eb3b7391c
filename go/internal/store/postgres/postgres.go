// Package postgres implements store.Store on PostgreSQL with pgx. Change
// notification is not handled here: triggers record every players and tasks
// change into room_changes, which the realtime relay publishes.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

const (
	roomColumns   = "id, name, created_by, deck, created_at"
	playerColumns = "room_id, user_id, name, avatar_url, has_voted, current_vote, joined_at"
	taskColumns   = "id, room_id, title, description, status, estimate, created_at"

	foreignKeyViolation = "23503"
)

var _ store.Store = (*Repository)(nil)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	r.pool.Close()
}

func scanRoom(row pgx.Row) (models.Room, error) {
	var room models.Room
	err := row.Scan(&room.ID, &room.Name, &room.CreatedBy, &room.Deck, &room.CreatedAt)
	return room, err
}

func scanPlayer(row pgx.Row) (models.Player, error) {
	var p models.Player
	err := row.Scan(&p.RoomID, &p.UserID, &p.Name, &p.AvatarURL, &p.HasVoted, &p.CurrentVote, &p.JoinedAt)
	return p, err
}

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.RoomID, &t.Title, &t.Description, &t.Status, &t.Estimate, &t.CreatedAt)
	return t, err
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// mapError translates driver errors into store errors.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (r *Repository) CreateRoom(ctx context.Context, room models.Room) (models.Room, error) {
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	if room.Deck == "" {
		room.Deck = models.DefaultDeckID
	}
	created, err := scanRoom(r.pool.QueryRow(ctx,
		`INSERT INTO rooms (id, name, created_by, deck) VALUES ($1, $2, $3, $4)
		 RETURNING `+roomColumns,
		room.ID, room.Name, room.CreatedBy, room.Deck,
	))
	return created, mapError(err, "create room")
}

func (r *Repository) GetRoom(ctx context.Context, id uuid.UUID) (models.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	return room, mapError(err, fmt.Sprintf("room %s", id))
}

func (r *Repository) ListRooms(ctx context.Context, limit int) ([]models.RoomSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.created_by, r.deck, r.created_at, count(p.user_id)
		 FROM rooms r
		 LEFT JOIN players p ON p.room_id = r.id
		 GROUP BY r.id
		 ORDER BY r.created_at DESC
		 LIMIT NULLIF($1, 0)`, limit)
	if err != nil {
		return nil, mapError(err, "list rooms")
	}
	out, err := collect(rows, func(row pgx.Row) (models.RoomSummary, error) {
		var s models.RoomSummary
		err := row.Scan(&s.ID, &s.Name, &s.CreatedBy, &s.Deck, &s.CreatedAt, &s.PlayerCount)
		return s, err
	})
	return out, mapError(err, "list rooms")
}

func (r *Repository) ListPlayers(ctx context.Context, roomID uuid.UUID) ([]models.Player, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+playerColumns+` FROM players WHERE room_id = $1 ORDER BY joined_at, user_id`, roomID)
	if err != nil {
		return nil, mapError(err, "list players")
	}
	out, err := collect(rows, scanPlayer)
	return out, mapError(err, "list players")
}

func (r *Repository) UpsertPlayer(ctx context.Context, p models.Player) (models.Player, error) {
	p = p.WithVote(p.CurrentVote)
	row, err := scanPlayer(r.pool.QueryRow(ctx,
		`INSERT INTO players (room_id, user_id, name, avatar_url, has_voted, current_vote)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (room_id, user_id) DO UPDATE SET
		     name = EXCLUDED.name,
		     avatar_url = EXCLUDED.avatar_url,
		     has_voted = EXCLUDED.has_voted,
		     current_vote = EXCLUDED.current_vote
		 RETURNING `+playerColumns,
		p.RoomID, p.UserID, p.Name, p.AvatarURL, p.HasVoted, p.CurrentVote,
	))
	return row, mapError(err, fmt.Sprintf("upsert player %s", p.UserID))
}

func (r *Repository) DeletePlayer(ctx context.Context, roomID uuid.UUID, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM players WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	return mapError(err, fmt.Sprintf("delete player %s", userID))
}

func (r *Repository) SetVote(ctx context.Context, roomID uuid.UUID, userID string, vote *string) (models.Player, error) {
	row, err := scanPlayer(r.pool.QueryRow(ctx,
		`UPDATE players SET has_voted = $3, current_vote = $4
		 WHERE room_id = $1 AND user_id = $2
		 RETURNING `+playerColumns,
		roomID, userID, vote != nil, vote,
	))
	return row, mapError(err, fmt.Sprintf("player %s", userID))
}

func (r *Repository) UpdatePlayerProfile(ctx context.Context, roomID uuid.UUID, userID, name, avatarURL string) (models.Player, error) {
	row, err := scanPlayer(r.pool.QueryRow(ctx,
		`UPDATE players SET name = $3, avatar_url = $4
		 WHERE room_id = $1 AND user_id = $2
		 RETURNING `+playerColumns,
		roomID, userID, name, avatarURL,
	))
	return row, mapError(err, fmt.Sprintf("player %s", userID))
}

func (r *Repository) ResetVotes(ctx context.Context, roomID uuid.UUID) ([]models.Player, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE players SET has_voted = false, current_vote = NULL
		 WHERE room_id = $1
		 RETURNING `+playerColumns, roomID)
	if err != nil {
		return nil, mapError(err, "reset votes")
	}
	out, err := collect(rows, scanPlayer)
	return out, mapError(err, "reset votes")
}

func (r *Repository) ListTasks(ctx context.Context, roomID uuid.UUID) ([]models.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE room_id = $1 ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, mapError(err, "list tasks")
	}
	out, err := collect(rows, scanTask)
	return out, mapError(err, "list tasks")
}

func (r *Repository) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	row, err := scanTask(r.pool.QueryRow(ctx,
		`INSERT INTO tasks (id, room_id, title, description, status, estimate)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+taskColumns,
		t.ID, t.RoomID, t.Title, t.Description, t.Status, t.Estimate,
	))
	return row, mapError(err, "create task")
}

func (r *Repository) UpdateTask(ctx context.Context, id uuid.UUID, upd store.TaskUpdate) (models.Task, error) {
	row, err := scanTask(r.pool.QueryRow(ctx,
		`UPDATE tasks SET
		     estimate = COALESCE($2, estimate),
		     status = COALESCE($3, status)
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id, upd.Estimate, upd.Status,
	))
	return row, mapError(err, fmt.Sprintf("task %s", id))
}
