package realtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/scrumscope/go/internal/sqlutil"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

// ErrChangeNotFound is returned when a notified change id has no outbox row.
var ErrChangeNotFound = errors.New("change not found")

// PendingChange is an outbox row.
type PendingChange struct {
	store.Envelope
	Seq  int64
	Sent bool
}

// Outbox reads and acknowledges rows of room_changes.
type Outbox interface {
	Fetch(ctx context.Context, id uuid.UUID) (PendingChange, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	// HasUnsentBefore reports whether a change older than seq is still unsent.
	HasUnsentBefore(ctx context.Context, seq int64) (bool, error)
	// ProcessUnsent hands up to limit unsent changes, oldest first, to fn and
	// marks each one sent when fn succeeds. It returns how many were sent.
	ProcessUnsent(ctx context.Context, limit int, fn func(PendingChange) error) (int, error)
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type outboxQueries struct {
	db dbtx
}

const changeColumns = "id, seq, room_id, table_name, event_type, new_row, old_row, sent_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner) (PendingChange, error) {
	var (
		id, roomID uuid.UUID
		c          PendingChange
		newRow     pqtype.NullRawMessage
		oldRow     pqtype.NullRawMessage
		sentAt     sql.NullTime
		eventType  string
	)
	if err := row.Scan(&id, &c.Seq, &roomID, &c.Table, &eventType, &newRow, &oldRow, &sentAt); err != nil {
		return PendingChange{}, err
	}
	c.ID = id.String()
	c.RoomID = roomID.String()
	c.Type = store.EventType(eventType)
	c.New = sqlutil.FromNullRawMessage(newRow)
	c.Old = sqlutil.FromNullRawMessage(oldRow)
	c.Sent = sqlutil.FromSqlTime(sentAt) != nil
	return c, nil
}

func (q *outboxQueries) fetch(ctx context.Context, id uuid.UUID) (PendingChange, error) {
	c, err := scanChange(q.db.QueryRowContext(ctx,
		`SELECT `+changeColumns+` FROM room_changes WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return PendingChange{}, fmt.Errorf("%w: %s", ErrChangeNotFound, id)
	}
	return c, err
}

func (q *outboxQueries) lockUnsent(ctx context.Context, limit int) ([]PendingChange, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+changeColumns+` FROM room_changes
		 WHERE sent_at IS NULL
		 ORDER BY seq
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *outboxQueries) markSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE room_changes SET sent_at = now() WHERE id = $1 AND sent_at IS NULL`, id)
	return err
}

func (q *outboxQueries) hasUnsentBefore(ctx context.Context, seq int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM room_changes WHERE sent_at IS NULL AND seq < $1)`, seq).Scan(&exists)
	return exists, err
}

func (q *outboxQueries) countUnsent(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_changes WHERE sent_at IS NULL`).Scan(&n)
	return n, err
}

// SQLOutbox is the Postgres Outbox.
type SQLOutbox struct {
	db *sql.DB
	q  *outboxQueries
}

func NewSQLOutbox(db *sql.DB) *SQLOutbox {
	return &SQLOutbox{db: db, q: &outboxQueries{db: db}}
}

func (o *SQLOutbox) Fetch(ctx context.Context, id uuid.UUID) (PendingChange, error) {
	return o.q.fetch(ctx, id)
}

func (o *SQLOutbox) HasUnsentBefore(ctx context.Context, seq int64) (bool, error) {
	return o.q.hasUnsentBefore(ctx, seq)
}

func (o *SQLOutbox) CountUnsent(ctx context.Context) (int, error) {
	return o.q.countUnsent(ctx)
}

func (o *SQLOutbox) MarkSent(ctx context.Context, id uuid.UUID) error {
	return o.q.markSent(ctx, id)
}

func (o *SQLOutbox) ProcessUnsent(ctx context.Context, limit int, fn func(PendingChange) error) (int, error) {
	sent := 0
	err := sqlutil.InTx(ctx, o.db, func(tx *sql.Tx) error {
		q := &outboxQueries{db: tx}
		changes, err := q.lockUnsent(ctx, limit)
		if err != nil {
			return fmt.Errorf("fetch unsent changes: %w", err)
		}
		for _, c := range changes {
			if err := fn(c); err != nil {
				// later changes wait for this one
				return nil
			}
			id, err := uuid.Parse(c.ID)
			if err != nil {
				return err
			}
			if err := q.markSent(ctx, id); err != nil {
				return fmt.Errorf("mark change %s sent: %w", c.ID, err)
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}
