package realtime

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcdev12/scrumscope/go/internal/migrations"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

func setupOutboxDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("scrumscope"),
		tcpostgres.WithUsername("scrumscope"),
		tcpostgres.WithPassword("scrumscope"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, migrations.Up(ctx, dsn))

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLOutbox(t *testing.T) {
	db := setupOutboxDB(t)
	ctx := context.Background()
	outbox := NewSQLOutbox(db)

	roomID := uuid.New()
	_, err := db.ExecContext(ctx, `INSERT INTO rooms (id, name, created_by) VALUES ($1, 'Sprint 7', 'ann')`, roomID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO players (room_id, user_id, name) VALUES ($1, 'ann', 'Ann')`, roomID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE players SET has_voted = true, current_vote = '5' WHERE room_id = $1`, roomID)
	require.NoError(t, err)

	n, err := outbox.CountUnsent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var seqs []int64
	t.Run("failed publish keeps the batch unsent", func(t *testing.T) {
		sent, err := outbox.ProcessUnsent(ctx, 10, func(c PendingChange) error {
			seqs = append(seqs, c.Seq)
			assert.Equal(t, roomID.String(), c.RoomID)
			assert.Equal(t, store.TablePlayers, c.Table)
			return errors.New("nats: timeout")
		})
		require.NoError(t, err)
		assert.Zero(t, sent)
		require.Len(t, seqs, 1)
	})

	t.Run("HasUnsentBefore", func(t *testing.T) {
		behind, err := outbox.HasUnsentBefore(ctx, seqs[0])
		require.NoError(t, err)
		assert.False(t, behind)

		behind, err = outbox.HasUnsentBefore(ctx, seqs[0]+1)
		require.NoError(t, err)
		assert.True(t, behind)
	})

	t.Run("sweep publishes in commit order", func(t *testing.T) {
		var types []store.EventType
		sent, err := outbox.ProcessUnsent(ctx, 10, func(c PendingChange) error {
			types = append(types, c.Type)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, sent)
		assert.Equal(t, []store.EventType{store.EventInsert, store.EventUpdate}, types)

		n, err := outbox.CountUnsent(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
