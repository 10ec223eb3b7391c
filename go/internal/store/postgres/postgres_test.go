package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcdev12/scrumscope/go/internal/migrations"
	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/store"
	"github.com/mcdev12/scrumscope/go/internal/store/postgres"
)

var (
	setupOnce sync.Once
	container *tcpostgres.PostgresContainer
	repo      *postgres.Repository
	setupErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if repo != nil {
		repo.Close()
	}
	if container != nil {
		_ = container.Terminate(context.Background())
	}
	os.Exit(code)
}

func setup(t *testing.T) *postgres.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	setupOnce.Do(func() {
		ctx := context.Background()
		container, setupErr = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("scrumscope"),
			tcpostgres.WithUsername("scrumscope"),
			tcpostgres.WithPassword("scrumscope"),
			testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
		)
		if setupErr != nil {
			return
		}
		var dsn string
		dsn, setupErr = container.ConnectionString(ctx, "sslmode=disable")
		if setupErr != nil {
			return
		}
		if setupErr = migrations.Up(ctx, dsn); setupErr != nil {
			return
		}
		repo, setupErr = postgres.NewRepository(ctx, dsn)
	})
	require.NoError(t, setupErr)
	return repo
}

func TestRepository(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	room, err := r.CreateRoom(ctx, models.Room{Name: "Sprint 7", CreatedBy: "ann"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDeckID, room.Deck)

	t.Run("GetRoom", func(t *testing.T) {
		got, err := r.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room.Name, got.Name)

		_, err = r.GetRoom(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Players", func(t *testing.T) {
		p, err := r.UpsertPlayer(ctx, models.Player{RoomID: room.ID, UserID: "ann", Name: "Ann"})
		require.NoError(t, err)
		assert.False(t, p.HasVoted)

		vote := "8"
		p, err = r.SetVote(ctx, room.ID, "ann", &vote)
		require.NoError(t, err)
		assert.True(t, p.HasVoted)
		assert.Equal(t, "8", *p.CurrentVote)

		p, err = r.UpsertPlayer(ctx, models.Player{RoomID: room.ID, UserID: "ann", Name: "Ann"})
		require.NoError(t, err)
		assert.False(t, p.HasVoted)
		assert.Nil(t, p.CurrentVote)

		_, err = r.UpsertPlayer(ctx, models.Player{RoomID: uuid.New(), UserID: "ann", Name: "Ann"})
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = r.UpsertPlayer(ctx, models.Player{RoomID: room.ID, UserID: "bob", Name: "Bob"})
		require.NoError(t, err)
		_, err = r.SetVote(ctx, room.ID, "bob", &vote)
		require.NoError(t, err)

		reset, err := r.ResetVotes(ctx, room.ID)
		require.NoError(t, err)
		assert.Len(t, reset, 2)
		for _, row := range reset {
			assert.False(t, row.HasVoted)
		}

		rooms, err := r.ListRooms(ctx, 10)
		require.NoError(t, err)
		require.NotEmpty(t, rooms)
		assert.Equal(t, 2, rooms[0].PlayerCount)

		require.NoError(t, r.DeletePlayer(ctx, room.ID, "bob"))
		players, err := r.ListPlayers(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, players, 1)
		assert.Equal(t, "ann", players[0].UserID)

		_, err = r.SetVote(ctx, room.ID, "bob", &vote)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Tasks", func(t *testing.T) {
		first, err := r.CreateTask(ctx, models.Task{RoomID: room.ID, Title: "Login"})
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusPending, first.Status)
		_, err = r.CreateTask(ctx, models.Task{RoomID: room.ID, Title: "Logout"})
		require.NoError(t, err)

		estimate := "6.5"
		updated, err := r.UpdateTask(ctx, first.ID, store.TaskUpdate{Estimate: &estimate})
		require.NoError(t, err)
		assert.Equal(t, "6.5", *updated.Estimate)
		assert.Equal(t, models.TaskStatusPending, updated.Status)

		tasks, err := r.ListTasks(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "Login", tasks[0].Title)
		assert.Equal(t, "Logout", tasks[1].Title)

		_, err = r.UpdateTask(ctx, uuid.New(), store.TaskUpdate{Estimate: &estimate})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
