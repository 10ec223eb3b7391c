package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scrumscope/go/internal/auth"
	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/round"
	"github.com/mcdev12/scrumscope/go/internal/session"
	"github.com/mcdev12/scrumscope/go/internal/store/memory"
)

type fixture struct {
	srv   *httptest.Server
	store *memory.Store
	auth  *auth.Authenticator
	cm    *ConnectionManager
	room  models.Room
}

func newFixture(t *testing.T, clock clockwork.Clock) *fixture {
	t.Helper()

	st := memory.New(clock)
	decks, err := models.NewDeckSet()
	require.NoError(t, err)

	authn := auth.NewAuthenticator(auth.Config{Secret: "s", TTL: time.Hour}, clockwork.NewRealClock())
	syncer := session.NewSynchronizer(st, st, decks, session.DefaultConfig())
	cm := NewConnectionManager(syncer, DefaultConnectionConfig(), clock)

	mux := http.NewServeMux()
	NewWebSocketHandler(cm, authn).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	room, err := st.CreateRoom(context.Background(), models.Room{Name: "Sprint", CreatedBy: "u1"})
	require.NoError(t, err)

	return &fixture{srv: srv, store: st, auth: authn, cm: cm, room: room}
}

func (f *fixture) url(roomID uuid.UUID, token string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/room?room_id=" + roomID.String() + "&token=" + token
}

func (f *fixture) dial(t *testing.T, roomID uuid.UUID, userID string) *websocket.Conn {
	t.Helper()
	token, err := f.auth.Issue(models.User{ID: userID, Name: strings.ToUpper(userID)})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.url(roomID, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, in Intent) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(in))
}

// await reads messages until match accepts one.
func await(t *testing.T, conn *websocket.Conn, match func(Message) bool) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func stateWhere(pred func(session.State) bool) func(Message) bool {
	return func(m Message) bool {
		return m.Type == MessageState && m.State != nil && pred(*m.State)
	}
}

func player(st session.State, userID string) (models.Player, bool) {
	for _, p := range st.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return models.Player{}, false
}

func TestRoomNotFound(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock())
	conn := f.dial(t, uuid.New(), "u1")

	msg := await(t, conn, func(Message) bool { return true })
	assert.Equal(t, MessageRoomNotFound, msg.Type)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestRejectsBadRequests(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock())

	_, resp, err := websocket.DefaultDialer.Dial(f.url(f.room.ID, "bogus"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/room?room_id=nope"
	_, resp, err = websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoundAcrossConnections(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock())
	alice := f.dial(t, f.room.ID, "alice")
	bob := f.dial(t, f.room.ID, "bob")

	send(t, alice, Intent{Type: IntentCreateTask, Title: "Login page"})
	created := await(t, alice, stateWhere(func(st session.State) bool {
		return st.CurrentTask != nil && st.Phase == round.PhaseVoting
	}))
	taskID := created.State.CurrentTask.ID

	// the profile write is stored after alice's reset
	send(t, alice, Intent{Type: IntentSetProfile, Name: "Alice Smith"})
	await(t, bob, stateWhere(func(st session.State) bool {
		p, ok := player(st, "alice")
		return ok && p.Name == "Alice Smith" && len(st.Tasks) == 1
	}))
	send(t, bob, Intent{Type: IntentSelectTask, TaskID: taskID.String()})
	await(t, bob, stateWhere(func(st session.State) bool { return st.Phase == round.PhaseVoting }))

	// bob's vote is stored after bob's reset, so alice votes once she sees it
	send(t, bob, Intent{Type: IntentCastVote, Value: "8"})
	await(t, alice, stateWhere(func(st session.State) bool {
		p, ok := player(st, "bob")
		return ok && p.HasVoted
	}))
	send(t, alice, Intent{Type: IntentCastVote, Value: "5"})

	masked := await(t, bob, stateWhere(func(st session.State) bool {
		p, ok := player(st, "alice")
		return ok && p.HasVoted && st.AllVoted
	}))
	a, _ := player(*masked.State, "alice")
	assert.Nil(t, a.CurrentVote, "votes stay hidden until reveal")
	b, _ := player(*masked.State, "bob")
	require.NotNil(t, b.CurrentVote)
	assert.Equal(t, "8", *b.CurrentVote)

	await(t, alice, stateWhere(func(st session.State) bool { return st.AllVoted }))
	send(t, alice, Intent{Type: IntentReveal})

	revealed := await(t, bob, stateWhere(func(st session.State) bool { return st.Phase == round.PhaseRevealed }))
	require.NotNil(t, revealed.State.Average)
	assert.Equal(t, "6.5", *revealed.State.Average)
	a, _ = player(*revealed.State, "alice")
	require.NotNil(t, a.CurrentVote)
	assert.Equal(t, "5", *a.CurrentVote)

	send(t, bob, Intent{Type: IntentNewRound})
	await(t, alice, stateWhere(func(st session.State) bool {
		return st.Phase == round.PhaseVoting && st.Tally.Voted == 0 && st.Tally.Total == 2
	}))
}

func TestIntentErrors(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock())
	conn := f.dial(t, f.room.ID, "alice")

	send(t, conn, Intent{Type: IntentCastVote, Value: "5"})
	msg := await(t, conn, func(m Message) bool { return m.Type == MessageError })
	assert.Equal(t, IntentCastVote, msg.Intent)
	assert.Contains(t, msg.Error, round.ErrNoTaskSelected.Error())

	send(t, conn, Intent{Type: "shuffle"})
	msg = await(t, conn, func(m Message) bool { return m.Type == MessageError })
	assert.Contains(t, msg.Error, "unknown intent")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	msg = await(t, conn, func(m Message) bool { return m.Type == MessageError })
	assert.Equal(t, "malformed message", msg.Error)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock())
	ctx := context.Background()
	conn := f.dial(t, f.room.ID, "alice")
	await(t, conn, stateWhere(func(st session.State) bool { return len(st.Players) == 1 }))

	stats := f.cm.Stats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.RoomConnections[f.room.ID.String()])

	resp, err := http.Get(f.srv.URL + "/ws/stats")
	require.NoError(t, err)
	var got ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, 1, got.ActiveRooms)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	assert.Eventually(t, func() bool {
		players, err := f.store.ListPlayers(ctx, f.room.ID)
		return err == nil && len(players) == 0 &&
			f.store.SubscriberCount(f.room.ID) == 0 &&
			f.cm.Stats().TotalConnections == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPings(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	f := newFixture(t, clock)
	conn := f.dial(t, f.room.ID, "alice")

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	await(t, conn, stateWhere(func(session.State) bool { return true }))

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(DefaultConnectionConfig().PingInterval)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-pinged:
	case <-time.After(3 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestMaskVotes(t *testing.T) {
	five, eight := "5", "8"
	st := session.State{
		UserID: "alice",
		Phase:  round.PhaseVoting,
		Players: []models.Player{
			{UserID: "alice", HasVoted: true, CurrentVote: &five},
			{UserID: "bob", HasVoted: true, CurrentVote: &eight},
		},
	}

	masked := maskVotes(st)
	assert.Equal(t, &five, masked.Players[0].CurrentVote)
	assert.Nil(t, masked.Players[1].CurrentVote)
	assert.True(t, masked.Players[1].HasVoted)
	assert.NotNil(t, st.Players[1].CurrentVote, "input is not modified")

	st.Phase = round.PhaseRevealed
	assert.Equal(t, &eight, maskVotes(st).Players[1].CurrentVote)
}

func TestCloseDisconnectsClients(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock())
	conn := f.dial(t, f.room.ID, "alice")
	await(t, conn, stateWhere(func(st session.State) bool { return len(st.Players) == 1 }))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	f.cm.Close(ctx)

	assert.Zero(t, f.cm.Stats().TotalConnections)
	players, err := f.store.ListPlayers(context.Background(), f.room.ID)
	require.NoError(t, err)
	assert.Empty(t, players)
}
