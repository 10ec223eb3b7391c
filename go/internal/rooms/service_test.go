package rooms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scrumscope/go/internal/auth"
	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/rpc"
	"github.com/mcdev12/scrumscope/go/internal/store/memory"
)

type fixture struct {
	client *Client
	token  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	clock := clockwork.NewFakeClock()
	decks, err := models.NewDeckSet(models.Deck{ID: "hours", Cards: []string{"1", "2", "4"}})
	require.NoError(t, err)

	authn := auth.NewAuthenticator(auth.Config{Secret: "s", TTL: time.Hour}, clock)
	app := NewApp(memory.New(clock), decks, "https://poker.example.com/")

	mux := http.NewServeMux()
	mux.Handle(NewService(app, authn).Handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	token, err := authn.Issue(models.User{ID: "u1", Name: "Ada"})
	require.NoError(t, err)

	return fixture{client: NewClient(srv.Client(), srv.URL), token: token}
}

func (f fixture) createRoom(t *testing.T, name, deck string) *CreateRoomResponse {
	t.Helper()
	req := connect.NewRequest(&CreateRoomRequest{Name: name, Deck: deck})
	req.Header().Set("Authorization", "Bearer "+f.token)
	res, err := f.client.CreateRoom(context.Background(), req)
	require.NoError(t, err)
	return res.Msg
}

func TestCreateAndGetRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.createRoom(t, "  Sprint 42 ", "")
	assert.Equal(t, "Sprint 42", created.Room.Name)
	assert.Equal(t, "u1", created.Room.CreatedBy)
	assert.Equal(t, models.DefaultDeckID, created.Room.Deck)
	assert.Equal(t, "https://poker.example.com/room/"+created.Room.ID.String(), created.InviteURL)

	got, err := f.client.GetRoom(ctx, connect.NewRequest(&GetRoomRequest{ID: created.Room.ID.String()}))
	require.NoError(t, err)
	assert.Equal(t, created.Room.ID, got.Msg.Room.ID)
	assert.Equal(t, "fibonacci", got.Msg.Deck.ID)

	link, err := f.client.InviteLink(ctx, connect.NewRequest(&InviteLinkRequest{RoomID: created.Room.ID.String()}))
	require.NoError(t, err)
	assert.Equal(t, created.InviteURL, link.Msg.URL)
}

func TestCreateRoomCustomDeck(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t, "Ops", "hours")

	got, err := f.client.GetRoom(context.Background(), connect.NewRequest(&GetRoomRequest{ID: created.Room.ID.String()}))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "4"}, got.Msg.Deck.Cards)
}

func TestCreateRoomErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   CreateRoomRequest
		token string
		code  connect.Code
	}{
		{name: "no token", req: CreateRoomRequest{Name: "x"}, code: connect.CodeUnauthenticated},
		{name: "bad token", req: CreateRoomRequest{Name: "x"}, token: "nope", code: connect.CodeUnauthenticated},
		{name: "empty name", req: CreateRoomRequest{Name: " "}, token: f.token, code: connect.CodeInvalidArgument},
		{name: "unknown deck", req: CreateRoomRequest{Name: "x", Deck: "tarot"}, token: f.token, code: connect.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := connect.NewRequest(&tt.req)
			if tt.token != "" {
				req.Header().Set("Authorization", "Bearer "+tt.token)
			}
			_, err := f.client.CreateRoom(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.code, rpc.Code(err))
		})
	}
}

func TestGetRoomErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.GetRoom(ctx, connect.NewRequest(&GetRoomRequest{ID: "not-a-uuid"}))
	assert.Equal(t, connect.CodeInvalidArgument, rpc.Code(err))

	_, err = f.client.GetRoom(ctx, connect.NewRequest(&GetRoomRequest{ID: uuid.NewString()}))
	assert.Equal(t, connect.CodeNotFound, rpc.Code(err))

	_, err = f.client.InviteLink(ctx, connect.NewRequest(&InviteLinkRequest{RoomID: uuid.NewString()}))
	assert.Equal(t, connect.CodeNotFound, rpc.Code(err))
}

func TestListRooms(t *testing.T) {
	f := newFixture(t)
	f.createRoom(t, "first", "")
	f.createRoom(t, "second", "")

	res, err := f.client.ListRooms(context.Background(), connect.NewRequest(&ListRoomsRequest{}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Rooms, 2)
	assert.Equal(t, "second", res.Msg.Rooms[0].Name)
	assert.Zero(t, res.Msg.Rooms[0].PlayerCount)

	res, err = f.client.ListRooms(context.Background(), connect.NewRequest(&ListRoomsRequest{Limit: 1}))
	require.NoError(t, err)
	assert.Len(t, res.Msg.Rooms, 1)
}

func TestListDecksAndCharacters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	decks, err := f.client.ListDecks(ctx, connect.NewRequest(&ListDecksRequest{}))
	require.NoError(t, err)
	ids := make([]string, 0, len(decks.Msg.Decks))
	for _, d := range decks.Msg.Decks {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"fibonacci", "hours", "power", "tshirt"}, ids)

	chars, err := f.client.ListCharacters(ctx, connect.NewRequest(&ListCharactersRequest{}))
	require.NoError(t, err)
	assert.Equal(t, models.Characters(), chars.Msg.Characters)
}
