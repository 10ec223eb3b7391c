package rooms

import (
	"context"

	"connectrpc.com/connect"

	"github.com/mcdev12/scrumscope/go/internal/rpc"
)

// Client calls a remote RoomService.
type Client struct {
	createRoom     *connect.Client[CreateRoomRequest, CreateRoomResponse]
	getRoom        *connect.Client[GetRoomRequest, GetRoomResponse]
	listRooms      *connect.Client[ListRoomsRequest, ListRoomsResponse]
	listDecks      *connect.Client[ListDecksRequest, ListDecksResponse]
	listCharacters *connect.Client[ListCharactersRequest, ListCharactersResponse]
	inviteLink     *connect.Client[InviteLinkRequest, InviteLinkResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append(rpc.ClientOptions(), opts...)
	return &Client{
		createRoom:     connect.NewClient[CreateRoomRequest, CreateRoomResponse](httpClient, baseURL+CreateRoomProcedure, opts...),
		getRoom:        connect.NewClient[GetRoomRequest, GetRoomResponse](httpClient, baseURL+GetRoomProcedure, opts...),
		listRooms:      connect.NewClient[ListRoomsRequest, ListRoomsResponse](httpClient, baseURL+ListRoomsProcedure, opts...),
		listDecks:      connect.NewClient[ListDecksRequest, ListDecksResponse](httpClient, baseURL+ListDecksProcedure, opts...),
		listCharacters: connect.NewClient[ListCharactersRequest, ListCharactersResponse](httpClient, baseURL+ListCharactersProcedure, opts...),
		inviteLink:     connect.NewClient[InviteLinkRequest, InviteLinkResponse](httpClient, baseURL+InviteLinkProcedure, opts...),
	}
}

func (c *Client) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomRequest]) (*connect.Response[CreateRoomResponse], error) {
	return c.createRoom.CallUnary(ctx, req)
}

func (c *Client) GetRoom(ctx context.Context, req *connect.Request[GetRoomRequest]) (*connect.Response[GetRoomResponse], error) {
	return c.getRoom.CallUnary(ctx, req)
}

func (c *Client) ListRooms(ctx context.Context, req *connect.Request[ListRoomsRequest]) (*connect.Response[ListRoomsResponse], error) {
	return c.listRooms.CallUnary(ctx, req)
}

func (c *Client) ListDecks(ctx context.Context, req *connect.Request[ListDecksRequest]) (*connect.Response[ListDecksResponse], error) {
	return c.listDecks.CallUnary(ctx, req)
}

func (c *Client) ListCharacters(ctx context.Context, req *connect.Request[ListCharactersRequest]) (*connect.Response[ListCharactersResponse], error) {
	return c.listCharacters.CallUnary(ctx, req)
}

func (c *Client) InviteLink(ctx context.Context, req *connect.Request[InviteLinkRequest]) (*connect.Response[InviteLinkResponse], error) {
	return c.inviteLink.CallUnary(ctx, req)
}
