package rooms

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mcdev12/scrumscope/go/internal/auth"
	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/rpc"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

const RoomServiceName = "scrumscope.v1.RoomService"

const (
	CreateRoomProcedure     = "/scrumscope.v1.RoomService/CreateRoom"
	GetRoomProcedure        = "/scrumscope.v1.RoomService/GetRoom"
	ListRoomsProcedure      = "/scrumscope.v1.RoomService/ListRooms"
	ListDecksProcedure      = "/scrumscope.v1.RoomService/ListDecks"
	ListCharactersProcedure = "/scrumscope.v1.RoomService/ListCharacters"
	InviteLinkProcedure     = "/scrumscope.v1.RoomService/InviteLink"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(token string) (models.User, error)
}

// Service implements the RoomService RPCs.
type Service struct {
	app  *App
	auth Authenticator
}

func NewService(app *App, authn Authenticator) *Service {
	return &Service{app: app, auth: authn}
}

// Handler returns the path prefix and handler to mount on a mux.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(rpc.HandlerOptions(), opts...)
	return rpc.Mux("/"+RoomServiceName+"/", map[string]http.Handler{
		CreateRoomProcedure:     connect.NewUnaryHandler(CreateRoomProcedure, s.CreateRoom, opts...),
		GetRoomProcedure:        connect.NewUnaryHandler(GetRoomProcedure, s.GetRoom, opts...),
		ListRoomsProcedure:      connect.NewUnaryHandler(ListRoomsProcedure, s.ListRooms, opts...),
		ListDecksProcedure:      connect.NewUnaryHandler(ListDecksProcedure, s.ListDecks, opts...),
		ListCharactersProcedure: connect.NewUnaryHandler(ListCharactersProcedure, s.ListCharacters, opts...),
		InviteLinkProcedure:     connect.NewUnaryHandler(InviteLinkProcedure, s.InviteLink, opts...),
	})
}

func (s *Service) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomRequest]) (*connect.Response[CreateRoomResponse], error) {
	user, err := s.auth.Authenticate(auth.BearerToken(req.Header()))
	if err != nil {
		return nil, toConnectError(err)
	}

	room, err := s.app.CreateRoom(ctx, *req.Msg, user)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&CreateRoomResponse{
		Room:      room,
		InviteURL: InviteURL(s.app.appBaseURL, room.ID),
	}), nil
}

func (s *Service) GetRoom(ctx context.Context, req *connect.Request[GetRoomRequest]) (*connect.Response[GetRoomResponse], error) {
	id, err := parseRoomID(req.Msg.ID)
	if err != nil {
		return nil, toConnectError(err)
	}

	room, err := s.app.GetRoom(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&GetRoomResponse{
		Room: room,
		Deck: s.app.Deck(room.Deck),
	}), nil
}

func (s *Service) ListRooms(ctx context.Context, req *connect.Request[ListRoomsRequest]) (*connect.Response[ListRoomsResponse], error) {
	rooms, err := s.app.ListRooms(ctx, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListRoomsResponse{Rooms: rooms}), nil
}

func (s *Service) ListDecks(ctx context.Context, req *connect.Request[ListDecksRequest]) (*connect.Response[ListDecksResponse], error) {
	return connect.NewResponse(&ListDecksResponse{Decks: s.app.Decks()}), nil
}

func (s *Service) ListCharacters(ctx context.Context, req *connect.Request[ListCharactersRequest]) (*connect.Response[ListCharactersResponse], error) {
	return connect.NewResponse(&ListCharactersResponse{Characters: s.app.Characters()}), nil
}

func (s *Service) InviteLink(ctx context.Context, req *connect.Request[InviteLinkRequest]) (*connect.Response[InviteLinkResponse], error) {
	id, err := parseRoomID(req.Msg.RoomID)
	if err != nil {
		return nil, toConnectError(err)
	}

	url, err := s.app.InviteURL(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&InviteLinkResponse{URL: url}), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrUnknownDeck), errors.Is(err, ErrInvalidRoomID):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, store.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return connect.NewError(connect.CodeUnauthenticated, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
