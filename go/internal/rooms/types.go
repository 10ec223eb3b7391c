package rooms

import "github.com/mcdev12/scrumscope/go/internal/models"

type CreateRoomRequest struct {
	Name string `json:"name"`
	Deck string `json:"deck,omitempty"`
}

type CreateRoomResponse struct {
	Room      models.Room `json:"room"`
	InviteURL string      `json:"invite_url"`
}

type GetRoomRequest struct {
	ID string `json:"id"`
}

type GetRoomResponse struct {
	Room models.Room `json:"room"`
	Deck models.Deck `json:"deck"`
}

type ListRoomsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListRoomsResponse struct {
	Rooms []models.RoomSummary `json:"rooms"`
}

type ListDecksRequest struct{}

type ListDecksResponse struct {
	Decks []models.Deck `json:"decks"`
}

type ListCharactersRequest struct{}

type ListCharactersResponse struct {
	Characters []models.Character `json:"characters"`
}

type InviteLinkRequest struct {
	RoomID string `json:"room_id"`
}

type InviteLinkResponse struct {
	URL string `json:"url"`
}
