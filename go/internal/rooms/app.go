package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

var (
	ErrInvalidName   = errors.New("room name must be between 1 and 80 characters")
	ErrUnknownDeck   = errors.New("unknown deck")
	ErrInvalidRoomID = errors.New("invalid room id")
)

const (
	maxNameLength    = 80
	defaultListLimit = 50
	maxListLimit     = 200
)

// App handles room business logic.
type App struct {
	repo       store.RoomStore
	decks      *models.DeckSet
	appBaseURL string
}

func NewApp(repo store.RoomStore, decks *models.DeckSet, appBaseURL string) *App {
	return &App{
		repo:       repo,
		decks:      decks,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
	}
}

// CreateRoom validates and stores a new room owned by creator.
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest, creator models.User) (models.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return models.Room{}, fmt.Errorf("validation failed: %w", ErrInvalidName)
	}
	deck := req.Deck
	if deck == "" {
		deck = models.DefaultDeckID
	}
	if !a.decks.Has(deck) {
		return models.Room{}, fmt.Errorf("validation failed: %w: %q", ErrUnknownDeck, deck)
	}

	room, err := a.repo.CreateRoom(ctx, models.Room{
		ID:        uuid.New(),
		Name:      name,
		CreatedBy: creator.ID,
		Deck:      deck,
	})
	if err != nil {
		return models.Room{}, fmt.Errorf("failed to create room: %w", err)
	}

	log.Info().
		Str("room_id", room.ID.String()).
		Str("user_id", creator.ID).
		Str("deck", room.Deck).
		Msg("room created")
	return room, nil
}

func (a *App) GetRoom(ctx context.Context, id uuid.UUID) (models.Room, error) {
	room, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return models.Room{}, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// ListRooms returns the most recent rooms. A limit of zero uses the default.
func (a *App) ListRooms(ctx context.Context, limit int) ([]models.RoomSummary, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	rooms, err := a.repo.ListRooms(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func (a *App) Deck(id string) models.Deck {
	return a.decks.Get(id)
}

func (a *App) Decks() []models.Deck {
	return a.decks.All()
}

func (a *App) Characters() []models.Character {
	return models.Characters()
}

// InviteURL returns the shareable link of an existing room.
func (a *App) InviteURL(ctx context.Context, id uuid.UUID) (string, error) {
	if _, err := a.GetRoom(ctx, id); err != nil {
		return "", err
	}
	return InviteURL(a.appBaseURL, id), nil
}

func InviteURL(appBaseURL string, id uuid.UUID) string {
	return fmt.Sprintf("%s/room/%s", strings.TrimRight(appBaseURL, "/"), id)
}

func parseRoomID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidRoomID, raw)
	}
	return id, nil
}
