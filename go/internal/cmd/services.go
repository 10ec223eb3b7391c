package main

import (
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/scrumscope/go/internal/auth"
	"github.com/mcdev12/scrumscope/go/internal/config"
	"github.com/mcdev12/scrumscope/go/internal/gateway"
	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/rooms"
	"github.com/mcdev12/scrumscope/go/internal/session"
)

type Services struct {
	Rooms       *rooms.Service
	Auth        *auth.Service
	WebSocket   *gateway.WebSocketHandler
	Connections *gateway.ConnectionManager
}

func setupServices(cfg config.Config, storage *Storage, clock clockwork.Clock) (*Services, error) {
	// Store → App → Service, and Store → Synchronizer → Gateway

	decks, err := models.NewDeckSet(cfg.Decks...)
	if err != nil {
		return nil, err
	}

	authn := auth.NewAuthenticator(auth.Config{
		Secret:  cfg.Auth.JWTSecret,
		TTL:     cfg.Auth.TokenTTL,
		DevMode: cfg.Auth.DevMode,
	}, clock)

	roomsApp := rooms.NewApp(storage.Store, decks, cfg.AppBaseURL)

	sessionCfg := session.DefaultConfig()
	sessionCfg.WriteTimeout = cfg.Session.WriteTimeout
	synchronizer := session.NewSynchronizer(storage.Store, storage.Feed, decks, sessionCfg)

	connections := gateway.NewConnectionManager(synchronizer, gateway.DefaultConnectionConfig(), clock)

	return &Services{
		Rooms:       rooms.NewService(roomsApp, authn),
		Auth:        auth.NewService(authn),
		WebSocket:   gateway.NewWebSocketHandler(connections, authn),
		Connections: connections,
	}, nil
}
