package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/config"
	"github.com/mcdev12/scrumscope/go/internal/dbconfig"
	"github.com/mcdev12/scrumscope/go/internal/migrations"
	"github.com/mcdev12/scrumscope/go/internal/realtime"
	"github.com/mcdev12/scrumscope/go/internal/store"
	"github.com/mcdev12/scrumscope/go/internal/store/memory"
	"github.com/mcdev12/scrumscope/go/internal/store/postgres"
)

// Storage is the store and change feed the sessions run on.
type Storage struct {
	Store store.Store
	Feed  store.ChangeFeed
	close []func()
}

func (s *Storage) Close() {
	for i := len(s.close) - 1; i >= 0; i-- {
		s.close[i]()
	}
}

func setupStorage(ctx context.Context, cfg config.Config, clock clockwork.Clock) (*Storage, error) {
	if cfg.StoreDriver == config.DriverMemory {
		st := memory.New(clock)
		log.Info().Msg("using in-memory store")
		return &Storage{Store: st, Feed: st}, nil
	}

	storage := &Storage{}
	dbCfg := dbconfig.NewConfigFromEnv()
	dsn := dbCfg.DSN()

	if err := migrations.Up(ctx, dsn); err != nil {
		return nil, err
	}

	repo, err := postgres.NewRepository(ctx, dsn)
	if err != nil {
		return nil, err
	}
	storage.Store = repo
	storage.close = append(storage.close, repo.Close)
	log.Info().Str("dsn", dbCfg.Redacted()).Msg("connected to database")

	jsCfg := realtime.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	nc, js, err := realtime.Connect(ctx, jsCfg)
	if err != nil {
		storage.Close()
		return nil, err
	}
	storage.Feed = realtime.NewFeed(js, jsCfg)
	storage.close = append(storage.close, nc.Close)

	if cfg.RunRelay {
		if err := startRelay(ctx, storage, dsn, js, jsCfg, clock); err != nil {
			storage.Close()
			return nil, err
		}
	}
	return storage, nil
}

func startRelay(ctx context.Context, storage *Storage, dsn string, js jetstream.JetStream, jsCfg realtime.JetStreamConfig, clock clockwork.Clock) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database for relay: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database for relay: %w", err)
	}

	relay, err := realtime.NewPostgresRelay(db, dsn, js, jsCfg, realtime.DefaultRelayConfig(), clock)
	if err != nil {
		_ = db.Close()
		return err
	}

	relayCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Start(relayCtx); err != nil {
			log.Error().Err(err).Msg("relay exited")
		}
	}()
	storage.close = append(storage.close, func() {
		cancel()
		<-done
		_ = db.Close()
	})
	log.Info().Msg("outbox relay running in process")
	return nil
}
