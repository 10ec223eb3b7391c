package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/dbconfig"
	"github.com/mcdev12/scrumscope/go/internal/realtime"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cfg := dbconfig.NewConfigFromEnv()
	dsn := cfg.DSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().Str("dsn", cfg.Redacted()).Msg("connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jsCfg := realtime.DefaultJetStreamConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		jsCfg.URL = url
	}
	nc, js, err := realtime.Connect(ctx, jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to JetStream")
	}
	defer nc.Close()

	relayCfg := realtime.DefaultRelayConfig()
	if iv := os.Getenv("FALLBACK_INTERVAL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			relayCfg.FallbackInterval = d
		}
	}

	clock := clockwork.NewRealClock()
	relay, err := realtime.NewPostgresRelay(db, dsn, js, jsCfg, relayCfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("create relay")
	}

	health := realtime.NewHealthChecker(relay, db, nc, realtime.NewSQLOutbox(db), clock, time.Minute)
	healthAddr := os.Getenv("HEALTH_ADDR")
	if healthAddr == "" {
		healthAddr = ":8081"
	}
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	healthServer := &http.Server{Addr: healthAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", healthAddr).Msg("serving relay health")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()
	defer healthServer.Close()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting outbox relay")
		errCh <- relay.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("relay stopped with error")
		}
		log.Info().Msg("graceful shutdown complete")
	case err := <-errCh:
		log.Error().Err(err).Msg("relay exited unexpectedly")
	}
}
