package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	storage, err := setupStorage(ctx, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("setup storage")
	}
	defer storage.Close()

	services, err := setupServices(cfg, storage, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("setup services")
	}

	server := setupServer(cfg.Port, services)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Bool("dev_mode", cfg.Auth.DevMode).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	// hijacked websocket connections are not tracked by the server
	services.Connections.Close(shutdownCtx)
	log.Info().Msg("graceful shutdown complete")
}
