package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Warn().Err(err).Msg("could not load config file, using defaults")
		cfg = &Config{}
	}
	if cfg.Gateway.NodeID == "" {
		hostname, _ := os.Hostname()
		cfg.Gateway.NodeID = hostname
	}

	database, err := setupDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer database.Close()

	rdb, err := setupRedis()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup redis")
	}
	defer rdb.Close()

	services, err := setupServices(cfg, database, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := services.Repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure database schema")
	}

	go services.Manager.Start(ctx)
	go services.Clock.RunSweep(ctx)
	if services.Consumer != nil {
		go func() {
			if err := services.Consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	if err := reconcile(ctx, services); err != nil {
		log.Fatal().Err(err).Msg("failed to reconcile live games")
	}

	server := setupServer(services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	services.Clock.Shutdown()
	services.Store.Flush()
	if services.Consumer != nil {
		services.Consumer.Close()
	}
	if services.Bridge != nil {
		services.Bridge.Close()
	}
	log.Info().Msg("shutdown complete")
}
