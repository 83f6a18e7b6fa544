package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/auth"
	"github.com/mcdev12/gambit/go/internal/game/clock"
	"github.com/mcdev12/gambit/go/internal/game/events"
	"github.com/mcdev12/gambit/go/internal/game/gateway"
	"github.com/mcdev12/gambit/go/internal/game/relay"
	"github.com/mcdev12/gambit/go/internal/game/repository"
	"github.com/mcdev12/gambit/go/internal/game/rules"
	"github.com/mcdev12/gambit/go/internal/game/session"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/presence"
)

type Services struct {
	Repo     *repository.Repository
	Store    *session.Store
	Registry *presence.Registry
	Presence *presence.Broadcaster
	Clock    *clock.Engine
	Relay    *relay.Relay
	Resolver *relay.Resolver

	Manager   *gateway.ConnectionManager
	WSHandler *gateway.WebSocketHandler

	Bridge   *gateway.BridgedBroadcaster
	Consumer *gateway.EventConsumer
}

func setupServices(cfg *Config, database *sql.DB, rdb *redis.Client) (*Services, error) {
	// Wire up dependency injection chain
	// Repository → session store → engines → gateway

	repo := repository.NewRepository(database)
	store := session.NewStore(repo)

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	// With NATS enabled, events fan out across nodes; otherwise delivery is
	// local only.
	var broadcaster events.Broadcaster = manager
	var bridge *gateway.BridgedBroadcaster
	var consumer *gateway.EventConsumer
	if cfg.NATS.Enabled {
		nodeID := cfg.Gateway.NodeID
		jsCfg := gateway.DefaultJetStreamConfig(nodeID)
		if cfg.NATS.URL != "" {
			jsCfg.URL = cfg.NATS.URL
		}

		var err error
		bridge, err = gateway.NewBridgedBroadcaster(manager, nodeID, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("setup NATS bridge: %w", err)
		}
		consumer, err = gateway.NewEventConsumer(manager, nodeID, jsCfg)
		if err != nil {
			bridge.Close()
			return nil, fmt.Errorf("setup NATS consumer: %w", err)
		}
		broadcaster = bridge
	}

	registry := presence.NewRegistry()
	statusStore := presence.NewRedisStatusStore(rdb)
	presenceBroadcaster := presence.NewBroadcaster(registry, statusStore, repo, store, broadcaster)

	clockEngine := clock.NewEngine(store, broadcaster, presenceBroadcaster, clockwork.NewRealClock())
	validator := rules.NewChessValidator()
	gameRelay := relay.NewRelay(store, validator, clockEngine, presenceBroadcaster, broadcaster)
	resolver := relay.NewResolver(store, repo, clockEngine, presenceBroadcaster, broadcaster)

	dispatcher := gateway.NewDispatcher(manager, registry, presenceBroadcaster, gameRelay, resolver)
	manager.SetSessionHandler(dispatcher)

	authenticator := auth.NewJWTAuthenticator([]byte(getEnv("JWT_SIGNING_KEY", "")))
	wsHandler := gateway.NewWebSocketHandler(manager, authenticator)

	return &Services{
		Repo:      repo,
		Store:     store,
		Registry:  registry,
		Presence:  presenceBroadcaster,
		Clock:     clockEngine,
		Relay:     gameRelay,
		Resolver:  resolver,
		Manager:   manager,
		WSHandler: wsHandler,
		Bridge:    bridge,
		Consumer:  consumer,
	}, nil
}

// reconcile rebuilds in-memory state from the durable store after a
// restart: active games get their timers back, paused games are hydrated
// and wait for a resume.
func reconcile(ctx context.Context, services *Services) error {
	games, err := services.Repo.ListActiveGames(ctx)
	if err != nil {
		return fmt.Errorf("list active games: %w", err)
	}

	for _, g := range games {
		if g.Status == models.GameStatusActive {
			if err := services.Clock.Start(ctx, g.ID); err != nil {
				log.Error().Err(err).Str("game_id", g.ID.String()).Msg("failed to restart game clock")
			}
			continue
		}
		if _, err := services.Store.Load(ctx, g.ID); err != nil {
			log.Error().Err(err).Str("game_id", g.ID.String()).Msg("failed to hydrate paused game")
		}
	}

	// Runs after clock restarts so users whose games came back stay in-game.
	if err := services.Presence.CleanupStale(ctx); err != nil {
		log.Error().Err(err).Msg("failed to clean up stale presence statuses")
	}

	log.Info().Int("games", len(games)).Msg("reconciled live games from durable store")
	return nil
}
