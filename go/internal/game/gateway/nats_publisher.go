package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/game/events"
)

// JetStreamConfig holds configuration shared by the event publisher and
// consumer.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectPrefix string // e.g. "game.events"
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConfig returns default JetStream configuration.
func DefaultJetStreamConfig(nodeID string) JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "GAME_EVENTS",
		ConsumerName:  "game-gateway-" + nodeID,
		SubjectPrefix: "game.events",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// bridgeEnvelope wraps an event for cross-node transport. Origin lets each
// node skip the events it published itself, since those were already
// delivered locally.
type bridgeEnvelope struct {
	Origin string            `json:"origin"`
	Scope  string            `json:"scope"` // "room" or "user"
	Target string            `json:"target"`
	Event  *events.GameEvent `json:"event"`
}

// BridgedBroadcaster delivers events to local connections and republishes
// room and user events to JetStream so peer nodes can deliver them to their
// own connections. Connection-scoped events stay local: connection ids are
// meaningless on other nodes.
type BridgedBroadcaster struct {
	local  *ConnectionManager
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
	nodeID string
}

// NewBridgedBroadcaster connects to NATS, ensures the event stream exists
// and returns a broadcaster that fans out across nodes.
func NewBridgedBroadcaster(local *ConnectionManager, nodeID string, config JetStreamConfig) (*BridgedBroadcaster, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     config.StreamName,
		Subjects: []string{config.SubjectPrefix + ".>"},
		MaxAge:   time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &BridgedBroadcaster{
		local:  local,
		nc:     nc,
		js:     js,
		config: config,
		nodeID: nodeID,
	}, nil
}

func (b *BridgedBroadcaster) ToRoom(gameID string, event *events.GameEvent) {
	b.local.ToRoom(gameID, event)
	b.publish("room", gameID, event)
}

func (b *BridgedBroadcaster) ToUser(userID string, event *events.GameEvent) {
	b.local.ToUser(userID, event)
	b.publish("user", userID, event)
}

func (b *BridgedBroadcaster) ToConnection(connectionID string, event *events.GameEvent) {
	b.local.ToConnection(connectionID, event)
}

func (b *BridgedBroadcaster) publish(scope, target string, event *events.GameEvent) {
	envelope := bridgeEnvelope{
		Origin: b.nodeID,
		Scope:  scope,
		Target: target,
		Event:  event,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal bridge envelope")
		return
	}

	subject := b.config.SubjectPrefix + "." + target
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Str("event_type", string(event.Type)).
			Msg("failed to publish event to JetStream")
	}
}

// Close drains the NATS connection.
func (b *BridgedBroadcaster) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
