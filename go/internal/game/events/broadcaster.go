package events

// Broadcaster is the delivery surface the engine components emit through.
// The gateway's connection manager implements it for local delivery; the
// NATS bridge implements it for cross-node fan-out.
//
// All methods are fire-and-forget: a delivery failure to one recipient is
// logged by the implementation and never surfaced to the emitter.
type Broadcaster interface {
	// ToRoom delivers an event to every connection joined to game::{gameID}.
	ToRoom(gameID string, event *GameEvent)
	// ToUser delivers an event to every connection of user::{userID},
	// independent of room membership.
	ToUser(userID string, event *GameEvent)
	// ToConnection delivers an event to a single connection. Used for
	// reconnection snapshots and per-connection error events.
	ToConnection(connectionID string, event *GameEvent)
}
