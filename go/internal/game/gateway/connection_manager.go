package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/game/events"
)

// SessionHandler receives connection lifecycle and inbound message
// callbacks from the manager. The dispatcher implements it.
type SessionHandler interface {
	HandleConnect(ctx context.Context, conn *Connection)
	HandleDisconnect(ctx context.Context, conn *Connection)
	HandleMessage(ctx context.Context, conn *Connection, raw []byte)
}

// ConnectionManager manages WebSocket connections, their game room
// memberships and per-user personal channels. It implements
// events.Broadcaster for local delivery.
type ConnectionManager struct {
	// Connection pools organized by game room and by user
	roomConnections map[string]map[*Connection]bool
	userConnections map[string]map[*Connection]bool
	connectionsByID map[string]*Connection
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  SessionHandler

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client.
type Connection struct {
	ID      string
	UserID  uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message queued for delivery. Exactly one of
// Room, UserID or ConnectionID is set.
type BroadcastMessage struct {
	Room         string
	UserID       string
	ConnectionID string
	Event        *events.GameEvent
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		userConnections: make(map[string]map[*Connection]bool),
		connectionsByID: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetSessionHandler wires the inbound dispatcher. Must be called before any
// connection is upgraded.
func (cm *ConnectionManager) SetSessionHandler(handler SessionHandler) {
	cm.handler = handler
}

// Start begins processing queued broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket for an
// authenticated user. Room membership starts empty; the client joins rooms
// with explicit messages.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)
	if cm.handler != nil {
		cm.handler.HandleConnect(r.Context(), connection)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID.String()).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the personal-channel pool.
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connectionsByID[conn.ID] = conn
	key := conn.UserID.String()
	if cm.userConnections[key] == nil {
		cm.userConnections[key] = make(map[*Connection]bool)
	}
	cm.userConnections[key][conn] = true
}

// unregisterConnection removes a connection from every pool it belongs to.
// Safe to call more than once for the same connection.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	if _, exists := cm.connectionsByID[conn.ID]; !exists {
		cm.mu.Unlock()
		return
	}
	delete(cm.connectionsByID, conn.ID)
	close(conn.Send)

	key := conn.UserID.String()
	if connections, exists := cm.userConnections[key]; exists {
		delete(connections, conn)
		if len(connections) == 0 {
			delete(cm.userConnections, key)
		}
	}
	for room, connections := range cm.roomConnections {
		if connections[conn] {
			delete(connections, conn)
			if len(connections) == 0 {
				delete(cm.roomConnections, room)
			}
		}
	}
	cm.mu.Unlock()

	if cm.handler != nil {
		cm.handler.HandleDisconnect(context.Background(), conn)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID.String()).
		Msg("connection unregistered")
}

// JoinRoom adds a connection to a game room. Joining a room the connection
// is already in is a no-op.
func (cm *ConnectionManager) JoinRoom(conn *Connection, gameID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[gameID] == nil {
		cm.roomConnections[gameID] = make(map[*Connection]bool)
	}
	cm.roomConnections[gameID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("game_id", gameID).
		Int("room_connections", len(cm.roomConnections[gameID])).
		Msg("connection joined room")
}

// LeaveRoom removes a connection from a game room. Leaving a room the
// connection never joined is a no-op.
func (cm *ConnectionManager) LeaveRoom(conn *Connection, gameID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.roomConnections[gameID]
	if !exists || !connections[conn] {
		return
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.roomConnections, gameID)
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("game_id", gameID).
		Msg("connection left room")
}

// ToRoom sends an event to all connections joined to a game room.
func (cm *ConnectionManager) ToRoom(gameID string, event *events.GameEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Room: gameID, Event: event}:
	default:
		log.Warn().Str("game_id", gameID).Msg("broadcast channel full, dropping room message")
	}
}

// ToUser sends an event to every connection of a user, independent of room
// membership.
func (cm *ConnectionManager) ToUser(userID string, event *events.GameEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{UserID: userID, Event: event}:
	default:
		log.Warn().Str("user_id", userID).Msg("broadcast channel full, dropping user message")
	}
}

// ToConnection sends an event to a single connection.
func (cm *ConnectionManager) ToConnection(connectionID string, event *events.GameEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{ConnectionID: connectionID, Event: event}:
	default:
		log.Warn().Str("connection_id", connectionID).Msg("broadcast channel full, dropping connection message")
	}
}

// handleBroadcast resolves a queued message to its target connections and
// delivers it.
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	var targetConnections []*Connection
	switch {
	case message.ConnectionID != "":
		if conn, exists := cm.connectionsByID[message.ConnectionID]; exists {
			targetConnections = append(targetConnections, conn)
		}
	case message.UserID != "":
		for conn := range cm.userConnections[message.UserID] {
			targetConnections = append(targetConnections, conn)
		}
	default:
		for conn := range cm.roomConnections[message.Room] {
			targetConnections = append(targetConnections, conn)
		}
	}
	cm.mu.RUnlock()

	if len(targetConnections) == 0 {
		return
	}

	// Marshal the event once
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targetConnections {
		select {
		case conn.Send <- eventData:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID.String()).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Int("connections", len(targetConnections)).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roomCounts := make(map[string]int)
	for gameID, connections := range cm.roomConnections {
		roomCounts[gameID] = len(connections)
	}

	return map[string]interface{}{
		"total_connections": len(cm.connectionsByID),
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(context.Background(), c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
