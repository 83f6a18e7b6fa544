package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GameEvent is the envelope for every outbound event produced by the core.
type GameEvent struct {
	ID        string          `json:"id"`        // Event UUID
	GameID    string          `json:"game_id"`   // Game UUID, empty for presence events
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of game event.
type EventType string

const (
	EventTypeClockUpdate         EventType = "clockUpdate"
	EventTypeMoveMade            EventType = "moveMade"
	EventTypeTurnUpdate          EventType = "turnUpdate"
	EventTypeGameTimeout         EventType = "gameTimeout"
	EventTypeGameEnded           EventType = "gameEnded"
	EventTypeMoveConfirmed       EventType = "moveConfirmed"
	EventTypeFriendStatusChanged EventType = "friendStatusChanged"
	EventTypeState               EventType = "state"
	EventTypePlayerJoined        EventType = "playerJoined"
	EventTypeDrawOffered         EventType = "drawOffered"
	EventTypeDrawDeclined        EventType = "drawDeclined"
	EventTypeGamePaused          EventType = "gamePaused"
	EventTypeGameResumed         EventType = "gameResumed"
	EventTypePong                EventType = "pong"
	EventTypeError               EventType = "error"
)

// New builds a GameEvent envelope around a payload.
func New(eventType EventType, gameID string, payload any) *GameEvent {
	data, _ := json.Marshal(payload)
	return &GameEvent{
		ID:        uuid.New().String(),
		GameID:    gameID,
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
