package events

import (
	"time"

	"github.com/mcdev12/gambit/go/internal/models"
)

// Event payload types shared between the engine packages and the gateway.

// ClockUpdatePayload is the payload for a ClockUpdate event.
type ClockUpdatePayload struct {
	WhiteTimeLeftSeconds int         `json:"white_time_left_seconds"`
	BlackTimeLeftSeconds int         `json:"black_time_left_seconds"`
	ActiveSide           models.Side `json:"active_side"`
	ServerTime           time.Time   `json:"server_time"`
}

// MoveMadePayload is the payload for a MoveMade event.
type MoveMadePayload struct {
	GameID            string      `json:"game_id"`
	Notation          string      `json:"notation"`
	ResultingPosition string      `json:"resulting_position"`
	MovedBy           models.Side `json:"moved_by"`
	NewActiveSide     models.Side `json:"new_active_side"`
	MoveNumber        int         `json:"move_number"`
}

// TurnUpdatePayload is the payload for a TurnUpdate event.
type TurnUpdatePayload struct {
	GameID     string      `json:"game_id"`
	ActiveSide models.Side `json:"active_side"`
}

// PlayerJoinedPayload announces to a room that a participant's connection
// joined it.
type PlayerJoinedPayload struct {
	GameID string      `json:"game_id"`
	UserID string      `json:"user_id"`
	Side   models.Side `json:"side"`
}

// GameTimeoutPayload is the payload for a GameTimeout event.
type GameTimeoutPayload struct {
	GameID       string      `json:"game_id"`
	TimedOutSide models.Side `json:"timed_out_side"`
	WinnerSide   models.Side `json:"winner_side"`
}

// GameEndedPayload is the payload for a GameEnded event (terminal outcomes
// other than timeout: checkmate, stalemate, resignation, agreed draw).
type GameEndedPayload struct {
	GameID     string                   `json:"game_id"`
	Reason     models.TerminationReason `json:"reason"`
	WinnerSide *models.Side             `json:"winner_side,omitempty"`
}

// MoveConfirmedPayload is the payload for a MoveConfirmed event, delivered
// to the mover's personal channel only.
type MoveConfirmedPayload struct {
	GameID   string `json:"game_id"`
	Notation string `json:"notation"`
}

// FriendStatusChangedPayload is the payload for a FriendStatusChanged event.
type FriendStatusChangedPayload struct {
	UserID    string            `json:"user_id"`
	Status    models.UserStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
}

// StatePayload is the full game snapshot replayed to a single connection
// on join, reconnect, or explicit request.
type StatePayload struct {
	Game  StateGame   `json:"game"`
	Moves []StateMove `json:"moves"`
}

// StateGame is the session portion of a state snapshot.
type StateGame struct {
	GameID               string             `json:"game_id"`
	WhiteUserID          string             `json:"white_user_id"`
	BlackUserID          string             `json:"black_user_id"`
	Status               models.GameStatus  `json:"status"`
	BoardPosition        string             `json:"board_position"`
	ActiveSide           models.Side        `json:"active_side"`
	WhiteTimeLeftSeconds int                `json:"white_time_left_seconds"`
	BlackTimeLeftSeconds int                `json:"black_time_left_seconds"`
	TimeControl          models.TimeControl `json:"time_control"`
	DrawOfferedBy        string             `json:"draw_offered_by,omitempty"`
}

// StateMove is one recorded move inside a state snapshot.
type StateMove struct {
	MoveNumber        int         `json:"move_number"`
	Side              models.Side `json:"side"`
	Notation          string      `json:"notation"`
	ResultingPosition string      `json:"resulting_position"`
}

// DrawOfferPayload is the payload for DrawOffered and DrawDeclined events.
type DrawOfferPayload struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
}

// PauseStatePayload is the payload for GamePaused and GameResumed events.
type PauseStatePayload struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
}

// ErrorPayload is the payload for an Error event, delivered only to the
// originating connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
