package models

import (
	"time"

	"github.com/google/uuid"
)

// Side identifies one of the two players in a game.
type Side string

const (
	SideWhite Side = "white"
	SideBlack Side = "black"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideWhite {
		return SideBlack
	}
	return SideWhite
}

// GameStatus defines the lifecycle status of a game session.
type GameStatus string

const (
	GameStatusActive    GameStatus = "active"
	GameStatusPaused    GameStatus = "paused"
	GameStatusCompleted GameStatus = "completed"
)

// TerminationReason records why a game ended.
type TerminationReason string

const (
	TerminationTimeout     TerminationReason = "timeout"
	TerminationCheckmate   TerminationReason = "checkmate"
	TerminationStalemate   TerminationReason = "stalemate"
	TerminationResignation TerminationReason = "resignation"
	TerminationDrawAgreed  TerminationReason = "draw_agreed"
)

// TimeControl defines the starting clock and per-move increment for a game.
type TimeControl string

const (
	TimeControlBullet    TimeControl = "bullet"
	TimeControlBlitz     TimeControl = "blitz"
	TimeControlRapid     TimeControl = "rapid"
	TimeControlClassical TimeControl = "classical"
)

// InitialSeconds returns the starting time per side for the control.
func (tc TimeControl) InitialSeconds() int {
	switch tc {
	case TimeControlBullet:
		return 60
	case TimeControlBlitz:
		return 300
	case TimeControlRapid:
		return 900
	case TimeControlClassical:
		return 1800
	default:
		return 300
	}
}

// IncrementSeconds returns the per-move increment for the control.
func (tc TimeControl) IncrementSeconds() int {
	switch tc {
	case TimeControlRapid:
		return 10
	case TimeControlClassical:
		return 30
	default:
		return 0
	}
}

// StartingFEN is the standard chess starting position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// GameSession is the authoritative record of one live game: both clocks,
// whose turn it is, and the current board position.
type GameSession struct {
	ID            uuid.UUID          `json:"id"`
	WhiteUserID   uuid.UUID          `json:"white_user_id"`
	BlackUserID   uuid.UUID          `json:"black_user_id"`
	WhiteTimeLeft int                `json:"white_time_left_seconds"`
	BlackTimeLeft int                `json:"black_time_left_seconds"`
	ActiveSide    Side               `json:"active_side"`
	BoardPosition string             `json:"board_position"`
	Status        GameStatus         `json:"status"`
	TimeControl   TimeControl        `json:"time_control"`
	MoveCount     int                `json:"move_count"`
	DrawOfferedBy *uuid.UUID         `json:"draw_offered_by,omitempty"`
	Winner        *Side              `json:"winner,omitempty"`
	Termination   *TerminationReason `json:"termination,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// SideOf resolves a user to their side in this game. The second return is
// false when the user is not a participant.
func (g *GameSession) SideOf(userID uuid.UUID) (Side, bool) {
	switch userID {
	case g.WhiteUserID:
		return SideWhite, true
	case g.BlackUserID:
		return SideBlack, true
	default:
		return "", false
	}
}

// TimeLeft returns the remaining seconds for a side.
func (g *GameSession) TimeLeft(side Side) int {
	if side == SideWhite {
		return g.WhiteTimeLeft
	}
	return g.BlackTimeLeft
}

// Move is one recorded move of a game. Moves are append-only and immutable
// once recorded; MoveNumber is strictly increasing per game.
type Move struct {
	GameID            uuid.UUID `json:"game_id"`
	MoveNumber        int       `json:"move_number"`
	Side              Side      `json:"side"`
	Notation          string    `json:"notation"`
	ResultingPosition string    `json:"resulting_position"`
	ServerTimestamp   time.Time `json:"server_timestamp"`
}
