package rules

import (
	"errors"

	"github.com/mcdev12/gambit/go/internal/models"
)

// ErrInvalidMove is returned when the rules engine rejects a move.
var ErrInvalidMove = errors.New("invalid move")

// MoveRequest is a player-submitted move before validation. From/To/Promotion
// carry the UCI coordinates; Notation is the optional SAN fallback. Both are
// treated as opaque strings until the rules engine has validated them.
type MoveRequest struct {
	From      string
	To        string
	Promotion string
	Notation  string
}

// Result is the outcome of applying a validated move to a position.
type Result struct {
	SAN      string
	FEN      string
	NextTurn models.Side

	// Terminal outcome, when the move ends the game.
	GameOver bool
	Winner   *models.Side
	Reason   models.TerminationReason
}

// Validator computes move legality and the resulting position. The engine
// core never derives chess legality itself; everything goes through here.
type Validator interface {
	// ValidateAndApply applies a move to the given FEN position and returns
	// the resulting position, or ErrInvalidMove if the move is illegal.
	ValidateAndApply(position string, move MoveRequest) (*Result, error)
}
