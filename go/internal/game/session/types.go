package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mcdev12/gambit/go/internal/models"
)

// Rejection errors surfaced to the submitting connection only. They never
// cause a broadcast or a state change.
var (
	ErrGameNotFound    = errors.New("game not found")
	ErrGameNotActive   = errors.New("game is not active")
	ErrNotPlayersTurn  = errors.New("not this player's turn")
	ErrNotAParticipant = errors.New("user is not a participant of this game")
	ErrDrawNotOffered  = errors.New("no draw offer pending")
	ErrGameNotPaused   = errors.New("game is not paused")
)

// DurableStore is the narrow durable-storage surface the session store
// checkpoints through. Failures are treated as transient: retried a fixed
// number of times, then logged and abandoned. In-memory state stays
// authoritative for active play; the durable copy exists for crash recovery.
type DurableStore interface {
	// GetGame loads a game row, or ErrGameNotFound.
	GetGame(ctx context.Context, gameID uuid.UUID) (*models.GameSession, error)
	// ListMoves returns all recorded moves of a game ordered by move number.
	ListMoves(ctx context.Context, gameID uuid.UUID) ([]models.Move, error)
	// AppendMove records one move.
	AppendMove(ctx context.Context, move *models.Move) error
	// PersistGameTiming checkpoints the timing, turn and position fields.
	PersistGameTiming(ctx context.Context, game *models.GameSession) error
	// CompleteGame writes the terminal state of a finished game.
	CompleteGame(ctx context.Context, game *models.GameSession) error
}

// AppliedMove is the result of a successful ApplyMove: the recorded move and
// a snapshot of the session after the turn flip.
type AppliedMove struct {
	Move    models.Move
	Session models.GameSession
}
