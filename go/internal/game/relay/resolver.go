package relay

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/game/events"
	"github.com/mcdev12/gambit/go/internal/game/session"
	"github.com/mcdev12/gambit/go/internal/models"
)

// GameFinder looks up the live or paused game of a user in durable storage.
// Returns session.ErrGameNotFound when the user has none.
type GameFinder interface {
	FindActiveGame(ctx context.Context, userID uuid.UUID) (*models.GameSession, error)
}

// Resolver brings a joining or reconnecting connection back in sync with a
// live game. The snapshot goes to the single joining connection; other
// connections in the room see nothing. Joining a game whose clock already
// runs leaves the clock untouched.
type Resolver struct {
	store       *session.Store
	finder      GameFinder
	clock       ClockController
	presence    PresenceNotifier
	broadcaster events.Broadcaster
}

func NewResolver(store *session.Store, finder GameFinder, clock ClockController, presence PresenceNotifier, broadcaster events.Broadcaster) *Resolver {
	return &Resolver{
		store:       store,
		finder:      finder,
		clock:       clock,
		presence:    presence,
		broadcaster: broadcaster,
	}
}

// ResumeActive re-attaches a freshly connected user to their in-flight game,
// if any: the durable store is queried for an active or paused game and the
// connection is put through the normal join path. A user with no game in
// flight is not an error.
func (r *Resolver) ResumeActive(ctx context.Context, userID uuid.UUID, connectionID string) error {
	if r.finder == nil {
		return nil
	}
	g, err := r.finder.FindActiveGame(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrGameNotFound) {
			return nil
		}
		return err
	}
	return r.HandleJoin(ctx, userID, g.ID, connectionID)
}

// HandleJoin hydrates the session if needed, replays the full state to the
// joining connection and ensures the clock is running for an active game.
// The clock start is idempotent, so a reconnect mid-game changes nothing.
func (r *Resolver) HandleJoin(ctx context.Context, userID, gameID uuid.UUID, connectionID string) error {
	g, err := r.store.Load(ctx, gameID)
	if err != nil {
		return err
	}
	side, ok := g.SideOf(userID)
	if !ok {
		return session.ErrNotAParticipant
	}

	r.sendSnapshot(g, connectionID)
	r.broadcaster.ToRoom(gameID.String(), events.New(events.EventTypePlayerJoined, gameID.String(), events.PlayerJoinedPayload{
		GameID: gameID.String(),
		UserID: userID.String(),
		Side:   side,
	}))

	if g.Status == models.GameStatusActive {
		if err := r.clock.Start(ctx, gameID); err != nil {
			return err
		}
		if r.presence != nil {
			r.presence.ForceInGame(ctx, userID)
		}
	}

	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Str("connection_id", connectionID).
		Msg("connection joined game room")
	return nil
}

// RequestState replays the current snapshot to one connection without
// touching the clock or presence.
func (r *Resolver) RequestState(ctx context.Context, userID, gameID uuid.UUID, connectionID string) error {
	g, err := r.store.Load(ctx, gameID)
	if err != nil {
		return err
	}
	if _, ok := g.SideOf(userID); !ok {
		return session.ErrNotAParticipant
	}
	r.sendSnapshot(g, connectionID)
	return nil
}

func (r *Resolver) sendSnapshot(g *models.GameSession, connectionID string) {
	moves := r.store.Moves(g.ID)
	stateMoves := make([]events.StateMove, 0, len(moves))
	for _, m := range moves {
		stateMoves = append(stateMoves, events.StateMove{
			MoveNumber:        m.MoveNumber,
			Side:              m.Side,
			Notation:          m.Notation,
			ResultingPosition: m.ResultingPosition,
		})
	}

	stateGame := events.StateGame{
		GameID:               g.ID.String(),
		WhiteUserID:          g.WhiteUserID.String(),
		BlackUserID:          g.BlackUserID.String(),
		Status:               g.Status,
		BoardPosition:        g.BoardPosition,
		ActiveSide:           g.ActiveSide,
		WhiteTimeLeftSeconds: g.WhiteTimeLeft,
		BlackTimeLeftSeconds: g.BlackTimeLeft,
		TimeControl:          g.TimeControl,
	}
	if g.DrawOfferedBy != nil {
		stateGame.DrawOfferedBy = g.DrawOfferedBy.String()
	}

	r.broadcaster.ToConnection(connectionID, events.New(events.EventTypeState, g.ID.String(), events.StatePayload{
		Game:  stateGame,
		Moves: stateMoves,
	}))
}
