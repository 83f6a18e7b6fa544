package relay

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/game/events"
	"github.com/mcdev12/gambit/go/internal/game/rules"
	"github.com/mcdev12/gambit/go/internal/game/session"
	"github.com/mcdev12/gambit/go/internal/models"
)

// ClockController is the clock engine surface the relay drives.
type ClockController interface {
	Start(ctx context.Context, gameID uuid.UUID) error
	Stop(gameID uuid.UUID)
	SwitchTurn(gameID uuid.UUID, newActiveSide models.Side) (*models.GameSession, error)
}

// PresenceNotifier updates the friends-visible status of players as their
// games start and end.
type PresenceNotifier interface {
	ForceInGame(ctx context.Context, userID uuid.UUID)
	ReleaseInGame(ctx context.Context, userID uuid.UUID)
}

// Relay validates player-submitted game actions, applies them to the
// session store and fans the results out. Rejections return a sentinel
// error to the caller and never broadcast.
type Relay struct {
	store       *session.Store
	rules       rules.Validator
	clock       ClockController
	presence    PresenceNotifier
	broadcaster events.Broadcaster
}

func NewRelay(store *session.Store, validator rules.Validator, clock ClockController, presence PresenceNotifier, broadcaster events.Broadcaster) *Relay {
	return &Relay{
		store:       store,
		rules:       validator,
		clock:       clock,
		presence:    presence,
		broadcaster: broadcaster,
	}
}

// SubmitMove runs the full move pipeline: participant and turn checks,
// rules validation, session mutation, clock switch and broadcast. The
// mutation inside the store re-validates turn ownership, so two concurrent
// submissions for the same position admit exactly one move.
func (r *Relay) SubmitMove(ctx context.Context, userID, gameID uuid.UUID, move rules.MoveRequest) error {
	g, err := r.store.Get(gameID)
	if err != nil {
		return err
	}
	side, ok := g.SideOf(userID)
	if !ok {
		return session.ErrNotAParticipant
	}
	if g.Status != models.GameStatusActive {
		return session.ErrGameNotActive
	}
	if g.ActiveSide != side {
		return session.ErrNotPlayersTurn
	}

	result, err := r.rules.ValidateAndApply(g.BoardPosition, move)
	if err != nil {
		return err
	}

	applied, err := r.store.ApplyMove(ctx, gameID, side, result.SAN, result.FEN)
	if err != nil {
		return err
	}

	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Str("side", string(side)).
		Str("notation", result.SAN).
		Int("move_number", applied.Move.MoveNumber).
		Msg("move applied")

	moveMade := events.New(events.EventTypeMoveMade, gameID.String(), events.MoveMadePayload{
		GameID:            gameID.String(),
		Notation:          result.SAN,
		ResultingPosition: result.FEN,
		MovedBy:           side,
		NewActiveSide:     result.NextTurn,
		MoveNumber:        applied.Move.MoveNumber,
	})
	r.broadcaster.ToRoom(gameID.String(), moveMade)
	r.broadcaster.ToUser(applied.Session.WhiteUserID.String(), moveMade)
	r.broadcaster.ToUser(applied.Session.BlackUserID.String(), moveMade)

	r.broadcaster.ToUser(userID.String(), events.New(events.EventTypeMoveConfirmed, gameID.String(), events.MoveConfirmedPayload{
		GameID:   gameID.String(),
		Notation: result.SAN,
	}))

	if result.GameOver {
		return r.finish(ctx, gameID, result.Reason, result.Winner)
	}

	if _, err := r.clock.SwitchTurn(gameID, result.NextTurn); err != nil {
		return err
	}
	r.broadcaster.ToRoom(gameID.String(), events.New(events.EventTypeTurnUpdate, gameID.String(), events.TurnUpdatePayload{
		GameID:     gameID.String(),
		ActiveSide: result.NextTurn,
	}))
	return nil
}

// Resign terminates the game in favor of the resigner's opponent. Allowed
// while the game is active or paused.
func (r *Relay) Resign(ctx context.Context, userID, gameID uuid.UUID) error {
	g, err := r.store.Get(gameID)
	if err != nil {
		return err
	}
	side, ok := g.SideOf(userID)
	if !ok {
		return session.ErrNotAParticipant
	}
	if g.Status == models.GameStatusCompleted {
		return session.ErrGameNotActive
	}

	winner := side.Opponent()
	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Str("side", string(side)).
		Msg("player resigned")
	return r.finish(ctx, gameID, models.TerminationResignation, &winner)
}

// OfferDraw records a pending draw offer and announces it to the room.
func (r *Relay) OfferDraw(ctx context.Context, userID, gameID uuid.UUID) error {
	g, err := r.store.Get(gameID)
	if err != nil {
		return err
	}
	if _, ok := g.SideOf(userID); !ok {
		return session.ErrNotAParticipant
	}

	if _, err := r.store.OfferDraw(gameID, userID); err != nil {
		return err
	}
	r.broadcaster.ToRoom(gameID.String(), events.New(events.EventTypeDrawOffered, gameID.String(), events.DrawOfferPayload{
		GameID: gameID.String(),
		UserID: userID.String(),
	}))
	return nil
}

// RespondDraw accepts or declines a pending draw offer. Only the side that
// did not make the offer may respond.
func (r *Relay) RespondDraw(ctx context.Context, userID, gameID uuid.UUID, accept bool) error {
	g, err := r.store.Get(gameID)
	if err != nil {
		return err
	}
	if _, ok := g.SideOf(userID); !ok {
		return session.ErrNotAParticipant
	}
	if g.DrawOfferedBy == nil || *g.DrawOfferedBy == userID {
		return session.ErrDrawNotOffered
	}

	if accept {
		log.Info().Str("game_id", gameID.String()).Str("user_id", userID.String()).Msg("draw accepted")
		return r.finish(ctx, gameID, models.TerminationDrawAgreed, nil)
	}

	if _, err := r.store.ClearDraw(gameID); err != nil {
		return err
	}
	r.broadcaster.ToRoom(gameID.String(), events.New(events.EventTypeDrawDeclined, gameID.String(), events.DrawOfferPayload{
		GameID: gameID.String(),
		UserID: userID.String(),
	}))
	return nil
}

// Pause freezes an active game and its clock.
func (r *Relay) Pause(ctx context.Context, userID, gameID uuid.UUID) error {
	g, err := r.store.Get(gameID)
	if err != nil {
		return err
	}
	if _, ok := g.SideOf(userID); !ok {
		return session.ErrNotAParticipant
	}
	if g.Status != models.GameStatusActive {
		return session.ErrGameNotActive
	}

	if _, err := r.store.SetStatus(gameID, models.GameStatusPaused); err != nil {
		return err
	}
	r.clock.Stop(gameID)
	r.store.Checkpoint(ctx, gameID)

	log.Info().Str("game_id", gameID.String()).Str("user_id", userID.String()).Msg("game paused")
	r.broadcaster.ToRoom(gameID.String(), events.New(events.EventTypeGamePaused, gameID.String(), events.PauseStatePayload{
		GameID: gameID.String(),
		UserID: userID.String(),
	}))
	return nil
}

// Resume reactivates a paused game and restarts its clock.
func (r *Relay) Resume(ctx context.Context, userID, gameID uuid.UUID) error {
	g, err := r.store.Get(gameID)
	if err != nil {
		return err
	}
	if _, ok := g.SideOf(userID); !ok {
		return session.ErrNotAParticipant
	}
	if g.Status != models.GameStatusPaused {
		return session.ErrGameNotPaused
	}

	if _, err := r.store.SetStatus(gameID, models.GameStatusActive); err != nil {
		return err
	}
	r.store.Checkpoint(ctx, gameID)
	if err := r.clock.Start(ctx, gameID); err != nil {
		return err
	}

	log.Info().Str("game_id", gameID.String()).Str("user_id", userID.String()).Msg("game resumed")
	r.broadcaster.ToRoom(gameID.String(), events.New(events.EventTypeGameResumed, gameID.String(), events.PauseStatePayload{
		GameID: gameID.String(),
		UserID: userID.String(),
	}))
	return nil
}

// finish runs the shared termination path: stop the clock, write the
// terminal state, announce it, release both players' presence. Losing the
// completion race to another terminal path is not an error.
func (r *Relay) finish(ctx context.Context, gameID uuid.UUID, reason models.TerminationReason, winner *models.Side) error {
	r.clock.Stop(gameID)

	final, err := r.store.Complete(ctx, gameID, reason, winner)
	if err != nil {
		log.Debug().Err(err).Str("game_id", gameID.String()).Msg("game already terminated")
		return nil
	}

	log.Info().
		Str("game_id", gameID.String()).
		Str("reason", string(reason)).
		Msg("game ended")

	r.broadcaster.ToRoom(gameID.String(), events.New(events.EventTypeGameEnded, gameID.String(), events.GameEndedPayload{
		GameID:     gameID.String(),
		Reason:     reason,
		WinnerSide: winner,
	}))

	if r.presence != nil {
		r.presence.ReleaseInGame(ctx, final.WhiteUserID)
		r.presence.ReleaseInGame(ctx, final.BlackUserID)
	}
	return nil
}
