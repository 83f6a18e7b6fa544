package relay

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/game/events"
	"github.com/mcdev12/gambit/go/internal/game/rules"
	"github.com/mcdev12/gambit/go/internal/game/session"
	"github.com/mcdev12/gambit/go/internal/models"
)

type recordedEvent struct {
	scope  string
	target string
	event  *events.GameEvent
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *mockBroadcaster) ToRoom(gameID string, event *events.GameEvent) {
	m.record("room", gameID, event)
}

func (m *mockBroadcaster) ToUser(userID string, event *events.GameEvent) {
	m.record("user", userID, event)
}

func (m *mockBroadcaster) ToConnection(connectionID string, event *events.GameEvent) {
	m.record("connection", connectionID, event)
}

func (m *mockBroadcaster) record(scope, target string, event *events.GameEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{scope: scope, target: target, event: event})
}

func (m *mockBroadcaster) byType(eventType events.EventType) []recordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []recordedEvent
	for _, e := range m.events {
		if e.event.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

type mockClock struct {
	store    *session.Store
	started  []uuid.UUID
	stopped  []uuid.UUID
	switched []models.Side
}

func (m *mockClock) Start(ctx context.Context, gameID uuid.UUID) error {
	m.started = append(m.started, gameID)
	return nil
}

func (m *mockClock) Stop(gameID uuid.UUID) {
	m.stopped = append(m.stopped, gameID)
}

func (m *mockClock) SwitchTurn(gameID uuid.UUID, newActiveSide models.Side) (*models.GameSession, error) {
	m.switched = append(m.switched, newActiveSide)
	return m.store.SwitchTurn(gameID, newActiveSide)
}

type mockPresence struct {
	forced   []uuid.UUID
	released []uuid.UUID
}

func (m *mockPresence) ForceInGame(ctx context.Context, userID uuid.UUID) {
	m.forced = append(m.forced, userID)
}

func (m *mockPresence) ReleaseInGame(ctx context.Context, userID uuid.UUID) {
	m.released = append(m.released, userID)
}

// stubValidator returns a fixed result for any move, or ErrInvalidMove when
// result is nil.
type stubValidator struct {
	result *rules.Result
}

func (v *stubValidator) ValidateAndApply(position string, move rules.MoveRequest) (*rules.Result, error) {
	if v.result == nil {
		return nil, rules.ErrInvalidMove
	}
	result := *v.result
	return &result, nil
}

type noopDurable struct{}

func (noopDurable) GetGame(ctx context.Context, gameID uuid.UUID) (*models.GameSession, error) {
	return nil, session.ErrGameNotFound
}
func (noopDurable) ListMoves(ctx context.Context, gameID uuid.UUID) ([]models.Move, error) {
	return nil, nil
}
func (noopDurable) AppendMove(ctx context.Context, move *models.Move) error            { return nil }
func (noopDurable) PersistGameTiming(ctx context.Context, g *models.GameSession) error { return nil }
func (noopDurable) CompleteGame(ctx context.Context, g *models.GameSession) error      { return nil }

type relayFixture struct {
	relay       *Relay
	store       *session.Store
	clock       *mockClock
	presence    *mockPresence
	broadcaster *mockBroadcaster
	validator   *stubValidator
	game        *models.GameSession
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	store := session.NewStore(noopDurable{})
	store.SetRetryBackoff(0)
	clock := &mockClock{store: store}
	presence := &mockPresence{}
	broadcaster := &mockBroadcaster{}
	validator := &stubValidator{result: &rules.Result{
		SAN:      "e4",
		FEN:      "fen-after-e4",
		NextTurn: models.SideBlack,
	}}

	g := &models.GameSession{
		ID:            uuid.New(),
		WhiteUserID:   uuid.New(),
		BlackUserID:   uuid.New(),
		WhiteTimeLeft: 300,
		BlackTimeLeft: 300,
		ActiveSide:    models.SideWhite,
		BoardPosition: models.StartingFEN,
		Status:        models.GameStatusActive,
		TimeControl:   models.TimeControlBlitz,
	}
	store.Put(g)

	return &relayFixture{
		relay:       NewRelay(store, validator, clock, presence, broadcaster),
		store:       store,
		clock:       clock,
		presence:    presence,
		broadcaster: broadcaster,
		validator:   validator,
		game:        g,
	}
}

func TestSubmitMove(t *testing.T) {
	ctx := context.Background()

	t.Run("broadcasts moveMade, turnUpdate and moveConfirmed", func(t *testing.T) {
		f := newRelayFixture(t)

		err := f.relay.SubmitMove(ctx, f.game.WhiteUserID, f.game.ID, rules.MoveRequest{From: "e2", To: "e4"})
		require.NoError(t, err)

		moveMade := f.broadcaster.byType(events.EventTypeMoveMade)
		require.Len(t, moveMade, 3)
		assert.Equal(t, "room", moveMade[0].scope)
		assert.Equal(t, f.game.ID.String(), moveMade[0].target)

		turnUpdates := f.broadcaster.byType(events.EventTypeTurnUpdate)
		require.Len(t, turnUpdates, 1)
		assert.Equal(t, "room", turnUpdates[0].scope)

		confirmed := f.broadcaster.byType(events.EventTypeMoveConfirmed)
		require.Len(t, confirmed, 1)
		assert.Equal(t, "user", confirmed[0].scope)
		assert.Equal(t, f.game.WhiteUserID.String(), confirmed[0].target)

		assert.Equal(t, []models.Side{models.SideBlack}, f.clock.switched)
	})

	t.Run("rejects non-participants", func(t *testing.T) {
		f := newRelayFixture(t)
		err := f.relay.SubmitMove(ctx, uuid.New(), f.game.ID, rules.MoveRequest{From: "e2", To: "e4"})
		assert.ErrorIs(t, err, session.ErrNotAParticipant)
		assert.Empty(t, f.broadcaster.byType(events.EventTypeMoveMade))
	})

	t.Run("rejects moves out of turn", func(t *testing.T) {
		f := newRelayFixture(t)
		err := f.relay.SubmitMove(ctx, f.game.BlackUserID, f.game.ID, rules.MoveRequest{From: "e7", To: "e5"})
		assert.ErrorIs(t, err, session.ErrNotPlayersTurn)
	})

	t.Run("rejects illegal moves without state change", func(t *testing.T) {
		f := newRelayFixture(t)
		f.validator.result = nil

		err := f.relay.SubmitMove(ctx, f.game.WhiteUserID, f.game.ID, rules.MoveRequest{From: "e2", To: "e5"})
		assert.ErrorIs(t, err, rules.ErrInvalidMove)

		current, err := f.store.Get(f.game.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, current.MoveCount)
		assert.Equal(t, models.SideWhite, current.ActiveSide)
	})

	t.Run("rejects moves on a completed game", func(t *testing.T) {
		f := newRelayFixture(t)
		winner := models.SideWhite
		_, err := f.store.Complete(ctx, f.game.ID, models.TerminationResignation, &winner)
		require.NoError(t, err)

		err = f.relay.SubmitMove(ctx, f.game.WhiteUserID, f.game.ID, rules.MoveRequest{From: "e2", To: "e4"})
		assert.ErrorIs(t, err, session.ErrGameNotFound)
	})

	t.Run("a mating move terminates the game", func(t *testing.T) {
		f := newRelayFixture(t)
		winner := models.SideWhite
		f.validator.result = &rules.Result{
			SAN:      "Qxf7#",
			FEN:      "fen-mate",
			NextTurn: models.SideBlack,
			GameOver: true,
			Winner:   &winner,
			Reason:   models.TerminationCheckmate,
		}

		err := f.relay.SubmitMove(ctx, f.game.WhiteUserID, f.game.ID, rules.MoveRequest{Notation: "Qxf7#"})
		require.NoError(t, err)

		ended := f.broadcaster.byType(events.EventTypeGameEnded)
		require.Len(t, ended, 1)
		assert.Empty(t, f.broadcaster.byType(events.EventTypeTurnUpdate))
		assert.Equal(t, []uuid.UUID{f.game.ID}, f.clock.stopped)
		assert.ElementsMatch(t, []uuid.UUID{f.game.WhiteUserID, f.game.BlackUserID}, f.presence.released)

		_, err = f.store.Get(f.game.ID)
		assert.ErrorIs(t, err, session.ErrGameNotFound)
	})
}

func TestResign(t *testing.T) {
	ctx := context.Background()

	t.Run("either side may resign at any time", func(t *testing.T) {
		f := newRelayFixture(t)

		err := f.relay.Resign(ctx, f.game.BlackUserID, f.game.ID)
		require.NoError(t, err)

		ended := f.broadcaster.byType(events.EventTypeGameEnded)
		require.Len(t, ended, 1)
		assert.Equal(t, []uuid.UUID{f.game.ID}, f.clock.stopped)
	})

	t.Run("rejects non-participants", func(t *testing.T) {
		f := newRelayFixture(t)
		err := f.relay.Resign(ctx, uuid.New(), f.game.ID)
		assert.ErrorIs(t, err, session.ErrNotAParticipant)
	})
}

func TestDrawOffers(t *testing.T) {
	ctx := context.Background()

	t.Run("offer and accept ends the game as a draw", func(t *testing.T) {
		f := newRelayFixture(t)

		require.NoError(t, f.relay.OfferDraw(ctx, f.game.WhiteUserID, f.game.ID))
		require.Len(t, f.broadcaster.byType(events.EventTypeDrawOffered), 1)

		require.NoError(t, f.relay.RespondDraw(ctx, f.game.BlackUserID, f.game.ID, true))
		require.Len(t, f.broadcaster.byType(events.EventTypeGameEnded), 1)

		_, err := f.store.Get(f.game.ID)
		assert.ErrorIs(t, err, session.ErrGameNotFound)
	})

	t.Run("offer and decline keeps the game running", func(t *testing.T) {
		f := newRelayFixture(t)

		require.NoError(t, f.relay.OfferDraw(ctx, f.game.WhiteUserID, f.game.ID))
		require.NoError(t, f.relay.RespondDraw(ctx, f.game.BlackUserID, f.game.ID, false))

		assert.Len(t, f.broadcaster.byType(events.EventTypeDrawDeclined), 1)
		assert.Empty(t, f.broadcaster.byType(events.EventTypeGameEnded))

		current, err := f.store.Get(f.game.ID)
		require.NoError(t, err)
		assert.Nil(t, current.DrawOfferedBy)
	})

	t.Run("offerer cannot accept their own offer", func(t *testing.T) {
		f := newRelayFixture(t)

		require.NoError(t, f.relay.OfferDraw(ctx, f.game.WhiteUserID, f.game.ID))
		err := f.relay.RespondDraw(ctx, f.game.WhiteUserID, f.game.ID, true)
		assert.ErrorIs(t, err, session.ErrDrawNotOffered)
	})

	t.Run("responding without a pending offer is rejected", func(t *testing.T) {
		f := newRelayFixture(t)
		err := f.relay.RespondDraw(ctx, f.game.BlackUserID, f.game.ID, true)
		assert.ErrorIs(t, err, session.ErrDrawNotOffered)
	})
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()

	t.Run("pause stops the clock, resume restarts it", func(t *testing.T) {
		f := newRelayFixture(t)

		require.NoError(t, f.relay.Pause(ctx, f.game.WhiteUserID, f.game.ID))
		assert.Equal(t, []uuid.UUID{f.game.ID}, f.clock.stopped)
		require.Len(t, f.broadcaster.byType(events.EventTypeGamePaused), 1)

		current, err := f.store.Get(f.game.ID)
		require.NoError(t, err)
		assert.Equal(t, models.GameStatusPaused, current.Status)

		require.NoError(t, f.relay.Resume(ctx, f.game.BlackUserID, f.game.ID))
		assert.Equal(t, []uuid.UUID{f.game.ID}, f.clock.started)
		require.Len(t, f.broadcaster.byType(events.EventTypeGameResumed), 1)
	})

	t.Run("pausing a paused game is rejected", func(t *testing.T) {
		f := newRelayFixture(t)
		require.NoError(t, f.relay.Pause(ctx, f.game.WhiteUserID, f.game.ID))
		err := f.relay.Pause(ctx, f.game.WhiteUserID, f.game.ID)
		assert.ErrorIs(t, err, session.ErrGameNotActive)
	})

	t.Run("resuming an active game is rejected", func(t *testing.T) {
		f := newRelayFixture(t)
		err := f.relay.Resume(ctx, f.game.WhiteUserID, f.game.ID)
		assert.ErrorIs(t, err, session.ErrGameNotPaused)
	})
}
