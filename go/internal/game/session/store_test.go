package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/models"
)

type mockDurableStore struct {
	mu sync.Mutex

	games map[uuid.UUID]*models.GameSession
	moves map[uuid.UUID][]models.Move

	appendMoveCalls  int
	timingCalls      int
	completeCalls    int
	failAppendsLeft  int
	failTimingsLeft  int
	failCompleteLeft int

	// When set, AppendMove and PersistGameTiming wait on this channel
	// before touching anything, simulating a stalled database.
	blockWrites chan struct{}
}

func newMockDurableStore() *mockDurableStore {
	return &mockDurableStore{
		games: make(map[uuid.UUID]*models.GameSession),
		moves: make(map[uuid.UUID][]models.Move),
	}
}

func (m *mockDurableStore) GetGame(ctx context.Context, gameID uuid.UUID) (*models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	snapshot := *g
	return &snapshot, nil
}

func (m *mockDurableStore) ListMoves(ctx context.Context, gameID uuid.UUID) ([]models.Move, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Move(nil), m.moves[gameID]...), nil
}

func (m *mockDurableStore) AppendMove(ctx context.Context, move *models.Move) error {
	if m.blockWrites != nil {
		<-m.blockWrites
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendMoveCalls++
	if m.failAppendsLeft > 0 {
		m.failAppendsLeft--
		return errors.New("transient write failure")
	}
	m.moves[move.GameID] = append(m.moves[move.GameID], *move)
	return nil
}

func (m *mockDurableStore) PersistGameTiming(ctx context.Context, game *models.GameSession) error {
	if m.blockWrites != nil {
		<-m.blockWrites
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timingCalls++
	if m.failTimingsLeft > 0 {
		m.failTimingsLeft--
		return errors.New("transient write failure")
	}
	snapshot := *game
	m.games[game.ID] = &snapshot
	return nil
}

func (m *mockDurableStore) CompleteGame(ctx context.Context, game *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++
	if m.failCompleteLeft > 0 {
		m.failCompleteLeft--
		return errors.New("transient write failure")
	}
	snapshot := *game
	m.games[game.ID] = &snapshot
	return nil
}

func newTestSession() *models.GameSession {
	return &models.GameSession{
		ID:            uuid.New(),
		WhiteUserID:   uuid.New(),
		BlackUserID:   uuid.New(),
		WhiteTimeLeft: 300,
		BlackTimeLeft: 300,
		ActiveSide:    models.SideWhite,
		BoardPosition: models.StartingFEN,
		Status:        models.GameStatusActive,
		TimeControl:   models.TimeControlBlitz,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func newTestStore(t *testing.T) (*Store, *mockDurableStore) {
	t.Helper()
	durable := newMockDurableStore()
	store := NewStore(durable)
	store.SetRetryBackoff(0)
	return store, durable
}

func TestApplyMove(t *testing.T) {
	ctx := context.Background()

	t.Run("applies a legal move and flips the active side", func(t *testing.T) {
		store, durable := newTestStore(t)
		g := newTestSession()
		store.Put(g)

		applied, err := store.ApplyMove(ctx, g.ID, models.SideWhite, "e4", "fen-after-e4")
		require.NoError(t, err)
		assert.Equal(t, 1, applied.Move.MoveNumber)
		assert.Equal(t, models.SideWhite, applied.Move.Side)
		assert.Equal(t, models.SideBlack, applied.Session.ActiveSide)
		assert.Equal(t, "fen-after-e4", applied.Session.BoardPosition)

		store.Flush()
		assert.Equal(t, 1, durable.appendMoveCalls)
	})

	t.Run("rejects a move out of turn without changing state", func(t *testing.T) {
		store, durable := newTestStore(t)
		g := newTestSession()
		store.Put(g)

		_, err := store.ApplyMove(ctx, g.ID, models.SideBlack, "e5", "fen")
		assert.ErrorIs(t, err, ErrNotPlayersTurn)

		current, err := store.Get(g.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SideWhite, current.ActiveSide)
		assert.Equal(t, 0, current.MoveCount)
		assert.Empty(t, store.Moves(g.ID))
		assert.Equal(t, 0, durable.appendMoveCalls)
	})

	t.Run("rejects a move on a paused game", func(t *testing.T) {
		store, _ := newTestStore(t)
		g := newTestSession()
		g.Status = models.GameStatusPaused
		store.Put(g)

		_, err := store.ApplyMove(ctx, g.ID, models.SideWhite, "e4", "fen")
		assert.ErrorIs(t, err, ErrGameNotActive)
	})

	t.Run("rejects a move on an unknown game", func(t *testing.T) {
		store, _ := newTestStore(t)
		_, err := store.ApplyMove(ctx, uuid.New(), models.SideWhite, "e4", "fen")
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("clears a pending draw offer", func(t *testing.T) {
		store, _ := newTestStore(t)
		g := newTestSession()
		store.Put(g)
		_, err := store.OfferDraw(g.ID, g.BlackUserID)
		require.NoError(t, err)

		applied, err := store.ApplyMove(ctx, g.ID, models.SideWhite, "e4", "fen")
		require.NoError(t, err)
		assert.Nil(t, applied.Session.DrawOfferedBy)
	})

	t.Run("move numbers increase strictly", func(t *testing.T) {
		store, _ := newTestStore(t)
		g := newTestSession()
		store.Put(g)

		first, err := store.ApplyMove(ctx, g.ID, models.SideWhite, "e4", "fen1")
		require.NoError(t, err)
		second, err := store.ApplyMove(ctx, g.ID, models.SideBlack, "e5", "fen2")
		require.NoError(t, err)

		assert.Equal(t, 1, first.Move.MoveNumber)
		assert.Equal(t, 2, second.Move.MoveNumber)
		assert.Len(t, store.Moves(g.ID), 2)
	})
}

func TestAdjustClock(t *testing.T) {
	t.Run("decrements the given side", func(t *testing.T) {
		store, _ := newTestStore(t)
		g := newTestSession()
		store.Put(g)

		updated, err := store.AdjustClock(g.ID, models.SideWhite, -1)
		require.NoError(t, err)
		assert.Equal(t, 299, updated.WhiteTimeLeft)
		assert.Equal(t, 300, updated.BlackTimeLeft)
	})

	t.Run("floors at zero", func(t *testing.T) {
		store, _ := newTestStore(t)
		g := newTestSession()
		g.BlackTimeLeft = 0
		store.Put(g)

		updated, err := store.AdjustClock(g.ID, models.SideBlack, -1)
		require.NoError(t, err)
		assert.Equal(t, 0, updated.BlackTimeLeft)
	})

	t.Run("credits increments", func(t *testing.T) {
		store, _ := newTestStore(t)
		g := newTestSession()
		store.Put(g)

		updated, err := store.AdjustClock(g.ID, models.SideWhite, 10)
		require.NoError(t, err)
		assert.Equal(t, 310, updated.WhiteTimeLeft)
	})
}

func TestTickActiveSide(t *testing.T) {
	t.Run("charges whichever side holds the turn when the lock is taken", func(t *testing.T) {
		store, _ := newTestStore(t)
		g := newTestSession()
		store.Put(g)

		updated, charged, timedOut, err := store.TickActiveSide(g.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SideWhite, charged)
		assert.False(t, timedOut)
		assert.Equal(t, 299, updated.WhiteTimeLeft)
		assert.Equal(t, 300, updated.BlackTimeLeft)

		// After a turn flip the other clock runs down.
		_, err = store.SwitchTurn(g.ID, models.SideBlack)
		require.NoError(t, err)

		updated, charged, timedOut, err = store.TickActiveSide(g.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SideBlack, charged)
		assert.False(t, timedOut)
		assert.Equal(t, 299, updated.WhiteTimeLeft)
		assert.Equal(t, 299, updated.BlackTimeLeft)
	})

	t.Run("reports the flag fall when the charged side reaches zero", func(t *testing.T) {
		store, _ := newTestStore(t)
		g := newTestSession()
		g.WhiteTimeLeft = 1
		store.Put(g)

		updated, charged, timedOut, err := store.TickActiveSide(g.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SideWhite, charged)
		assert.True(t, timedOut)
		assert.Equal(t, 0, updated.WhiteTimeLeft)
	})

	t.Run("rejects non-active games", func(t *testing.T) {
		store, _ := newTestStore(t)
		g := newTestSession()
		g.Status = models.GameStatusPaused
		store.Put(g)

		_, _, _, err := store.TickActiveSide(g.ID)
		assert.ErrorIs(t, err, ErrGameNotActive)
	})

	t.Run("unknown game", func(t *testing.T) {
		store, _ := newTestStore(t)
		_, _, _, err := store.TickActiveSide(uuid.New())
		assert.ErrorIs(t, err, ErrGameNotFound)
	})
}

func TestComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("writes terminal state and removes the session", func(t *testing.T) {
		store, durable := newTestStore(t)
		g := newTestSession()
		store.Put(g)

		winner := models.SideBlack
		final, err := store.Complete(ctx, g.ID, models.TerminationTimeout, &winner)
		require.NoError(t, err)
		assert.Equal(t, models.GameStatusCompleted, final.Status)
		require.NotNil(t, final.Winner)
		assert.Equal(t, models.SideBlack, *final.Winner)
		require.NotNil(t, final.Termination)
		assert.Equal(t, models.TerminationTimeout, *final.Termination)

		store.Flush()
		assert.Equal(t, 1, durable.completeCalls)

		_, err = store.Get(g.ID)
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("double completion is harmless", func(t *testing.T) {
		store, durable := newTestStore(t)
		g := newTestSession()
		store.Put(g)

		winner := models.SideWhite
		_, err := store.Complete(ctx, g.ID, models.TerminationResignation, &winner)
		require.NoError(t, err)

		_, err = store.Complete(ctx, g.ID, models.TerminationTimeout, &winner)
		assert.Error(t, err)

		store.Flush()
		assert.Equal(t, 1, durable.completeCalls)
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("hydrates from durable storage", func(t *testing.T) {
		store, durable := newTestStore(t)
		g := newTestSession()
		durable.games[g.ID] = g
		durable.moves[g.ID] = []models.Move{{GameID: g.ID, MoveNumber: 1, Side: models.SideWhite, Notation: "e4"}}

		loaded, err := store.Load(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.ID, loaded.ID)
		assert.Len(t, store.Moves(g.ID), 1)
	})

	t.Run("never re-reads over live in-memory state", func(t *testing.T) {
		store, durable := newTestStore(t)
		g := newTestSession()
		durable.games[g.ID] = g

		_, err := store.Load(ctx, g.ID)
		require.NoError(t, err)
		_, err = store.AdjustClock(g.ID, models.SideWhite, -100)
		require.NoError(t, err)

		loaded, err := store.Load(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, 200, loaded.WhiteTimeLeft)
	})

	t.Run("unknown game", func(t *testing.T) {
		store, _ := newTestStore(t)
		_, err := store.Load(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrGameNotFound)
	})
}

func TestPersistRetries(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers from transient failures within the retry budget", func(t *testing.T) {
		store, durable := newTestStore(t)
		g := newTestSession()
		store.Put(g)
		durable.failAppendsLeft = 2

		_, err := store.ApplyMove(ctx, g.ID, models.SideWhite, "e4", "fen")
		require.NoError(t, err)

		store.Flush()
		assert.Equal(t, 3, durable.appendMoveCalls)
		assert.Len(t, durable.moves[g.ID], 1)
	})

	t.Run("abandons after exhausting retries and keeps in-memory state", func(t *testing.T) {
		store, durable := newTestStore(t)
		g := newTestSession()
		store.Put(g)
		durable.failAppendsLeft = 3

		applied, err := store.ApplyMove(ctx, g.ID, models.SideWhite, "e4", "fen")
		require.NoError(t, err)

		store.Flush()
		assert.Equal(t, 3, durable.appendMoveCalls)
		assert.Empty(t, durable.moves[g.ID])

		// In-memory state is authoritative and unaffected by the abandonment.
		assert.Equal(t, 1, applied.Session.MoveCount)
		current, err := store.Get(g.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SideBlack, current.ActiveSide)
	})

	t.Run("a stalled durable store never blocks the caller", func(t *testing.T) {
		store, durable := newTestStore(t)
		g := newTestSession()
		store.Put(g)
		release := make(chan struct{})
		durable.blockWrites = release

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err := store.ApplyMove(ctx, g.ID, models.SideWhite, "e4", "fen")
			assert.NoError(t, err)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("ApplyMove waited for a stalled durable write")
		}

		// The move is applied in memory while the durable write is still
		// hanging.
		persisted, err := durable.ListMoves(ctx, g.ID)
		require.NoError(t, err)
		assert.Empty(t, persisted)
		current, err := store.Get(g.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, current.MoveCount)

		close(release)
		store.Flush()
		persisted, err = durable.ListMoves(ctx, g.ID)
		require.NoError(t, err)
		assert.Len(t, persisted, 1)
	})
}

func TestHasActiveGame(t *testing.T) {
	store, _ := newTestStore(t)
	g := newTestSession()
	store.Put(g)

	assert.True(t, store.HasActiveGame(g.WhiteUserID))
	assert.True(t, store.HasActiveGame(g.BlackUserID))
	assert.False(t, store.HasActiveGame(uuid.New()))

	winner := models.SideWhite
	_, err := store.Complete(context.Background(), g.ID, models.TerminationResignation, &winner)
	require.NoError(t, err)
	assert.False(t, store.HasActiveGame(g.WhiteUserID))
}
