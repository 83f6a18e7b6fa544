package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/models"
)

const (
	persistAttempts = 3
	persistBackoff  = 250 * time.Millisecond
)

// Store is the in-memory map of active game sessions, the single shared
// mutable structure the clock engine and move relay read and write. Durable
// writes are best-effort checkpoints; the in-memory copy is authoritative
// while a game is live.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.GameSession
	moves    map[uuid.UUID][]models.Move

	durable DurableStore
	backoff time.Duration
	clock   clockwork.Clock
	writes  sync.WaitGroup
}

// NewStore creates an empty session store backed by the given durable store.
func NewStore(durable DurableStore) *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*models.GameSession),
		moves:    make(map[uuid.UUID][]models.Move),
		durable:  durable,
		backoff:  persistBackoff,
		clock:    clockwork.NewRealClock(),
	}
}

// SetRetryBackoff overrides the fixed backoff between persistence retries.
func (s *Store) SetRetryBackoff(d time.Duration) {
	s.backoff = d
}

// Flush blocks until all in-flight durable writes have settled. Called on
// shutdown so checkpoints started just before exit still land.
func (s *Store) Flush() {
	s.writes.Wait()
}

// Load hydrates a session from durable storage into memory. Idempotent: a
// session already in memory is returned as-is, never re-read over live state.
func (s *Store) Load(ctx context.Context, gameID uuid.UUID) (*models.GameSession, error) {
	s.mu.RLock()
	if g, ok := s.sessions[gameID]; ok {
		snapshot := *g
		s.mu.RUnlock()
		return &snapshot, nil
	}
	s.mu.RUnlock()

	game, err := s.durable.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	moves, err := s.durable.ListMoves(ctx, gameID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check after the durable read: another handler may have hydrated
	// the same game while we were waiting on storage.
	if g, ok := s.sessions[gameID]; ok {
		snapshot := *g
		return &snapshot, nil
	}
	s.sessions[gameID] = game
	s.moves[gameID] = moves
	snapshot := *game
	return &snapshot, nil
}

// Put inserts a freshly created session into memory. Used when an accepted
// invite is converted into a game.
func (s *Store) Put(game *models.GameSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := *game
	s.sessions[game.ID] = &g
	if _, ok := s.moves[game.ID]; !ok {
		s.moves[game.ID] = nil
	}
}

// Get returns a snapshot of an in-memory session, or ErrGameNotFound.
func (s *Store) Get(gameID uuid.UUID) (*models.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.sessions[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	snapshot := *g
	return &snapshot, nil
}

// Moves returns a copy of the recorded moves of an in-memory session.
func (s *Store) Moves(gameID uuid.UUID) []models.Move {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Move(nil), s.moves[gameID]...)
}

// ActiveGameIDs returns the ids of all sessions currently held in memory.
func (s *Store) ActiveGameIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// HasActiveGame reports whether the user participates in any non-terminal
// session held in memory.
func (s *Store) HasActiveGame(userID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.sessions {
		if g.Status == models.GameStatusCompleted {
			continue
		}
		if g.WhiteUserID == userID || g.BlackUserID == userID {
			return true
		}
	}
	return false
}

// ApplyMove validates turn ownership, appends a move, flips the active side
// and updates the board position. Rejections leave the session untouched.
// The durable move record and timing checkpoint are written best-effort
// after the in-memory mutation.
func (s *Store) ApplyMove(ctx context.Context, gameID uuid.UUID, side models.Side, notation, resultingPosition string) (*AppliedMove, error) {
	s.mu.Lock()
	g, ok := s.sessions[gameID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrGameNotFound
	}
	if g.Status != models.GameStatusActive {
		s.mu.Unlock()
		return nil, ErrGameNotActive
	}
	if g.ActiveSide != side {
		s.mu.Unlock()
		return nil, ErrNotPlayersTurn
	}

	g.MoveCount++
	move := models.Move{
		GameID:            gameID,
		MoveNumber:        g.MoveCount,
		Side:              side,
		Notation:          notation,
		ResultingPosition: resultingPosition,
		ServerTimestamp:   time.Now(),
	}
	s.moves[gameID] = append(s.moves[gameID], move)

	g.ActiveSide = side.Opponent()
	g.BoardPosition = resultingPosition
	g.DrawOfferedBy = nil
	g.UpdatedAt = time.Now()
	applied := &AppliedMove{Move: move, Session: *g}
	s.mu.Unlock()

	s.persist(ctx, gameID, "append_move", func(ctx context.Context) error {
		return s.durable.AppendMove(ctx, &move)
	})
	snapshot := applied.Session
	s.persist(ctx, gameID, "move_checkpoint", func(ctx context.Context) error {
		return s.durable.PersistGameTiming(ctx, &snapshot)
	})

	return applied, nil
}

// AdjustClock adds deltaSeconds to one side's remaining time, flooring at
// zero, and returns the updated snapshot. Negative deltas are clock decay,
// positive deltas are post-move increments.
func (s *Store) AdjustClock(gameID uuid.UUID, side models.Side, deltaSeconds int) (*models.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.sessions[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	if side == models.SideWhite {
		g.WhiteTimeLeft += deltaSeconds
		if g.WhiteTimeLeft < 0 {
			g.WhiteTimeLeft = 0
		}
	} else {
		g.BlackTimeLeft += deltaSeconds
		if g.BlackTimeLeft < 0 {
			g.BlackTimeLeft = 0
		}
	}
	g.UpdatedAt = time.Now()
	snapshot := *g
	return &snapshot, nil
}

// TickActiveSide decrements one second from whichever side is active at the
// moment the lock is held, flooring at zero. Reading the active side and
// charging it happen under a single critical section so a move that flips
// the turn mid-tick can never cause the wrong clock to be charged. Returns
// the updated snapshot, the side that was charged and whether that side's
// flag has fallen.
func (s *Store) TickActiveSide(gameID uuid.UUID) (*models.GameSession, models.Side, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.sessions[gameID]
	if !ok {
		return nil, "", false, ErrGameNotFound
	}
	if g.Status != models.GameStatusActive {
		return nil, "", false, ErrGameNotActive
	}
	side := g.ActiveSide
	if side == models.SideWhite {
		if g.WhiteTimeLeft > 0 {
			g.WhiteTimeLeft--
		}
	} else {
		if g.BlackTimeLeft > 0 {
			g.BlackTimeLeft--
		}
	}
	g.UpdatedAt = time.Now()
	snapshot := *g
	return &snapshot, side, snapshot.TimeLeft(side) <= 0, nil
}

// SwitchTurn sets the active side without touching elapsed time. The clock
// engine applies any per-move increment separately through AdjustClock.
func (s *Store) SwitchTurn(gameID uuid.UUID, newActiveSide models.Side) (*models.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.sessions[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	g.ActiveSide = newActiveSide
	g.UpdatedAt = time.Now()
	snapshot := *g
	return &snapshot, nil
}

// SetStatus transitions a session between active and paused.
func (s *Store) SetStatus(gameID uuid.UUID, status models.GameStatus) (*models.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.sessions[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	g.Status = status
	g.UpdatedAt = time.Now()
	snapshot := *g
	return &snapshot, nil
}

// OfferDraw records a pending draw offer on the session.
func (s *Store) OfferDraw(gameID, userID uuid.UUID) (*models.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.sessions[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	if g.Status != models.GameStatusActive {
		return nil, ErrGameNotActive
	}
	id := userID
	g.DrawOfferedBy = &id
	g.UpdatedAt = time.Now()
	snapshot := *g
	return &snapshot, nil
}

// ClearDraw removes a pending draw offer, or ErrDrawNotOffered.
func (s *Store) ClearDraw(gameID uuid.UUID) (*models.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.sessions[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	if g.DrawOfferedBy == nil {
		return nil, ErrDrawNotOffered
	}
	g.DrawOfferedBy = nil
	g.UpdatedAt = time.Now()
	snapshot := *g
	return &snapshot, nil
}

// Complete marks a session terminal, performs the final durable write, and
// removes the session from memory. Completing an already-removed or already
// terminal game is a no-op returning ErrGameNotFound / ErrGameNotActive so
// double termination (timeout racing a resignation) stays harmless.
func (s *Store) Complete(ctx context.Context, gameID uuid.UUID, reason models.TerminationReason, winner *models.Side) (*models.GameSession, error) {
	s.mu.Lock()
	g, ok := s.sessions[gameID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrGameNotFound
	}
	if g.Status == models.GameStatusCompleted {
		s.mu.Unlock()
		return nil, ErrGameNotActive
	}
	g.Status = models.GameStatusCompleted
	r := reason
	g.Termination = &r
	g.Winner = winner
	g.DrawOfferedBy = nil
	g.UpdatedAt = time.Now()
	snapshot := *g
	delete(s.sessions, gameID)
	delete(s.moves, gameID)
	s.mu.Unlock()

	s.persist(ctx, gameID, "complete", func(ctx context.Context) error {
		return s.durable.CompleteGame(ctx, &snapshot)
	})
	return &snapshot, nil
}

// Checkpoint writes the current timing and position fields to durable
// storage, best-effort. Called once per clock tick.
func (s *Store) Checkpoint(ctx context.Context, gameID uuid.UUID) {
	snapshot, err := s.Get(gameID)
	if err != nil {
		return
	}
	s.persist(ctx, gameID, "tick_checkpoint", func(ctx context.Context) error {
		return s.durable.PersistGameTiming(ctx, snapshot)
	})
}

// persist retries a durable write with a fixed backoff, then logs and
// abandons it. The write runs in its own goroutine, detached from the
// caller's cancellation, so a slow or failing database never blocks a tick
// or a move. Persistence failures never corrupt in-memory state.
func (s *Store) persist(ctx context.Context, gameID uuid.UUID, op string, write func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		var err error
		for attempt := 1; attempt <= persistAttempts; attempt++ {
			if err = write(ctx); err == nil {
				return
			}
			if attempt < persistAttempts {
				s.clock.Sleep(s.backoff)
			}
		}
		log.Error().
			Err(err).
			Str("game_id", gameID.String()).
			Str("op", op).
			Int("attempts", persistAttempts).
			Msg("durable write abandoned after retries; in-memory state remains authoritative")
	}()
}
