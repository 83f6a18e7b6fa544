package clock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/game/events"
	"github.com/mcdev12/gambit/go/internal/game/session"
	"github.com/mcdev12/gambit/go/internal/models"
)

const (
	tickPeriod    = time.Second
	sweepInterval = 30 * time.Second
)

// PresenceReleaser releases the sticky in-game presence flag of a player
// when their game terminates.
type PresenceReleaser interface {
	ReleaseInGame(ctx context.Context, userID uuid.UUID)
}

// Engine owns one countdown timer per active game. Each tick decrements the
// active side's remaining time, detects timeout and terminates the game.
// State machine per game: absent -> running -> stopped; Start is idempotent,
// so at most one live timer exists per game id.
type Engine struct {
	store       *session.Store
	broadcaster events.Broadcaster
	presence    PresenceReleaser
	clock       clockwork.Clock

	mu     sync.Mutex
	timers map[uuid.UUID]*timerHandle

	tickPeriod    time.Duration
	sweepInterval time.Duration
}

// timerHandle is the process-local association of a game to its running
// ticker goroutine.
type timerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a clock engine. In production pass
// clockwork.NewRealClock(); tests inject a FakeClock.
func NewEngine(store *session.Store, broadcaster events.Broadcaster, presence PresenceReleaser, clk clockwork.Clock) *Engine {
	return &Engine{
		store:         store,
		broadcaster:   broadcaster,
		presence:      presence,
		clock:         clk,
		timers:        make(map[uuid.UUID]*timerHandle),
		tickPeriod:    tickPeriod,
		sweepInterval: sweepInterval,
	}
}

// Start hydrates the session and installs a periodic 1-second tick for the
// game. Starting a game that already has a live timer is a no-op. The
// current clock snapshot is emitted immediately to the game room and,
// redundantly, to each participant's personal channel, so a client that has
// not finished joining the room still receives it.
func (e *Engine) Start(ctx context.Context, gameID uuid.UUID) error {
	e.mu.Lock()
	if _, exists := e.timers[gameID]; exists {
		e.mu.Unlock()
		log.Debug().Str("game_id", gameID.String()).Msg("timer already running, start is a no-op")
		return nil
	}
	// Claim the handle before the durable read so a concurrent Start for the
	// same game observes it and backs off.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &timerHandle{cancel: cancel, done: make(chan struct{})}
	e.timers[gameID] = handle
	e.mu.Unlock()

	g, err := e.store.Load(ctx, gameID)
	if err != nil {
		e.remove(gameID, handle)
		cancel()
		return err
	}
	if g.Status != models.GameStatusActive {
		e.remove(gameID, handle)
		cancel()
		return session.ErrGameNotActive
	}

	e.emitSnapshot(g)

	go e.run(runCtx, gameID, handle)

	log.Info().
		Str("game_id", gameID.String()).
		Int("white_time_left", g.WhiteTimeLeft).
		Int("black_time_left", g.BlackTimeLeft).
		Str("active_side", string(g.ActiveSide)).
		Msg("game clock started")
	return nil
}

// Stop clears the timer handle for a game. Used on resignation, draw,
// pause and timeout. Stopping an absent timer is a no-op.
func (e *Engine) Stop(gameID uuid.UUID) {
	e.mu.Lock()
	handle, exists := e.timers[gameID]
	if exists {
		delete(e.timers, gameID)
	}
	e.mu.Unlock()
	if exists {
		handle.cancel()
		log.Info().Str("game_id", gameID.String()).Msg("game clock stopped")
	}
}

// SwitchTurn updates the active side after a move without resetting elapsed
// time, crediting the configured per-move increment to the side that just
// moved.
func (e *Engine) SwitchTurn(gameID uuid.UUID, newActiveSide models.Side) (*models.GameSession, error) {
	g, err := e.store.SwitchTurn(gameID, newActiveSide)
	if err != nil {
		return nil, err
	}
	if inc := g.TimeControl.IncrementSeconds(); inc > 0 {
		g, err = e.store.AdjustClock(gameID, newActiveSide.Opponent(), inc)
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Running reports whether a live timer exists for the game.
func (e *Engine) Running(gameID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[gameID]
	return ok
}

// RunSweep periodically scans all timer handles and force-stops any whose
// session is missing or no longer active. This is the safety net against
// timers that outlive their game because a stop call was missed.
func (e *Engine) RunSweep(ctx context.Context) {
	ticker := e.clock.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", e.sweepInterval).Msg("clock health sweep started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("clock health sweep shutting down")
			return
		case <-ticker.Chan():
			e.sweep()
		}
	}
}

func (e *Engine) sweep() {
	e.mu.Lock()
	ids := make([]uuid.UUID, 0, len(e.timers))
	for id := range e.timers {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		g, err := e.store.Get(id)
		if err != nil || g.Status != models.GameStatusActive {
			log.Warn().
				Str("game_id", id.String()).
				Msg("orphaned timer detected by health sweep, forcing stop")
			e.Stop(id)
		}
	}
}

// Shutdown stops every live timer. Called on process shutdown.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	handles := make(map[uuid.UUID]*timerHandle, len(e.timers))
	for id, h := range e.timers {
		handles[id] = h
	}
	e.timers = make(map[uuid.UUID]*timerHandle)
	e.mu.Unlock()

	for id, h := range handles {
		h.cancel()
		log.Info().Str("game_id", id.String()).Msg("game clock stopped on shutdown")
	}
}

// run is the per-game ticker loop. A panic inside a tick stops only this
// game's timer and logs with full game context; the health sweep will flag
// the session later if it was left active without a timer.
func (e *Engine) run(ctx context.Context, gameID uuid.UUID, handle *timerHandle) {
	defer close(handle.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("game_id", gameID.String()).
				Interface("panic", r).
				Msg("tick callback panicked, stopping this game's timer")
			e.remove(gameID, handle)
		}
	}()

	ticker := e.clock.NewTicker(e.tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !e.tick(ctx, gameID) {
				e.remove(gameID, handle)
				return
			}
		}
	}
}

// tick applies one second of clock decay. Returns false when the loop must
// stop: the game is gone, no longer active, or just timed out.
func (e *Engine) tick(ctx context.Context, gameID uuid.UUID) bool {
	// The store decides which side to charge under its own lock, so a move
	// flipping the turn between ticks can never charge the wrong clock.
	g, active, timedOut, err := e.store.TickActiveSide(gameID)
	if err != nil {
		if errors.Is(err, session.ErrGameNotActive) {
			log.Debug().
				Str("game_id", gameID.String()).
				Msg("discarding tick for non-active game")
		}
		return false
	}

	if timedOut {
		e.timeout(ctx, gameID, g, active)
		return false
	}

	e.store.Checkpoint(ctx, gameID)
	e.emitClockUpdate(g)
	return true
}

// timeout terminates a game whose active side ran out of time. The other
// side wins; both players' presence is released.
func (e *Engine) timeout(ctx context.Context, gameID uuid.UUID, g *models.GameSession, timedOut models.Side) {
	winner := timedOut.Opponent()
	final, err := e.store.Complete(ctx, gameID, models.TerminationTimeout, &winner)
	if err != nil {
		// Another terminal path (resignation, draw) won the race; nothing
		// left to broadcast.
		log.Debug().Err(err).Str("game_id", gameID.String()).Msg("timeout lost termination race")
		return
	}

	log.Info().
		Str("game_id", gameID.String()).
		Str("timed_out_side", string(timedOut)).
		Str("winner_side", string(winner)).
		Msg("game ended on time")

	e.broadcaster.ToRoom(gameID.String(), events.New(events.EventTypeGameTimeout, gameID.String(), events.GameTimeoutPayload{
		GameID:       gameID.String(),
		TimedOutSide: timedOut,
		WinnerSide:   winner,
	}))

	if e.presence != nil {
		e.presence.ReleaseInGame(ctx, final.WhiteUserID)
		e.presence.ReleaseInGame(ctx, final.BlackUserID)
	}
}

// emitSnapshot sends the current clock state to the game room and both
// personal channels.
func (e *Engine) emitSnapshot(g *models.GameSession) {
	event := events.New(events.EventTypeClockUpdate, g.ID.String(), events.ClockUpdatePayload{
		WhiteTimeLeftSeconds: g.WhiteTimeLeft,
		BlackTimeLeftSeconds: g.BlackTimeLeft,
		ActiveSide:           g.ActiveSide,
		ServerTime:           e.clock.Now(),
	})
	e.broadcaster.ToRoom(g.ID.String(), event)
	e.broadcaster.ToUser(g.WhiteUserID.String(), event)
	e.broadcaster.ToUser(g.BlackUserID.String(), event)
}

func (e *Engine) emitClockUpdate(g *models.GameSession) {
	e.emitSnapshot(g)
}

// remove deletes the handle only if it is still the current one, so a
// restarted timer is never torn down by its predecessor's cleanup.
func (e *Engine) remove(gameID uuid.UUID, handle *timerHandle) {
	e.mu.Lock()
	if current, ok := e.timers[gameID]; ok && current == handle {
		delete(e.timers, gameID)
	}
	e.mu.Unlock()
}
