package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/game/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

// FriendsProvider lists the accepted friends of a user.
type FriendsProvider interface {
	ListFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// ActiveGameChecker reports whether a user participates in a live game.
// Backed by the in-memory session store, which is authoritative during play.
type ActiveGameChecker interface {
	HasActiveGame(userID uuid.UUID) bool
}

// Broadcaster maintains each user's friends-visible status and fans status
// changes out to the personal channels of their friends. In-game status is
// sticky: a disconnect never clears it, only game termination does.
type Broadcaster struct {
	registry    *Registry
	store       StatusStore
	friends     FriendsProvider
	games       ActiveGameChecker
	broadcaster events.Broadcaster
	clock       func() time.Time
}

func NewBroadcaster(registry *Registry, store StatusStore, friends FriendsProvider, games ActiveGameChecker, broadcaster events.Broadcaster) *Broadcaster {
	return &Broadcaster{
		registry:    registry,
		store:       store,
		friends:     friends,
		games:       games,
		broadcaster: broadcaster,
		clock:       time.Now,
	}
}

// HandleConnect runs on a user's first live connection. A user who is still
// in a live game comes back as in-game, everyone else comes back as online.
func (b *Broadcaster) HandleConnect(ctx context.Context, userID uuid.UUID) {
	if b.games != nil && b.games.HasActiveGame(userID) {
		b.SetStatus(ctx, userID, models.StatusInGame)
		return
	}
	b.SetStatus(ctx, userID, models.StatusOnline)
}

// HandleDisconnect runs on a user's last live connection going away. The
// in-game status survives the disconnect so friends keep seeing an accurate
// picture while the player's clock still runs.
func (b *Broadcaster) HandleDisconnect(ctx context.Context, userID uuid.UUID) {
	current, err := b.store.GetStatus(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to read status on disconnect")
	}
	if current == models.StatusInGame {
		log.Debug().Str("user_id", userID.String()).Msg("keeping in-game status across disconnect")
		return
	}
	b.SetStatus(ctx, userID, models.StatusOffline)
}

// ForceInGame marks a user as in-game regardless of their current status.
// Called when a game involving the user starts or resumes.
func (b *Broadcaster) ForceInGame(ctx context.Context, userID uuid.UUID) {
	b.SetStatus(ctx, userID, models.StatusInGame)
}

// ReleaseInGame clears the in-game status after one of the user's games
// terminated. If the user still has another live game they stay in-game;
// otherwise they become online when reachable and offline when not.
func (b *Broadcaster) ReleaseInGame(ctx context.Context, userID uuid.UUID) {
	if b.games != nil && b.games.HasActiveGame(userID) {
		log.Debug().Str("user_id", userID.String()).Msg("user still in another live game, keeping in-game status")
		return
	}
	if b.registry.IsReachable(userID) {
		b.SetStatus(ctx, userID, models.StatusOnline)
		return
	}
	b.SetStatus(ctx, userID, models.StatusOffline)
}

// SetStatus stores the new status and notifies each reachable friend's
// personal channel. Setting the status a user already has is a no-op, which
// keeps repeated connects and redundant releases from spamming friends.
func (b *Broadcaster) SetStatus(ctx context.Context, userID uuid.UUID, status models.UserStatus) {
	current, err := b.store.GetStatus(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to read current status, broadcasting anyway")
	} else if current == status {
		return
	}

	if err := b.store.SetStatus(ctx, userID, status); err != nil {
		log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("status", string(status)).
			Msg("failed to persist status")
		return
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("old_status", string(current)).
		Str("new_status", string(status)).
		Msg("user status changed")

	friendIDs, err := b.friends.ListFriendIDs(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to list friends for status fan-out")
		return
	}

	event := events.New(events.EventTypeFriendStatusChanged, "", events.FriendStatusChangedPayload{
		UserID:    userID.String(),
		Status:    status,
		Timestamp: b.clock(),
	})
	// Delivery goes through the broadcaster unconditionally: a friend with no
	// local connection may still be connected to a peer node, and the bridge
	// carries user events across nodes. Locally absent users are a no-op.
	for _, friendID := range friendIDs {
		b.broadcaster.ToUser(friendID.String(), event)
	}
}

// CleanupStale repairs statuses left behind by a crash: in-game users with
// no live game and online users with no live connection go back to offline.
func (b *Broadcaster) CleanupStale(ctx context.Context) error {
	statuses, err := b.store.ListStatuses(ctx)
	if err != nil {
		return err
	}
	for userID, status := range statuses {
		switch status {
		case models.StatusInGame:
			if b.games != nil && b.games.HasActiveGame(userID) {
				continue
			}
		case models.StatusOnline:
			if b.registry.IsReachable(userID) {
				continue
			}
		default:
			continue
		}
		log.Info().
			Str("user_id", userID.String()).
			Str("stale_status", string(status)).
			Msg("clearing stale presence status")
		b.SetStatus(ctx, userID, models.StatusOffline)
	}
	return nil
}

// SyncFriends replays the current status of every friend to one freshly
// connected socket, so the friends list renders correctly without waiting
// for the next transition.
func (b *Broadcaster) SyncFriends(ctx context.Context, userID uuid.UUID, connectionID string) {
	friendIDs, err := b.friends.ListFriendIDs(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to list friends for initial sync")
		return
	}
	for _, friendID := range friendIDs {
		status, err := b.store.GetStatus(ctx, friendID)
		if err != nil {
			log.Warn().Err(err).Str("friend_id", friendID.String()).Msg("failed to read friend status for initial sync")
			continue
		}
		b.broadcaster.ToConnection(connectionID, events.New(events.EventTypeFriendStatusChanged, "", events.FriendStatusChangedPayload{
			UserID:    friendID.String(),
			Status:    status,
			Timestamp: b.clock(),
		}))
	}
}
