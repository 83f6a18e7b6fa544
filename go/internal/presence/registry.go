package presence

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Registry tracks which users are reachable over which socket connections.
// A user may hold several connections at once (multiple tabs or devices);
// presence transitions fire only on the first connection up and the last
// connection down.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]map[string]struct{}
	byConn map[string]uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[uuid.UUID]map[string]struct{}),
		byConn: make(map[string]uuid.UUID),
	}
}

// Add registers a connection for a user and reports whether it is the
// user's first live connection. Re-adding a known connection id changes
// nothing and reports false.
func (r *Registry) Add(connectionID string, userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.byConn[connectionID]; known {
		return false
	}
	r.byConn[connectionID] = userID

	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[userID] = conns
	}
	conns[connectionID] = struct{}{}

	log.Debug().
		Str("connection_id", connectionID).
		Str("user_id", userID.String()).
		Int("connection_count", len(conns)).
		Msg("connection registered")
	return len(conns) == 1
}

// Remove drops a connection and reports the owning user and whether it was
// that user's last live connection. Removing an unknown connection id is a
// no-op with ok=false.
func (r *Registry) Remove(connectionID string) (userID uuid.UUID, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.byConn[connectionID]
	if !ok {
		return uuid.Nil, false, false
	}
	delete(r.byConn, connectionID)

	conns := r.byUser[userID]
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
		last = true
	}

	log.Debug().
		Str("connection_id", connectionID).
		Str("user_id", userID.String()).
		Int("connection_count", len(conns)).
		Msg("connection deregistered")
	return userID, last, true
}

// IsReachable reports whether the user has at least one live connection.
func (r *Registry) IsReachable(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ConnectionCount returns how many live connections the user holds.
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// UserFor resolves the user owning a connection.
func (r *Registry) UserFor(connectionID string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connectionID]
	return userID, ok
}

// Connections returns the live connection ids of a user.
func (r *Registry) Connections(userID uuid.UUID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}
	return ids
}
