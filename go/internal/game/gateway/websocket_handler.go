package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/auth"
)

// WebSocketHandler handles WebSocket upgrade requests. Every connection
// must authenticate before the upgrade; unauthenticated requests are
// rejected with 401 and never reach the connection manager.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	authenticator     auth.Authenticator
}

func NewWebSocketHandler(cm *ConnectionManager, authenticator auth.Authenticator) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		authenticator:     authenticator,
	}
}

// HandleConnection authenticates and upgrades a client connection. The
// token comes from the Authorization header or, for browser clients that
// cannot set headers on WebSocket requests, the token query parameter.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	userID, err := h.authenticator.ResolveUser(token)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("rejected unauthenticated connection")
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID.String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
