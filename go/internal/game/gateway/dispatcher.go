package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/game/events"
	"github.com/mcdev12/gambit/go/internal/game/relay"
	"github.com/mcdev12/gambit/go/internal/game/rules"
	"github.com/mcdev12/gambit/go/internal/game/session"
	"github.com/mcdev12/gambit/go/internal/presence"
)

// Inbound message types accepted from clients. Anything else is rejected
// with an unknownMessageType error event.
const (
	MessageTypeJoinGameRoom  = "joinGameRoom"
	MessageTypeLeaveGameRoom = "leaveGameRoom"
	MessageTypeMove          = "move"
	MessageTypePing          = "ping"
	MessageTypeResign        = "resign"
	MessageTypeOfferDraw     = "offerDraw"
	MessageTypeRespondDraw   = "respondDraw"
	MessageTypePauseGame     = "pauseGame"
	MessageTypeResumeGame    = "resumeGame"
	MessageTypeRequestState  = "requestState"
)

// Error codes returned to the originating connection.
const (
	ErrCodeMalformed          = "malformedMessage"
	ErrCodeUnknownMessageType = "unknownMessageType"
	ErrCodeGameNotFound       = "gameNotFound"
	ErrCodeGameNotActive      = "gameNotActive"
	ErrCodeNotPlayersTurn     = "notPlayersTurn"
	ErrCodeNotAParticipant    = "notAParticipant"
	ErrCodeInvalidMove        = "invalidMove"
	ErrCodeDrawNotOffered     = "drawNotOffered"
	ErrCodeGameNotPaused      = "gameNotPaused"
	ErrCodeInternal           = "internalError"
)

// clientMessage is the tagged inbound envelope. Fields beyond Type are
// interpreted per message type.
type clientMessage struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`

	// move fields
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion"`
	Notation  string `json:"notation"`

	// respondDraw field
	Accept bool `json:"accept"`
}

// Dispatcher routes inbound client messages to the relay and resolver, and
// maps rejections to error events on the originating connection only.
type Dispatcher struct {
	manager  *ConnectionManager
	registry *presence.Registry
	presence *presence.Broadcaster
	relay    *relay.Relay
	resolver *relay.Resolver
}

func NewDispatcher(manager *ConnectionManager, registry *presence.Registry, presenceBroadcaster *presence.Broadcaster, gameRelay *relay.Relay, resolver *relay.Resolver) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		registry: registry,
		presence: presenceBroadcaster,
		relay:    gameRelay,
		resolver: resolver,
	}
}

// HandleConnect registers the connection and, on a user's first live
// connection, publishes their presence transition. Every new connection
// receives the current status of all friends and, when the user has a game
// in flight, is re-attached to it with a full snapshot.
func (d *Dispatcher) HandleConnect(ctx context.Context, conn *Connection) {
	first := d.registry.Add(conn.ID, conn.UserID)
	if first && d.presence != nil {
		d.presence.HandleConnect(ctx, conn.UserID)
	}
	if d.presence != nil {
		d.presence.SyncFriends(ctx, conn.UserID, conn.ID)
	}
	if err := d.resolver.ResumeActive(ctx, conn.UserID, conn.ID); err != nil {
		log.Warn().
			Err(err).
			Str("user_id", conn.UserID.String()).
			Str("connection_id", conn.ID).
			Msg("failed to resume in-flight game on connect")
	}
}

// HandleDisconnect deregisters the connection; the presence transition
// fires only when it was the user's last one.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, conn *Connection) {
	userID, last, ok := d.registry.Remove(conn.ID)
	if ok && last && d.presence != nil {
		d.presence.HandleDisconnect(ctx, userID)
	}
}

// HandleMessage parses and dispatches one inbound client message.
func (d *Dispatcher) HandleMessage(ctx context.Context, conn *Connection, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.sendError(conn, ErrCodeMalformed, "message is not valid JSON")
		return
	}

	if msg.Type == MessageTypePing {
		d.manager.ToConnection(conn.ID, events.New(events.EventTypePong, "", nil))
		return
	}

	gameID, err := uuid.Parse(msg.GameID)
	if err != nil {
		d.sendError(conn, ErrCodeMalformed, "game_id is missing or not a UUID")
		return
	}

	switch msg.Type {
	case MessageTypeJoinGameRoom:
		// Membership is set before the join fans out, so the joiner sees its
		// own announcement and every later room event in order.
		d.manager.JoinRoom(conn, msg.GameID)
		if err := d.resolver.HandleJoin(ctx, conn.UserID, gameID, conn.ID); err != nil {
			d.manager.LeaveRoom(conn, msg.GameID)
			d.sendMappedError(conn, err)
			return
		}

	case MessageTypeLeaveGameRoom:
		d.manager.LeaveRoom(conn, msg.GameID)

	case MessageTypeMove:
		err := d.relay.SubmitMove(ctx, conn.UserID, gameID, rules.MoveRequest{
			From:      msg.From,
			To:        msg.To,
			Promotion: msg.Promotion,
			Notation:  msg.Notation,
		})
		if err != nil {
			d.sendMappedError(conn, err)
		}

	case MessageTypeResign:
		if err := d.relay.Resign(ctx, conn.UserID, gameID); err != nil {
			d.sendMappedError(conn, err)
		}

	case MessageTypeOfferDraw:
		if err := d.relay.OfferDraw(ctx, conn.UserID, gameID); err != nil {
			d.sendMappedError(conn, err)
		}

	case MessageTypeRespondDraw:
		if err := d.relay.RespondDraw(ctx, conn.UserID, gameID, msg.Accept); err != nil {
			d.sendMappedError(conn, err)
		}

	case MessageTypePauseGame:
		if err := d.relay.Pause(ctx, conn.UserID, gameID); err != nil {
			d.sendMappedError(conn, err)
		}

	case MessageTypeResumeGame:
		if err := d.relay.Resume(ctx, conn.UserID, gameID); err != nil {
			d.sendMappedError(conn, err)
		}

	case MessageTypeRequestState:
		if err := d.resolver.RequestState(ctx, conn.UserID, gameID, conn.ID); err != nil {
			d.sendMappedError(conn, err)
		}

	default:
		log.Debug().
			Str("connection_id", conn.ID).
			Str("message_type", msg.Type).
			Msg("unknown client message type")
		d.sendError(conn, ErrCodeUnknownMessageType, "unsupported message type: "+msg.Type)
	}
}

// sendMappedError translates a rejection into an error event for the
// originating connection. Rejections never broadcast.
func (d *Dispatcher) sendMappedError(conn *Connection, err error) {
	code := ErrCodeInternal
	switch {
	case errors.Is(err, session.ErrGameNotFound):
		code = ErrCodeGameNotFound
	case errors.Is(err, session.ErrGameNotActive):
		code = ErrCodeGameNotActive
	case errors.Is(err, session.ErrNotPlayersTurn):
		code = ErrCodeNotPlayersTurn
	case errors.Is(err, session.ErrNotAParticipant):
		code = ErrCodeNotAParticipant
	case errors.Is(err, session.ErrDrawNotOffered):
		code = ErrCodeDrawNotOffered
	case errors.Is(err, session.ErrGameNotPaused):
		code = ErrCodeGameNotPaused
	case errors.Is(err, rules.ErrInvalidMove):
		code = ErrCodeInvalidMove
	}
	if code == ErrCodeInternal {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("internal error handling client message")
	}
	d.sendError(conn, code, err.Error())
}

func (d *Dispatcher) sendError(conn *Connection, code, message string) {
	d.manager.ToConnection(conn.ID, events.New(events.EventTypeError, "", events.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}
