package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gorilla/websocket"
	"github.com/jarlsgame/jarls/server/internal/auth"
	"github.com/jarlsgame/jarls/server/internal/service"
	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256

	wsOpTimeout = 10 * time.Second

	// sessionTouchInterval throttles socket-driven session TTL refreshes.
	sessionTouchInterval = time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware; tighten in production
	},
}

// ClientMessage is the envelope for frames sent by the client.
type ClientMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

// wsAck is the reply to one client request, matched by requestId.
type wsAck struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// WSHandler handles WebSocket connections. Sockets upgrade unauthenticated;
// a joinGame frame carrying the session token binds the socket to its seat.
type WSHandler struct {
	hub      *Hub
	sessions *auth.SessionManager
	manager  *service.Manager
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, sessions *auth.SessionManager, manager *service.Manager) *WSHandler {
	return &WSHandler{hub: hub, sessions: sessions, manager: manager}
}

// ServeWS handles GET /api/ws — upgrades to WebSocket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)

	// Send a welcome message so the client can confirm the connection is live.
	welcome, _ := json.Marshal(WSEvent{Type: "connected", Data: map[string]any{}})
	client.send <- welcome

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		if c.playerID != "" {
			h.manager.OnDisconnect(c.gameID, c.playerID)
		}
		log.Info().Str("gameId", c.gameID).Str("playerId", c.playerID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("playerId", c.playerID).Msg("WebSocket unexpected close")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "joinGame":
			h.handleJoinGame(c, msg)
		case "startGame":
			h.handleStartGame(c, msg)
		case "playTurn":
			h.handlePlayTurn(c, msg)
		case "starvationChoice":
			h.handleStarvationChoice(c, msg)
		default:
			h.ack(c, msg.RequestID, false, "UNKNOWN_TYPE", fmt.Sprintf("unknown message type %q", msg.Type), nil)
		}
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleJoinGame authenticates the socket and binds it to a game room. The
// same frame doubles as the reconnect path.
func (h *WSHandler) handleJoinGame(c *WSConn, msg ClientMessage) {
	var data struct {
		GameID       string `json:"gameId"`
		SessionToken string `json:"sessionToken"`
	}
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.GameID == "" {
		h.ack(c, msg.RequestID, false, "INVALID_REQUEST", "joinGame requires gameId and sessionToken", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	s, err := h.sessions.Validate(ctx, data.SessionToken)
	if err != nil {
		h.ack(c, msg.RequestID, false, "UNAUTHORIZED", "missing or invalid session token", nil)
		return
	}
	if s.GameID != data.GameID {
		h.ack(c, msg.RequestID, false, "UNAUTHORIZED", "missing or invalid session token", nil)
		return
	}
	if _, err := h.manager.Get(ctx, s.GameID); err != nil {
		h.ackError(c, msg.RequestID, err)
		return
	}

	if c.gameID != "" && c.gameID != s.GameID {
		h.hub.LeaveRoom(c, c.gameID)
	}
	c.gameID = s.GameID
	c.playerID = s.PlayerID
	c.playerName = s.PlayerName
	c.token = data.SessionToken
	c.lastTouch = time.Now() // Validate just refreshed the TTL
	h.hub.JoinRoom(c, s.GameID)

	// Clears the grace window and resumes a paused game; no-op for a first
	// connection.
	h.manager.OnReconnect(s.GameID, s.PlayerID)

	state, err := h.manager.Get(ctx, s.GameID)
	if err != nil {
		h.ackError(c, msg.RequestID, err)
		return
	}
	h.ack(c, msg.RequestID, true, "", "", map[string]any{
		"gameState": state,
		"playerId":  s.PlayerID,
	})
	log.Info().Str("gameId", s.GameID).Str("playerId", s.PlayerID).Msg("Socket joined game room")
}

// handleStartGame starts the game the socket is bound to.
func (h *WSHandler) handleStartGame(c *WSConn, msg ClientMessage) {
	if !h.requireBound(c, msg) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	state, err := h.manager.Start(ctx, c.gameID, c.playerID)
	if err != nil {
		h.ackError(c, msg.RequestID, err)
		return
	}
	h.ack(c, msg.RequestID, true, "", "", map[string]any{"gameState": state})
}

// handlePlayTurn validates and applies one move command.
func (h *WSHandler) handlePlayTurn(c *WSConn, msg ClientMessage) {
	if !h.requireBound(c, msg) {
		return
	}
	var data struct {
		GameID     string            `json:"gameId"`
		Command    jarls.MoveCommand `json:"command"`
		TurnNumber *int              `json:"turnNumber"`
	}
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.ack(c, msg.RequestID, false, "INVALID_REQUEST", "invalid playTurn payload", nil)
		return
	}
	if data.GameID != "" && data.GameID != c.gameID {
		h.ack(c, msg.RequestID, false, "FORBIDDEN", "socket is bound to a different game", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	res, err := h.manager.MakeMove(ctx, c.gameID, c.playerID, data.Command, data.TurnNumber)
	if err != nil {
		h.ackError(c, msg.RequestID, err)
		return
	}
	h.ack(c, msg.RequestID, true, "", "", map[string]any{
		"newState": res.State,
		"events":   res.Events,
	})
}

// handleStarvationChoice records the player's sacrifice pick.
func (h *WSHandler) handleStarvationChoice(c *WSConn, msg ClientMessage) {
	if !h.requireBound(c, msg) {
		return
	}
	var data struct {
		GameID  string `json:"gameId"`
		PieceID string `json:"pieceId"`
	}
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.PieceID == "" {
		h.ack(c, msg.RequestID, false, "INVALID_REQUEST", "starvationChoice requires pieceId", nil)
		return
	}
	if data.GameID != "" && data.GameID != c.gameID {
		h.ack(c, msg.RequestID, false, "FORBIDDEN", "socket is bound to a different game", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	res, err := h.manager.SubmitStarvationChoice(ctx, c.gameID, c.playerID, data.PieceID)
	if err != nil {
		h.ackError(c, msg.RequestID, err)
		return
	}
	h.ack(c, msg.RequestID, true, "", "", res)
}

// requireBound rejects game frames sent before a successful joinGame. Bound
// frames count as session activity, so the token's TTL is refreshed here; a
// client playing purely over the socket keeps its reconnect token alive.
func (h *WSHandler) requireBound(c *WSConn, msg ClientMessage) bool {
	if c.playerID == "" {
		h.ack(c, msg.RequestID, false, "NOT_JOINED", "join the game before sending game commands", nil)
		return false
	}
	h.touchSession(c)
	return true
}

// touchSession refreshes the socket's session TTL, at most once per
// sessionTouchInterval. lastTouch is only ever used from the read loop.
func (h *WSHandler) touchSession(c *WSConn) {
	if c.token == "" || time.Since(c.lastTouch) < sessionTouchInterval {
		return
	}
	c.lastTouch = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()
	if err := h.sessions.Refresh(ctx, c.token); err != nil {
		log.Warn().Err(err).Str("gameId", c.gameID).Str("playerId", c.playerID).Msg("Session TTL refresh failed")
	}
}

// ack sends one reply frame to a single connection.
func (h *WSHandler) ack(c *WSConn, requestID string, success bool, code, message string, data any) {
	frame, err := json.Marshal(wsAck{
		Type:      "ack",
		RequestID: requestID,
		Success:   success,
		Error:     code,
		Message:   message,
		Data:      data,
	})
	if err != nil {
		log.Error().Err(err).Str("playerId", c.playerID).Msg("Failed to marshal ack")
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("playerId", c.playerID).Msg("Dropping ack, buffer full")
	}
}

// ackError translates a Manager error into a rejection ack. Validation
// failures keep their engine code and message; everything else maps to a
// stable transport code.
func (h *WSHandler) ackError(c *WSConn, requestID string, err error) {
	var verr *jarls.ValidationError
	switch {
	case errors.As(err, &verr):
		h.ack(c, requestID, false, string(verr.Code), verr.Message, nil)
	case errors.Is(err, service.ErrStaleMove):
		h.ack(c, requestID, false, "STALE_MOVE", "Stale move request", nil)
	case errors.Is(err, service.ErrGameNotFound):
		h.ack(c, requestID, false, "GAME_NOT_FOUND", "game not found", nil)
	case errors.Is(err, service.ErrGameUnavailable):
		h.ack(c, requestID, false, "GAME_UNAVAILABLE", "game is temporarily unavailable", nil)
	case errors.Is(err, jarls.ErrNotHost):
		h.ack(c, requestID, false, "UNAUTHORIZED", err.Error(), nil)
	case errors.Is(err, jarls.ErrNotEnoughPlayers):
		h.ack(c, requestID, false, "NOT_ENOUGH_PLAYERS", err.Error(), nil)
	case errors.Is(err, jarls.ErrNotInLobby):
		h.ack(c, requestID, false, "GAME_ALREADY_STARTED", err.Error(), nil)
	default:
		log.Error().Err(err).Str("gameId", c.gameID).Msg("WebSocket command failed")
		h.ack(c, requestID, false, "INTERNAL", "internal server error", nil)
	}
}
