package handler

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSEvent is the envelope for frames the server pushes to a game room.
type WSEvent struct {
	Type   string `json:"type"`
	GameID string `json:"gameId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// WSConn wraps a WebSocket connection together with the seat it is bound
// to. The binding fields are written by the joinGame handler and read only
// from the connection's own read loop.
type WSConn struct {
	conn *websocket.Conn
	send chan []byte

	gameID     string
	playerID   string
	playerName string
	token      string
	lastTouch  time.Time
}

// Hub tracks the open connections and which game room each one joined.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	rooms       map[string]map[*WSConn]bool // gameID -> members
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		rooms:       make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and its room, and closes its
// send channel.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
	for gameID, conns := range h.rooms {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, gameID)
		}
	}
	close(c.send)
}

// JoinRoom adds a connection to a game room.
func (h *Hub) JoinRoom(c *WSConn, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[gameID] == nil {
		h.rooms[gameID] = make(map[*WSConn]bool)
	}
	h.rooms[gameID][c] = true
}

// LeaveRoom removes a connection from a game room.
func (h *Hub) LeaveRoom(c *WSConn, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[gameID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, gameID)
		}
	}
}

// BroadcastToGame sends an event to every member of a game room. Slow
// consumers lose frames rather than stalling the room.
func (h *Hub) BroadcastToGame(gameID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[gameID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("playerId", c.playerID).Str("gameId", gameID).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// RoomSize returns the number of connections in a game room.
func (h *Hub) RoomSize(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[gameID])
}
