package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// WSEvent mirrors the server's socket envelope for client-side
// deserialization. Acks carry requestId and success; broadcasts carry
// gameId. Payloads for both live in Data.
type WSEvent struct {
	Type      string         `json:"type"`
	RequestID string         `json:"requestId,omitempty"`
	GameID    string         `json:"gameId,omitempty"`
	Success   bool           `json:"success,omitempty"`
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Client is an HTTP+WebSocket client for a single seat in a game. It backs
// the selfplay harness and doubles as a reference client for the API.
type Client struct {
	name     string
	baseURL  string
	token    string
	playerID string
	wsConn   *websocket.Conn
	events   chan WSEvent
	httpC    *http.Client

	mu       sync.Mutex
	closedWS bool
	nextReq  int
	pending  map[string]chan WSEvent
}

// NewClient creates a new client targeting the given server URL.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		events:  make(chan WSEvent, 64),
		httpC:   &http.Client{Timeout: 30 * time.Second},
		pending: make(map[string]chan WSEvent),
	}
}

// Name returns the player name this client joins with.
func (c *Client) Name() string { return c.name }

// PlayerID returns the server-assigned player ID after a join.
func (c *Client) PlayerID() string { return c.playerID }

// SessionToken returns the session token after a join.
func (c *Client) SessionToken() string { return c.token }

// CreateGame creates a new game and returns its ID. No session is needed.
func (c *Client) CreateGame(playerCount, boardRadius int, turnTimerMs *int, terrain string) (string, error) {
	body := map[string]any{}
	if playerCount > 0 {
		body["playerCount"] = playerCount
	}
	if boardRadius > 0 {
		body["boardRadius"] = boardRadius
	}
	if turnTimerMs != nil {
		body["turnTimerMs"] = *turnTimerMs
	}
	if terrain != "" {
		body["terrain"] = terrain
	}
	resp, err := c.postJSON("/api/games", body)
	if err != nil {
		return "", err
	}
	id, _ := resp["gameId"].(string)
	return id, nil
}

// JoinGame claims a seat and stores the returned session token.
func (c *Client) JoinGame(gameID string) error {
	resp, err := c.postJSON("/api/games/"+gameID+"/join", map[string]any{"playerName": c.name})
	if err != nil {
		return err
	}
	token, _ := resp["sessionToken"].(string)
	playerID, _ := resp["playerId"].(string)
	if token == "" || playerID == "" {
		return fmt.Errorf("join response missing sessionToken or playerId")
	}
	c.token = token
	c.playerID = playerID
	log.Debug().Str("bot", c.name).Str("playerId", playerID).Msg("Joined game")
	return nil
}

// AddAI seats a computer player. Only the host's session may call this.
func (c *Client) AddAI(gameID string, cfg jarls.AIConfig) (string, error) {
	resp, err := c.postJSON("/api/games/"+gameID+"/ai", map[string]any{
		"type":         cfg.Type,
		"difficulty":   cfg.Difficulty,
		"model":        cfg.Model,
		"customPrompt": cfg.CustomPrompt,
	})
	if err != nil {
		return "", err
	}
	id, _ := resp["aiPlayerId"].(string)
	return id, nil
}

// StartGame starts a game over HTTP (host only).
func (c *Client) StartGame(gameID string) error {
	_, err := c.postJSON("/api/games/"+gameID+"/start", nil)
	return err
}

// GetGame fetches the full game state.
func (c *Client) GetGame(gameID string) (map[string]any, error) {
	return c.getJSON("/api/games/" + gameID)
}

// GameState fetches the full game state decoded into engine form.
func (c *Client) GameState(gameID string) (*jarls.GameState, error) {
	raw, err := c.GetGame(gameID)
	if err != nil {
		return nil, err
	}
	return decodeState(raw)
}

// ValidMoves fetches the legal moves for one piece.
func (c *Client) ValidMoves(gameID, pieceID string) ([]jarls.ValidMove, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/games/"+gameID+"/valid-moves/"+pieceID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpC.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET valid-moves: status %d: %s", resp.StatusCode, body)
	}
	var moves []jarls.ValidMove
	if err := json.Unmarshal(body, &moves); err != nil {
		return nil, fmt.Errorf("decode valid moves: %w", err)
	}
	return moves, nil
}

// ConnectWS opens the socket connection and starts the read loop.
func (c *Client) ConnectWS() error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	c.wsConn = conn

	go c.readWSLoop()
	return nil
}

// JoinGameWS binds this connection to the game room using the session token
// obtained from JoinGame. Also how reconnection is performed.
func (c *Client) JoinGameWS(ctx context.Context, gameID string) (*WSEvent, error) {
	return c.sendAwait(ctx, "joinGame", map[string]any{
		"gameId":       gameID,
		"sessionToken": c.token,
	})
}

// StartGameWS starts the game over the socket (host only).
func (c *Client) StartGameWS(ctx context.Context, gameID string) (*WSEvent, error) {
	return c.sendAwait(ctx, "startGame", map[string]any{"gameId": gameID})
}

// PlayTurn submits one move and waits for the ack.
func (c *Client) PlayTurn(ctx context.Context, gameID string, cmd jarls.MoveCommand, turnNumber int) (*WSEvent, error) {
	return c.sendAwait(ctx, "playTurn", map[string]any{
		"gameId":     gameID,
		"command":    cmd,
		"turnNumber": turnNumber,
	})
}

// StarvationChoice submits a sacrifice pick and waits for the ack.
func (c *Client) StarvationChoice(ctx context.Context, gameID, pieceID string) (*WSEvent, error) {
	return c.sendAwait(ctx, "starvationChoice", map[string]any{
		"gameId":  gameID,
		"pieceId": pieceID,
	})
}

// Events returns the channel of incoming broadcast events. Acks are routed
// to their waiting callers and do not appear here.
func (c *Client) Events() <-chan WSEvent { return c.events }

// CloseWS closes the socket connection.
func (c *Client) CloseWS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil && !c.closedWS {
		c.closedWS = true
		c.wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wsConn.Close()
	}
}

// sendAwait writes one request frame and blocks until its ack or ctx end.
func (c *Client) sendAwait(ctx context.Context, msgType string, data map[string]any) (*WSEvent, error) {
	c.mu.Lock()
	if c.wsConn == nil || c.closedWS {
		c.mu.Unlock()
		return nil, fmt.Errorf("ws not connected")
	}
	c.nextReq++
	reqID := fmt.Sprintf("%s-%d", c.name, c.nextReq)
	ch := make(chan WSEvent, 1)
	c.pending[reqID] = ch
	err := c.wsConn.WriteJSON(map[string]any{
		"type":      msgType,
		"requestId": reqID,
		"data":      data,
	})
	c.mu.Unlock()
	if err != nil {
		c.dropPending(reqID)
		return nil, fmt.Errorf("ws write %s: %w", msgType, err)
	}

	select {
	case ev, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("ws closed awaiting %s ack", msgType)
		}
		if !ev.Success {
			return &ev, fmt.Errorf("%s rejected: %s: %s", msgType, ev.Error, ev.Message)
		}
		return &ev, nil
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	}
}

func (c *Client) dropPending(reqID string) {
	c.mu.Lock()
	delete(c.pending, reqID)
	c.mu.Unlock()
}

func (c *Client) readWSLoop() {
	defer func() {
		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		close(c.events)
	}()
	for {
		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			if !c.closedWS {
				log.Debug().Err(err).Str("bot", c.name).Msg("WS read error")
			}
			return
		}
		// The server batches queued frames newline-separated into a single
		// message, so decode until the payload runs out.
		dec := json.NewDecoder(bytes.NewReader(msg))
		for {
			var event WSEvent
			if err := dec.Decode(&event); err != nil {
				break
			}
			c.dispatch(event)
		}
	}
}

func (c *Client) dispatch(event WSEvent) {
	if event.Type == "ack" {
		c.mu.Lock()
		ch := c.pending[event.RequestID]
		delete(c.pending, event.RequestID)
		c.mu.Unlock()
		if ch != nil {
			ch <- event
		}
		return
	}
	c.events <- event
}

func (c *Client) getJSON(path string) (map[string]any, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpC.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

func (c *Client) postJSON(path string, payload any) (map[string]any, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpC.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, body)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}
