package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jarlsgame/jarls/server/internal/auth"
	"github.com/jarlsgame/jarls/server/internal/logger"
	"github.com/jarlsgame/jarls/server/internal/model"
	"github.com/jarlsgame/jarls/server/internal/service"
	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// GameHandler handles the game REST endpoints.
type GameHandler struct {
	manager  *service.Manager
	sessions *auth.SessionManager
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(manager *service.Manager, sessions *auth.SessionManager) *GameHandler {
	return &GameHandler{manager: manager, sessions: sessions}
}

// sessionFor returns the authenticated session when it is bound to the game
// in the path. Writes the error response itself when it is not.
func sessionFor(w http.ResponseWriter, r *http.Request, gameID string) (*model.Session, bool) {
	s := auth.SessionFromContext(r.Context())
	if s == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid session token")
		return nil, false
	}
	if s.GameID != gameID {
		// Wrong-game sessions get the same opaque 401 as missing tokens.
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid session token")
		return nil, false
	}
	return s, true
}

// CreateGame handles POST /api/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req model.CreateGameRequest
	if err := decodeJSONOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	gameID, err := h.manager.Create(r.Context(), req.GameConfig())
	if err != nil {
		if errors.Is(err, service.ErrShuttingDown) {
			writeError(w, http.StatusServiceUnavailable, "SERVER_SHUTTING_DOWN", "server is shutting down")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"gameId": gameID})
}

// ListGames handles GET /api/games
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.List(r.Context()))
}

// GetStats handles GET /api/games/stats
func (h *GameHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		lg := logger.ForRequest(r.Context())
		lg.Error().Err(err).Msg("Stats query failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// JoinGame handles POST /api/games/{id}/join
func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	var req model.JoinGameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if strings.TrimSpace(req.PlayerName) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "playerName is required")
		return
	}

	playerID, _, err := h.manager.Join(r.Context(), gameID, req.PlayerName)
	if err != nil {
		status, code := http.StatusInternalServerError, "INTERNAL"
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			status, code = http.StatusNotFound, "GAME_NOT_FOUND"
		case errors.Is(err, jarls.ErrGameFull):
			status, code = http.StatusConflict, "GAME_FULL"
		case errors.Is(err, jarls.ErrNotInLobby):
			status, code = http.StatusConflict, "GAME_ALREADY_STARTED"
		case errors.Is(err, service.ErrGameUnavailable):
			status, code = http.StatusServiceUnavailable, "GAME_UNAVAILABLE"
		}
		writeError(w, status, code, err.Error())
		return
	}

	session, err := h.sessions.Create(r.Context(), gameID, playerID, req.PlayerName)
	if err != nil {
		lg := logger.ForRequest(r.Context())
		lg.Error().Err(err).Str("gameId", gameID).Str("playerId", playerID).Msg("Session create failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, model.JoinGameResponse{
		SessionToken: session.Token,
		PlayerID:     playerID,
	})
}

// AddAI handles POST /api/games/{id}/ai
func (h *GameHandler) AddAI(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	s, ok := sessionFor(w, r, gameID)
	if !ok {
		return
	}

	var req model.AddAIRequest
	if err := decodeJSONOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	aiID, cfg, err := h.manager.AddAI(r.Context(), gameID, s.PlayerID, jarls.AIConfig{
		Type:         req.Type,
		Difficulty:   req.Difficulty,
		Model:        req.Model,
		CustomPrompt: req.CustomPrompt,
	})
	if err != nil {
		status, code := http.StatusInternalServerError, "INTERNAL"
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			status, code = http.StatusNotFound, "GAME_NOT_FOUND"
		case errors.Is(err, jarls.ErrNotHost):
			status, code = http.StatusUnauthorized, "UNAUTHORIZED"
		case errors.Is(err, jarls.ErrGameFull):
			status, code = http.StatusConflict, "GAME_FULL"
		case errors.Is(err, jarls.ErrNotInLobby):
			status, code = http.StatusConflict, "GAME_ALREADY_STARTED"
		case errors.Is(err, service.ErrGameUnavailable):
			status, code = http.StatusServiceUnavailable, "GAME_UNAVAILABLE"
		}
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.AddAIResponse{AIPlayerID: aiID, AIConfig: *cfg})
}

// GetGame handles GET /api/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	if _, ok := sessionFor(w, r, gameID); !ok {
		return
	}

	state, err := h.manager.Get(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "game not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// StartGame handles POST /api/games/{id}/start
func (h *GameHandler) StartGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	s, ok := sessionFor(w, r, gameID)
	if !ok {
		return
	}

	if _, err := h.manager.Start(r.Context(), gameID, s.PlayerID); err != nil {
		status, code := http.StatusInternalServerError, "INTERNAL"
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			status, code = http.StatusNotFound, "GAME_NOT_FOUND"
		case errors.Is(err, jarls.ErrNotHost):
			status, code = http.StatusUnauthorized, "UNAUTHORIZED"
		case errors.Is(err, jarls.ErrNotEnoughPlayers):
			status, code = http.StatusConflict, "NOT_ENOUGH_PLAYERS"
		case errors.Is(err, jarls.ErrNotInLobby):
			status, code = http.StatusConflict, "GAME_ALREADY_STARTED"
		case errors.Is(err, service.ErrGameUnavailable):
			status, code = http.StatusServiceUnavailable, "GAME_UNAVAILABLE"
		}
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// ValidMoves handles GET /api/games/{id}/valid-moves/{pieceId}
func (h *GameHandler) ValidMoves(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	if _, ok := sessionFor(w, r, gameID); !ok {
		return
	}

	moves, err := h.manager.ValidMoves(r.Context(), gameID, r.PathValue("pieceId"))
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "game not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, moves)
}
