package model

import (
	"encoding/json"
	"time"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// GameSummary is one row of the public game listing.
type GameSummary struct {
	GameID      string          `json:"gameId"`
	Status      string          `json:"status"`
	PlayerCount int             `json:"playerCount"`
	MaxPlayers  int             `json:"maxPlayers"`
	TurnTimerMs *int            `json:"turnTimerMs"`
	CreatedAt   time.Time       `json:"createdAt"`
	Players     []PlayerSummary `json:"players"`
}

// PlayerSummary names one seated player.
type PlayerSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GameStats aggregates the server-wide game counts.
type GameStats struct {
	TotalGames      int `json:"totalGames"`
	OpenLobbies     int `json:"openLobbies"`
	GamesInProgress int `json:"gamesInProgress"`
	GamesEnded      int `json:"gamesEnded"`
}

// Session binds a bearer token to one seat in one game.
type Session struct {
	Token      string    `json:"-"`
	GameID     string    `json:"gameId"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateGameRequest is the body of POST /api/games. Omitted fields fall
// back to the engine defaults.
type CreateGameRequest struct {
	PlayerCount  int           `json:"playerCount,omitempty"`
	BoardRadius  int           `json:"boardRadius,omitempty"`
	WarriorCount int           `json:"warriorCount,omitempty"`
	TurnTimerMs  *int          `json:"turnTimerMs,omitempty"`
	Terrain      jarls.Terrain `json:"terrain,omitempty"`
}

// GameConfig converts the request into an engine configuration.
func (r CreateGameRequest) GameConfig() jarls.Config {
	return jarls.Config{
		PlayerCount:  r.PlayerCount,
		BoardRadius:  r.BoardRadius,
		WarriorCount: r.WarriorCount,
		TurnTimerMs:  r.TurnTimerMs,
		Terrain:      r.Terrain,
	}
}

// JoinGameRequest is the body of POST /api/games/{id}/join.
type JoinGameRequest struct {
	PlayerName string `json:"playerName"`
}

// JoinGameResponse carries the new player's credentials.
type JoinGameResponse struct {
	SessionToken string `json:"sessionToken"`
	PlayerID     string `json:"playerId"`
}

// AddAIRequest is the body of POST /api/games/{id}/ai.
type AddAIRequest struct {
	Type         string `json:"type"`
	Difficulty   string `json:"difficulty"`
	Model        string `json:"model,omitempty"`
	CustomPrompt string `json:"customPrompt,omitempty"`
}

// AddAIResponse identifies the seated AI player.
type AddAIResponse struct {
	AIPlayerID string         `json:"aiPlayerId"`
	AIConfig   jarls.AIConfig `json:"aiConfig"`
}

// GameRecord is one persisted snapshot row. State is the engine state as an
// opaque blob; Version increases by exactly one per committed mutation.
type GameRecord struct {
	GameID    string
	State     json.RawMessage
	Version   int
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventRecord is one appended row of a game's event log.
type EventRecord struct {
	ID         int64
	GameID     string
	TurnNumber int
	EventType  string
	EventData  json.RawMessage
	CreatedAt  time.Time
}
