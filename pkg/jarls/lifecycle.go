package jarls

import (
	"errors"
	"fmt"
)

var (
	ErrNotInLobby       = errors.New("game is not in the lobby phase")
	ErrGameFull         = errors.New("game is full")
	ErrNotHost          = errors.New("only the host may start the game")
	ErrNotEnoughPlayers = errors.New("at least two players are required")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrGameOver         = errors.New("game has already ended")
)

// playerColors is the seat-order palette.
var playerColors = [...]string{
	"#b03a2e", // red
	"#2471a3", // blue
	"#239b56", // green
	"#b7950b", // gold
	"#7d3c98", // purple
	"#ca6f1e", // orange
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.PlayerCount < 2 || c.PlayerCount > 6 {
		return fmt.Errorf("playerCount must be between 2 and 6, got %d", c.PlayerCount)
	}
	if c.BoardRadius < 3 || c.BoardRadius > 6 {
		return fmt.Errorf("boardRadius must be between 3 and 6, got %d", c.BoardRadius)
	}
	if c.WarriorCount < 1 || c.WarriorCount > 8 {
		return fmt.Errorf("warriorCount must be between 1 and 8, got %d", c.WarriorCount)
	}
	switch c.Terrain {
	case TerrainCalm, TerrainTreacherous, TerrainChaotic:
	default:
		return fmt.Errorf("unknown terrain %q", c.Terrain)
	}
	if c.TurnTimerMs != nil && *c.TurnTimerMs <= 0 {
		return fmt.Errorf("turnTimerMs must be positive")
	}
	return nil
}

// NewGame creates an empty lobby. Zero config fields fall back to defaults.
func NewGame(id string, cfg Config) *GameState {
	def := DefaultConfig()
	if cfg.PlayerCount == 0 {
		cfg.PlayerCount = def.PlayerCount
	}
	if cfg.BoardRadius == 0 {
		cfg.BoardRadius = def.BoardRadius
	}
	if cfg.WarriorCount == 0 {
		cfg.WarriorCount = def.WarriorCount
	}
	if cfg.Terrain == "" {
		cfg.Terrain = def.Terrain
	}
	return &GameState{ID: id, Phase: PhaseLobby, Config: cfg}
}

// AddPlayer seats a new player in the lobby.
func AddPlayer(s *GameState, playerID, name string) (*GameState, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrNotInLobby
	}
	if len(s.Players) >= s.Config.PlayerCount {
		return nil, ErrGameFull
	}
	next := s.Clone()
	next.Players = append(next.Players, Player{
		ID:    playerID,
		Name:  name,
		Color: playerColors[len(next.Players)%len(playerColors)],
	})
	return next, nil
}

// AddAIPlayer seats an AI-controlled player in the lobby.
func AddAIPlayer(s *GameState, playerID, name string, cfg AIConfig) (*GameState, error) {
	next, err := AddPlayer(s, playerID, name)
	if err != nil {
		return nil, err
	}
	p := next.PlayerByID(playerID)
	p.IsAI = true
	c := cfg
	p.AIConfig = &c
	return next, nil
}

// RemovePlayer unseats a player who left the lobby. The next-oldest player
// becomes the host.
func RemovePlayer(s *GameState, playerID string) (*GameState, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrNotInLobby
	}
	if s.PlayerByID(playerID) == nil {
		return nil, ErrPlayerNotFound
	}
	next := s.Clone()
	for i := range next.Players {
		if next.Players[i].ID == playerID {
			next.Players = append(next.Players[:i], next.Players[i+1:]...)
			break
		}
	}
	return next, nil
}

// StartGame populates the board and begins play. Only the host (the
// first-joined player) may start, and at least two seats must be filled.
func StartGame(s *GameState, callerID string, seed int64) (*GameState, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrNotInLobby
	}
	if callerID != s.HostID() {
		return nil, ErrNotHost
	}
	if len(s.Players) < 2 {
		return nil, ErrNotEnoughPlayers
	}
	next := s.Clone()
	next.setupBoard(seed)
	next.Phase = PhasePlaying
	next.FirstPlayerIndex = 0
	next.CurrentPlayerID = next.Players[0].ID
	next.TurnNumber = 1
	next.RoundNumber = 1
	next.RoundsSinceElimination = 0
	return next, nil
}

// MarkDisconnected records a dropped player during play and pauses the
// game. Reports false when nothing changed.
func MarkDisconnected(s *GameState, playerID string) (*GameState, bool) {
	p := s.PlayerByID(playerID)
	if p == nil || p.IsEliminated || s.Phase == PhaseLobby || s.Phase == PhaseEnded {
		return s, false
	}
	if s.IsDisconnected(playerID) {
		return s, false
	}
	next := s.Clone()
	next.DisconnectedPlayers = append(next.DisconnectedPlayers, playerID)
	if next.Phase == PhasePlaying || next.Phase == PhaseStarvation {
		next.ResumePhase = next.Phase
		next.Phase = PhasePaused
	}
	return next, true
}

// MarkReconnected clears a player's disconnected flag and resumes the game
// once nobody is missing. Reconnecting while connected is a no-op.
func MarkReconnected(s *GameState, playerID string) (*GameState, bool) {
	if !s.IsDisconnected(playerID) {
		return s, false
	}
	next := s.Clone()
	next.removeDisconnected(playerID)
	if next.Phase == PhasePaused && len(next.DisconnectedPlayers) == 0 {
		next.Phase = next.ResumePhase
		if next.Phase == "" {
			next.Phase = PhasePlaying
		}
		next.ResumePhase = ""
	}
	return next, true
}

// Forfeit eliminates a player who abandoned the game. Their pieces and
// pending obligations are removed and play resumes without them.
func Forfeit(s *GameState, playerID string) (*GameState, []Event, error) {
	p := s.PlayerByID(playerID)
	if p == nil {
		return nil, nil, ErrPlayerNotFound
	}
	if s.Phase == PhaseLobby {
		return nil, nil, ErrNotInLobby
	}
	if s.Phase == PhaseEnded {
		return nil, nil, ErrGameOver
	}
	if p.IsEliminated {
		return s.Clone(), nil, nil
	}

	next := s.Clone()
	var events []Event
	if jarl := next.JarlOf(playerID); jarl != nil {
		events = append(events, eliminatedEvent(jarl.ID, jarl.Position, CauseForfeit))
		next.removePiece(jarl.ID)
	}
	next.PlayerByID(playerID).IsEliminated = true
	for _, w := range next.WarriorsOf(playerID) {
		next.removePiece(w.ID)
	}
	next.removeDisconnected(playerID)
	delete(next.StarvationCandidates, playerID)
	delete(next.PendingStarvationChoices, playerID)
	if len(next.StarvationCandidates) == 0 {
		next.StarvationCandidates = nil
	}

	if next.Phase == PhasePaused && len(next.DisconnectedPlayers) == 0 {
		next.Phase = next.ResumePhase
		if next.Phase == "" {
			next.Phase = PhasePlaying
		}
		next.ResumePhase = ""
	}

	if winnerID, over := next.lastStanding(); over {
		events = append(events, next.finishGame(winnerID, WinLastStanding))
		return next, events, nil
	}

	// The departed player may have been the last outstanding sacrifice.
	if next.Phase == PhaseStarvation &&
		len(next.PendingStarvationChoices) == len(next.StarvationCandidates) {
		events = next.resolveStarvation(events)
		if next.Phase == PhaseEnded {
			return next, events, nil
		}
	}

	if next.CurrentPlayerID == playerID {
		switch next.Phase {
		case PhasePlaying:
			events = next.advanceTurn(true, events)
		case PhaseStarvation, PhasePaused:
			// Hand the turn over without round bookkeeping; the round
			// machinery is suspended in these phases.
			next.TurnNumber++
			n := len(next.Players)
			seat := next.seatOf(playerID)
			for i := 1; i <= n; i++ {
				cand := &next.Players[(seat+i)%n]
				if !cand.IsEliminated {
					next.CurrentPlayerID = cand.ID
					break
				}
			}
		}
	}
	return next, events, nil
}
