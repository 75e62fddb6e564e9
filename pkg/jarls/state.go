package jarls

// Phase represents a game's lifecycle phase.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhasePlaying    Phase = "playing"
	PhaseStarvation Phase = "starvation"
	PhasePaused     Phase = "paused"
	PhaseEnded      Phase = "ended"
)

// PieceType distinguishes the two piece kinds.
type PieceType string

const (
	Jarl    PieceType = "jarl"
	Warrior PieceType = "warrior"
)

// Strength returns the combat strength contributed by a piece of this type.
func (t PieceType) Strength() int {
	if t == Jarl {
		return 2
	}
	return 1
}

// Terrain selects how many holes the board is seeded with.
type Terrain string

const (
	TerrainCalm        Terrain = "calm"
	TerrainTreacherous Terrain = "treacherous"
	TerrainChaotic     Terrain = "chaotic"
)

// HoleCount returns the number of holes generated for this terrain.
func (t Terrain) HoleCount() int {
	switch t {
	case TerrainTreacherous:
		return 6
	case TerrainChaotic:
		return 9
	default:
		return 3
	}
}

// WinCondition records how a finished game was won.
type WinCondition string

const (
	WinThrone       WinCondition = "throne"
	WinLastStanding WinCondition = "lastStanding"
)

// Config holds the immutable per-game settings.
type Config struct {
	PlayerCount  int     `json:"playerCount"`
	BoardRadius  int     `json:"boardRadius"`
	WarriorCount int     `json:"warriorCount"`
	TurnTimerMs  *int    `json:"turnTimerMs,omitempty"`
	Terrain      Terrain `json:"terrain"`

	// LoneJarlTimeoutRounds eliminates a jarl whose player has had zero
	// warriors for this many consecutive rounds. Zero disables the rule.
	LoneJarlTimeoutRounds int `json:"loneJarlTimeoutRounds,omitempty"`
}

// DefaultConfig returns the standard two-player setup.
func DefaultConfig() Config {
	return Config{
		PlayerCount:  2,
		BoardRadius:  3,
		WarriorCount: 5,
		Terrain:      TerrainCalm,
	}
}

// AIConfig describes the adapter behind an AI-controlled player.
type AIConfig struct {
	Type         string `json:"type"`
	Difficulty   string `json:"difficulty"`
	Model        string `json:"model,omitempty"`
	CustomPrompt string `json:"customPrompt,omitempty"`
}

// Player is a participant in one game.
type Player struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Color        string    `json:"color"`
	IsEliminated bool      `json:"isEliminated"`
	IsAI         bool      `json:"isAI,omitempty"`
	AIConfig     *AIConfig `json:"aiConfig,omitempty"`
}

// Piece is a single jarl or warrior on the board.
type Piece struct {
	ID       string    `json:"id"`
	Type     PieceType `json:"type"`
	PlayerID string    `json:"playerId"`
	Position Hex       `json:"position"`
}

// Strength returns the piece's base combat strength.
func (p *Piece) Strength() int { return p.Type.Strength() }

// GameState is a complete snapshot of one game. Transitions never mutate a
// state in place; they clone, mutate the clone, and return it.
type GameState struct {
	ID                       string              `json:"id"`
	Phase                    Phase               `json:"phase"`
	Config                   Config              `json:"config"`
	Players                  []Player            `json:"players"`
	Pieces                   []Piece             `json:"pieces"`
	Holes                    []Hex               `json:"holes"`
	CurrentPlayerID          string              `json:"currentPlayerId,omitempty"`
	TurnNumber               int                 `json:"turnNumber"`
	RoundNumber              int                 `json:"roundNumber"`
	FirstPlayerIndex         int                 `json:"firstPlayerIndex"`
	RoundsSinceElimination   int                 `json:"roundsSinceElimination"`
	WinnerID                 string              `json:"winnerId,omitempty"`
	WinCondition             WinCondition        `json:"winCondition,omitempty"`
	StarvationCandidates     map[string][]string `json:"starvationCandidates,omitempty"`
	PendingStarvationChoices map[string]string   `json:"pendingStarvationChoices,omitempty"`
	DisconnectedPlayers      []string            `json:"disconnectedPlayers,omitempty"`

	// ResumePhase remembers whether a paused game returns to playing or
	// starvation once everyone is back.
	ResumePhase Phase `json:"resumePhase,omitempty"`

	// LoneJarlRounds counts consecutive rounds each player has spent with a
	// jarl but no warriors. Only tracked when the rule is enabled.
	LoneJarlRounds map[string]int `json:"loneJarlRounds,omitempty"`
}

// Clone returns a deep copy. Callers may mutate the copy freely.
func (s *GameState) Clone() *GameState {
	c := *s
	c.Players = make([]Player, len(s.Players))
	copy(c.Players, s.Players)
	for i := range c.Players {
		if ai := c.Players[i].AIConfig; ai != nil {
			cp := *ai
			c.Players[i].AIConfig = &cp
		}
	}
	c.Pieces = make([]Piece, len(s.Pieces))
	copy(c.Pieces, s.Pieces)
	c.Holes = make([]Hex, len(s.Holes))
	copy(c.Holes, s.Holes)
	if s.StarvationCandidates != nil {
		c.StarvationCandidates = make(map[string][]string, len(s.StarvationCandidates))
		for k, v := range s.StarvationCandidates {
			ids := make([]string, len(v))
			copy(ids, v)
			c.StarvationCandidates[k] = ids
		}
	}
	if s.PendingStarvationChoices != nil {
		c.PendingStarvationChoices = make(map[string]string, len(s.PendingStarvationChoices))
		for k, v := range s.PendingStarvationChoices {
			c.PendingStarvationChoices[k] = v
		}
	}
	if s.DisconnectedPlayers != nil {
		c.DisconnectedPlayers = make([]string, len(s.DisconnectedPlayers))
		copy(c.DisconnectedPlayers, s.DisconnectedPlayers)
	}
	if s.LoneJarlRounds != nil {
		c.LoneJarlRounds = make(map[string]int, len(s.LoneJarlRounds))
		for k, v := range s.LoneJarlRounds {
			c.LoneJarlRounds[k] = v
		}
	}
	return &c
}

// PieceAt returns the piece occupying h, or nil.
func (s *GameState) PieceAt(h Hex) *Piece {
	for i := range s.Pieces {
		if s.Pieces[i].Position == h {
			return &s.Pieces[i]
		}
	}
	return nil
}

// PieceByID returns the piece with the given id, or nil.
func (s *GameState) PieceByID(id string) *Piece {
	for i := range s.Pieces {
		if s.Pieces[i].ID == id {
			return &s.Pieces[i]
		}
	}
	return nil
}

// PlayerByID returns the player with the given id, or nil.
func (s *GameState) PlayerByID(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// HoleAt reports whether h is a hole.
func (s *GameState) HoleAt(h Hex) bool {
	for _, hole := range s.Holes {
		if hole == h {
			return true
		}
	}
	return false
}

// PlayerPieces returns pointers to every piece owned by the player.
func (s *GameState) PlayerPieces(playerID string) []*Piece {
	var out []*Piece
	for i := range s.Pieces {
		if s.Pieces[i].PlayerID == playerID {
			out = append(out, &s.Pieces[i])
		}
	}
	return out
}

// JarlOf returns the player's jarl, or nil once it has been eliminated.
func (s *GameState) JarlOf(playerID string) *Piece {
	for i := range s.Pieces {
		if s.Pieces[i].PlayerID == playerID && s.Pieces[i].Type == Jarl {
			return &s.Pieces[i]
		}
	}
	return nil
}

// WarriorsOf returns the player's surviving warriors.
func (s *GameState) WarriorsOf(playerID string) []*Piece {
	var out []*Piece
	for i := range s.Pieces {
		if s.Pieces[i].PlayerID == playerID && s.Pieces[i].Type == Warrior {
			out = append(out, &s.Pieces[i])
		}
	}
	return out
}

// AlivePlayers returns the non-eliminated players in seat order.
func (s *GameState) AlivePlayers() []*Player {
	var out []*Player
	for i := range s.Players {
		if !s.Players[i].IsEliminated {
			out = append(out, &s.Players[i])
		}
	}
	return out
}

// HostID returns the first-joined player's id, or empty before anyone joins.
func (s *GameState) HostID() string {
	if len(s.Players) == 0 {
		return ""
	}
	return s.Players[0].ID
}

// IsDisconnected reports whether the player is in the disconnected set.
func (s *GameState) IsDisconnected(playerID string) bool {
	for _, id := range s.DisconnectedPlayers {
		if id == playerID {
			return true
		}
	}
	return false
}

// removePiece deletes the piece with the given id, preserving order.
func (s *GameState) removePiece(id string) {
	for i := range s.Pieces {
		if s.Pieces[i].ID == id {
			s.Pieces = append(s.Pieces[:i], s.Pieces[i+1:]...)
			return
		}
	}
}

// removeDisconnected drops playerID from the disconnected set.
func (s *GameState) removeDisconnected(playerID string) {
	for i, id := range s.DisconnectedPlayers {
		if id == playerID {
			s.DisconnectedPlayers = append(s.DisconnectedPlayers[:i], s.DisconnectedPlayers[i+1:]...)
			if len(s.DisconnectedPlayers) == 0 {
				s.DisconnectedPlayers = nil
			}
			return
		}
	}
}
