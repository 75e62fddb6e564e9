package jarls

import "testing"

func testConfig(radius int) Config {
	return Config{PlayerCount: 2, BoardRadius: radius, WarriorCount: 5, Terrain: TerrainCalm}
}

// playingState builds a two-player mid-game state with player "a" to move.
func playingState(radius int, pieces ...Piece) *GameState {
	return &GameState{
		ID:     "g1",
		Phase:  PhasePlaying,
		Config: testConfig(radius),
		Players: []Player{
			{ID: "a", Name: "Astrid", Color: "#b03a2e"},
			{ID: "b", Name: "Bjorn", Color: "#2471a3"},
		},
		Pieces:          pieces,
		CurrentPlayerID: "a",
		TurnNumber:      1,
		RoundNumber:     1,
	}
}

func piece(id string, t PieceType, playerID string, q, r int) Piece {
	return Piece{ID: id, Type: t, PlayerID: playerID, Position: Hex{Q: q, R: r}}
}

// cornerJarls parks both jarls far from the action so elimination sweeps
// leave the fixture players alive.
func cornerJarls(radius int) []Piece {
	return []Piece{
		piece("a-jarl", Jarl, "a", 0, radius),
		piece("b-jarl", Jarl, "b", 0, -radius),
	}
}

func withPieces(base []Piece, more ...Piece) []Piece {
	return append(append([]Piece{}, base...), more...)
}

func mustApply(t *testing.T, s *GameState, playerID string, cmd MoveCommand) *MoveResult {
	t.Helper()
	res, verr := ApplyMove(s, playerID, cmd)
	if verr != nil {
		t.Fatalf("ApplyMove(%s, %+v) rejected: %v", playerID, cmd, verr)
	}
	return res
}

func assertCode(t *testing.T, verr *ValidationError, want ErrorCode) {
	t.Helper()
	if verr == nil {
		t.Fatalf("expected validation error %s, got none", want)
	}
	if verr.Code != want {
		t.Fatalf("expected code %s, got %s (%s)", want, verr.Code, verr.Message)
	}
}

// checkIntegrity asserts the board invariants that must hold after any
// transition: unique on-board positions, no piece in a hole, one jarl per
// surviving player.
func checkIntegrity(t *testing.T, s *GameState) {
	t.Helper()
	seen := make(map[Hex]string)
	for _, p := range s.Pieces {
		if !OnBoard(p.Position, s.Config.BoardRadius) {
			t.Errorf("piece %s off board at (%d,%d)", p.ID, p.Position.Q, p.Position.R)
		}
		if other, dup := seen[p.Position]; dup {
			t.Errorf("pieces %s and %s share (%d,%d)", other, p.ID, p.Position.Q, p.Position.R)
		}
		seen[p.Position] = p.ID
		if s.HoleAt(p.Position) {
			t.Errorf("piece %s sits in a hole at (%d,%d)", p.ID, p.Position.Q, p.Position.R)
		}
	}
	if s.Phase == PhasePlaying || s.Phase == PhaseStarvation {
		for _, p := range s.Players {
			if p.IsEliminated {
				continue
			}
			jarls := 0
			for _, pc := range s.Pieces {
				if pc.PlayerID == p.ID && pc.Type == Jarl {
					jarls++
				}
			}
			if jarls != 1 {
				t.Errorf("player %s has %d jarls", p.ID, jarls)
			}
		}
	}
}
