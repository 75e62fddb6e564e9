package bot

import (
	"context"
	"testing"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

func testConfig(radius int) jarls.Config {
	return jarls.Config{
		PlayerCount:  2,
		BoardRadius:  radius,
		WarriorCount: 5,
		Terrain:      jarls.TerrainCalm,
	}
}

func playingState(radius int, pieces ...jarls.Piece) *jarls.GameState {
	return &jarls.GameState{
		ID:     "g1",
		Phase:  jarls.PhasePlaying,
		Config: testConfig(radius),
		Players: []jarls.Player{
			{ID: "a", Name: "Astrid", Color: "#b03a2e"},
			{ID: "b", Name: "Bjorn", Color: "#2471a3"},
		},
		Pieces:          pieces,
		CurrentPlayerID: "a",
		TurnNumber:      1,
		RoundNumber:     1,
	}
}

func piece(id string, t jarls.PieceType, playerID string, q, r int) jarls.Piece {
	return jarls.Piece{ID: id, Type: t, PlayerID: playerID, Position: jarls.Hex{Q: q, R: r}}
}

func startedGame(t *testing.T, seed int64) *jarls.GameState {
	t.Helper()
	s := jarls.NewGame("g1", testConfig(4))
	s, err := jarls.AddPlayer(s, "a", "Astrid")
	if err != nil {
		t.Fatalf("AddPlayer a: %v", err)
	}
	s, err = jarls.AddPlayer(s, "b", "Bjorn")
	if err != nil {
		t.Fatalf("AddPlayer b: %v", err)
	}
	s, err = jarls.StartGame(s, "a", seed)
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	return s
}

func TestStrategyForDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  *jarls.AIConfig
		want string
	}{
		{"nil config", nil, "greedy"},
		{"easy", &jarls.AIConfig{Type: "builtin", Difficulty: "easy"}, "random"},
		{"random alias", &jarls.AIConfig{Difficulty: "random"}, "random"},
		{"medium", &jarls.AIConfig{Difficulty: "medium"}, "greedy"},
		{"unknown difficulty", &jarls.AIConfig{Difficulty: "nightmare"}, "greedy"},
		// No model file on disk, so hard falls back to greedy.
		{"hard without model", &jarls.AIConfig{Difficulty: "hard"}, "greedy"},
		// No API key configured, so llm falls back to greedy.
		{"llm without key", &jarls.AIConfig{Type: "llm", Model: "gpt-4o-mini"}, "greedy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StrategyFor(tt.cfg).Name(); got != tt.want {
				t.Errorf("StrategyFor(%+v).Name() = %q, want %q", tt.cfg, got, tt.want)
			}
		})
	}
}

func TestFallbackMoveDeterministic(t *testing.T) {
	s := startedGame(t, 7)
	first, ok := FallbackMove(s, s.CurrentPlayerID)
	if !ok {
		t.Fatal("FallbackMove found no move in a fresh game")
	}
	for i := 0; i < 5; i++ {
		again, ok := FallbackMove(s, s.CurrentPlayerID)
		if !ok || again != first {
			t.Fatalf("FallbackMove not deterministic: got %+v then %+v", first, again)
		}
	}

	legal := false
	for _, mv := range jarls.AllValidMoves(s, s.CurrentPlayerID) {
		if mv.PieceID == first.PieceID && mv.To == first.To {
			legal = true
			break
		}
	}
	if !legal {
		t.Errorf("FallbackMove returned illegal command %+v", first)
	}
}

func TestFallbackMoveNoPieces(t *testing.T) {
	s := playingState(3, piece("b-jarl", jarls.Jarl, "b", 0, -3))
	if _, ok := FallbackMove(s, "a"); ok {
		t.Error("FallbackMove reported a move for a player with no pieces")
	}
}

func TestDefaultStarvationChoice(t *testing.T) {
	if got := DefaultStarvationChoice([]string{"a-w3", "a-w1", "a-w2"}); got != "a-w1" {
		t.Errorf("DefaultStarvationChoice = %q, want a-w1", got)
	}
	if got := DefaultStarvationChoice(nil); got != "" {
		t.Errorf("DefaultStarvationChoice(nil) = %q, want empty", got)
	}
}

func TestRandomStrategyPlaysLegalMoves(t *testing.T) {
	SeedBotRng(99)
	defer ResetBotRng()

	s := startedGame(t, 42)
	strat := RandomStrategy{}
	for i := 0; i < 25; i++ {
		cmd, err := strat.GenerateMove(context.Background(), s, s.CurrentPlayerID)
		if err != nil {
			t.Fatalf("GenerateMove: %v", err)
		}
		legal := false
		for _, mv := range jarls.AllValidMoves(s, s.CurrentPlayerID) {
			if mv.PieceID == cmd.PieceID && mv.To == cmd.To {
				legal = true
				break
			}
		}
		if !legal {
			t.Fatalf("iteration %d: illegal command %+v", i, cmd)
		}
	}
}

func TestRandomStrategyNoMoves(t *testing.T) {
	s := playingState(3, piece("b-jarl", jarls.Jarl, "b", 0, -3))
	if _, err := (RandomStrategy{}).GenerateMove(context.Background(), s, "a"); err == nil {
		t.Error("expected error for a player with no pieces")
	}
}

func TestGreedyTakesWinningMove(t *testing.T) {
	s := playingState(3,
		piece("a-jarl", jarls.Jarl, "a", 1, 0),
		piece("a-w1", jarls.Warrior, "a", 2, -2),
		piece("b-jarl", jarls.Jarl, "b", 0, -3),
		piece("b-w1", jarls.Warrior, "b", -3, 3),
	)

	cmd, err := (GreedyStrategy{}).GenerateMove(context.Background(), s, "a")
	if err != nil {
		t.Fatalf("GenerateMove: %v", err)
	}
	if cmd.PieceID != "a-jarl" || cmd.To != jarls.Throne {
		t.Errorf("greedy played %+v, want a-jarl to the Throne", cmd)
	}
}

func TestGreedyPrefersElimination(t *testing.T) {
	// a-w1 can charge (1,0) -> (3,0) and push b-w1 off the east edge. Both
	// jarls are parked away from the Throne with nothing better to do.
	s := playingState(3,
		piece("a-jarl", jarls.Jarl, "a", -2, 0),
		piece("a-w1", jarls.Warrior, "a", 1, 0),
		piece("b-jarl", jarls.Jarl, "b", 3, -3),
		piece("b-w1", jarls.Warrior, "b", 3, 0),
	)

	cmd, err := (GreedyStrategy{}).GenerateMove(context.Background(), s, "a")
	if err != nil {
		t.Fatalf("GenerateMove: %v", err)
	}
	res, verr := jarls.ApplyMove(s, "a", cmd)
	if verr != nil {
		t.Fatalf("greedy command did not apply: %v", verr)
	}
	if !jarls.HasElimination(res.Events) {
		t.Errorf("greedy played %+v without eliminating; want the push off the edge", cmd)
	}
}

func TestGreedyStarvationKeepsAdvancedWarrior(t *testing.T) {
	s := playingState(3,
		piece("a-jarl", jarls.Jarl, "a", -3, 0),
		piece("a-w1", jarls.Warrior, "a", 1, 0),
		piece("a-w2", jarls.Warrior, "a", 3, 0),
		piece("b-jarl", jarls.Jarl, "b", 3, -3),
	)
	s.Phase = jarls.PhaseStarvation
	s.StarvationCandidates = map[string][]string{"a": {"a-w1", "a-w2"}}

	got, err := (GreedyStrategy{}).GenerateStarvationChoice(context.Background(), s, "a", []string{"a-w1", "a-w2"})
	if err != nil {
		t.Fatalf("GenerateStarvationChoice: %v", err)
	}
	// Both picks survive; greedy keeps the warrior closer to the Throne.
	if got != "a-w2" {
		t.Errorf("sacrificed %q, want a-w2 (the edge warrior)", got)
	}
}

func TestEvaluateTerminal(t *testing.T) {
	s := playingState(3, piece("a-jarl", jarls.Jarl, "a", 0, 0))
	s.Phase = jarls.PhaseEnded
	s.WinnerID = "a"

	if Evaluate(s, "a") <= 0 {
		t.Error("winning terminal position should score positive")
	}
	if Evaluate(s, "b") >= 0 {
		t.Error("losing terminal position should score negative")
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		reply  string
		n      int
		want   int
		wantOK bool
	}{
		{"3", 10, 2, true},
		{"Move 7.", 10, 6, true},
		{"I choose option 2 because it wins", 5, 1, true},
		{"12", 5, 0, false},
		{"0", 5, 0, false},
		{"none of these", 5, 0, false},
		{"", 5, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseChoice(tt.reply, tt.n)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("parseChoice(%q, %d) = (%d, %v), want (%d, %v)",
				tt.reply, tt.n, got, ok, tt.want, tt.wantOK)
		}
	}
}
