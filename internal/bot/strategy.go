package bot

import (
	"context"
	"sort"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// Strategy generates one move for a computer-controlled player on its turn.
// The state passed in is a private copy; strategies may not mutate the live
// game through it.
type Strategy interface {
	Name() string
	GenerateMove(ctx context.Context, s *jarls.GameState, playerID string) (jarls.MoveCommand, error)
}

// StarvationChooser picks which warrior to sacrifice in a starvation round.
// Not all strategies support it; use a type assertion to check, and fall
// back to DefaultStarvationChoice when the assertion fails.
type StarvationChooser interface {
	GenerateStarvationChoice(ctx context.Context, s *jarls.GameState, playerID string, candidates []string) (string, error)
}

// StrategyFor returns the strategy configured for an AI player. Unknown or
// partial configurations degrade toward the greedy default so a seated bot
// can always take its turn.
func StrategyFor(cfg *jarls.AIConfig) Strategy {
	if cfg == nil {
		return &GreedyStrategy{}
	}
	if cfg.Type == "llm" {
		return newLLMOrFallback(cfg)
	}
	switch cfg.Difficulty {
	case "easy", "random":
		return &RandomStrategy{}
	case "hard":
		return newGonnxOrFallback()
	default:
		return &GreedyStrategy{}
	}
}

// StrategyByName maps a CLI seat name onto an AI configuration. "llm" selects
// the LLM strategy; any other name is treated as a builtin difficulty.
func StrategyByName(name string) Strategy {
	if name == "llm" {
		return StrategyFor(&jarls.AIConfig{Type: "llm"})
	}
	return StrategyFor(&jarls.AIConfig{Type: "builtin", Difficulty: name})
}

// DefaultStarvationChoice returns the first candidate in id order, matching
// what the timeout auto-resolution would pick.
func DefaultStarvationChoice(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	return sorted[0]
}

// FallbackMove returns the first legal move in a fixed order, or ok=false
// when the player has none. It is the last resort when a strategy errors
// out or produces an illegal move.
func FallbackMove(s *jarls.GameState, playerID string) (jarls.MoveCommand, bool) {
	moves := jarls.AllValidMoves(s, playerID)
	if len(moves) == 0 {
		return jarls.MoveCommand{}, false
	}
	sort.Slice(moves, func(i, j int) bool {
		a, b := moves[i], moves[j]
		if a.PieceID != b.PieceID {
			return a.PieceID < b.PieceID
		}
		if a.To.Q != b.To.Q {
			return a.To.Q < b.To.Q
		}
		return a.To.R < b.To.R
	})
	return jarls.MoveCommand{PieceID: moves[0].PieceID, To: moves[0].To}, true
}
