package bot

import (
	"context"
	"fmt"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// RandomStrategy plays a uniformly random legal move, with a mild preference
// for attacks so that easy bots still apply pressure instead of shuffling.
type RandomStrategy struct{}

func (RandomStrategy) Name() string { return "random" }

func (RandomStrategy) GenerateMove(_ context.Context, s *jarls.GameState, playerID string) (jarls.MoveCommand, error) {
	moves := jarls.AllValidMoves(s, playerID)
	if len(moves) == 0 {
		return jarls.MoveCommand{}, fmt.Errorf("no legal moves for %s", playerID)
	}

	if botFloat64() < 0.7 {
		var attacks []jarls.ValidMove
		for _, mv := range moves {
			if mv.Kind == jarls.KindAttack {
				attacks = append(attacks, mv)
			}
		}
		if len(attacks) > 0 {
			pick := attacks[botIntn(len(attacks))]
			return jarls.MoveCommand{PieceID: pick.PieceID, To: pick.To}, nil
		}
	}

	pick := moves[botIntn(len(moves))]
	return jarls.MoveCommand{PieceID: pick.PieceID, To: pick.To}, nil
}

// GenerateStarvationChoice sacrifices a random candidate.
func (RandomStrategy) GenerateStarvationChoice(_ context.Context, _ *jarls.GameState, _ string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no starvation candidates")
	}
	return candidates[botIntn(len(candidates))], nil
}
