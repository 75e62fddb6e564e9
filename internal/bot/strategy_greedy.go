package bot

import (
	"context"
	"fmt"
	"math"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// Piece values and positional weights for the one-ply evaluation.
const (
	jarlValue         = 1000.0
	warriorValue      = 100.0
	throneStepWeight  = 40.0
	warriorStepWeight = 2.0
	edgePenalty       = 60.0
)

// GreedyStrategy simulates every legal move one ply deep and plays the one
// with the best resulting position: wins first, then material swings, then
// jarl progress toward the Throne.
type GreedyStrategy struct{}

func (GreedyStrategy) Name() string { return "greedy" }

func (GreedyStrategy) GenerateMove(_ context.Context, s *jarls.GameState, playerID string) (jarls.MoveCommand, error) {
	moves := jarls.AllValidMoves(s, playerID)
	if len(moves) == 0 {
		return jarls.MoveCommand{}, fmt.Errorf("no legal moves for %s", playerID)
	}

	best := jarls.MoveCommand{}
	bestScore := math.Inf(-1)
	for _, mv := range moves {
		cmd := jarls.MoveCommand{PieceID: mv.PieceID, To: mv.To}
		res, verr := jarls.ApplyMove(s, playerID, cmd)
		if verr != nil {
			continue
		}
		if score := Evaluate(res.State, playerID); score > bestScore {
			bestScore = score
			best = cmd
		}
	}
	if math.IsInf(bestScore, -1) {
		return jarls.MoveCommand{}, fmt.Errorf("no applicable moves for %s", playerID)
	}
	return best, nil
}

// GenerateStarvationChoice simulates each candidate sacrifice and keeps the
// position that scores best afterwards.
func (GreedyStrategy) GenerateStarvationChoice(_ context.Context, s *jarls.GameState, playerID string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no starvation candidates")
	}

	best := ""
	bestScore := math.Inf(-1)
	for _, pieceID := range candidates {
		res, verr := jarls.ApplyStarvationChoice(s, playerID, pieceID)
		if verr != nil {
			continue
		}
		if score := Evaluate(res.State, playerID); score > bestScore {
			bestScore = score
			best = pieceID
		}
	}
	if best == "" {
		return DefaultStarvationChoice(candidates), nil
	}
	return best, nil
}

// Evaluate scores a position from one player's perspective. Higher is
// better. Terminal positions dominate every positional term.
func Evaluate(s *jarls.GameState, playerID string) float64 {
	if s.Phase == jarls.PhaseEnded {
		if s.WinnerID == playerID {
			return math.MaxFloat64 / 2
		}
		return -math.MaxFloat64 / 2
	}

	radius := s.Config.BoardRadius
	var score float64
	for i := range s.Pieces {
		p := &s.Pieces[i]
		mine := p.PlayerID == playerID
		switch p.Type {
		case jarls.Jarl:
			progress := throneStepWeight * float64(radius-jarls.Distance(p.Position, jarls.Throne))
			if mine {
				score += jarlValue + progress
				if jarls.OnEdge(p.Position, radius) {
					score -= edgePenalty
				}
			} else {
				// An advancing enemy jarl is worth blocking more than a
				// retreating one.
				score -= jarlValue + 0.75*progress
			}
		case jarls.Warrior:
			central := warriorStepWeight * float64(radius-jarls.Distance(p.Position, jarls.Throne))
			if mine {
				score += warriorValue + central
			} else {
				score -= warriorValue + central
			}
		}
	}
	return score
}
