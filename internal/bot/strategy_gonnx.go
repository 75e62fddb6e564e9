package bot

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	gonnx "github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"

	"github.com/jarlsgame/jarls/server/internal/bot/neural"
	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// GonnxModelPath is the directory containing value_v1.onnx. Set at startup
// from the AI_MODEL_PATH env var or default to "models".
var GonnxModelPath string

// newGonnxOrFallback attempts to create a GonnxStrategy. If loading fails,
// it falls back to GreedyStrategy so the game can proceed.
func newGonnxOrFallback() Strategy {
	s, err := newGonnxStrategy()
	if err != nil {
		log.Printf("bot: hard difficulty requested but model load failed: %v; falling back to greedy", err)
		return &GreedyStrategy{}
	}
	return s
}

// GonnxStrategy uses gonnx (pure Go ONNX runtime) to run value network
// inference. Each legal move is simulated one ply and the network scores
// the resulting position; the highest win probability is played.
type GonnxStrategy struct {
	value *gonnx.Model
	mu    sync.Mutex
}

// newGonnxStrategy loads the value model from GonnxModelPath.
func newGonnxStrategy() (*GonnxStrategy, error) {
	path := GonnxModelPath
	if path == "" {
		path = "models"
	}

	value, err := gonnx.NewModelFromFile(path + "/value_v1.onnx")
	if err != nil {
		return nil, err
	}
	return &GonnxStrategy{value: value}, nil
}

func (s *GonnxStrategy) Name() string { return "hard-gonnx" }

// GenerateMove scores every legal move with the value network. A terminal
// winning position short-circuits the search; inference errors fall back to
// the greedy evaluation for the remaining candidates.
func (s *GonnxStrategy) GenerateMove(ctx context.Context, gs *jarls.GameState, playerID string) (jarls.MoveCommand, error) {
	moves := jarls.AllValidMoves(gs, playerID)
	if len(moves) == 0 {
		return jarls.MoveCommand{}, fmt.Errorf("no legal moves for %s", playerID)
	}

	best := jarls.MoveCommand{}
	bestScore := math.Inf(-1)
	degraded := false
	for _, mv := range moves {
		if err := ctx.Err(); err != nil {
			return jarls.MoveCommand{}, err
		}
		cmd := jarls.MoveCommand{PieceID: mv.PieceID, To: mv.To}
		res, verr := jarls.ApplyMove(gs, playerID, cmd)
		if verr != nil {
			continue
		}
		if res.State.Phase == jarls.PhaseEnded && res.State.WinnerID == playerID {
			return cmd, nil
		}

		var score float64
		if degraded {
			score = Evaluate(res.State, playerID)
		} else {
			preds, err := s.runValue(res.State, playerID)
			if err != nil {
				log.Printf("bot/gonnx: value inference failed: %v; degrading to greedy evaluation", err)
				degraded = true
				score = Evaluate(res.State, playerID)
			} else {
				score = float64(preds[0])
			}
		}
		if score > bestScore {
			bestScore = score
			best = cmd
		}
	}
	if math.IsInf(bestScore, -1) {
		return jarls.MoveCommand{}, fmt.Errorf("no applicable moves for %s", playerID)
	}
	return best, nil
}

// GenerateStarvationChoice scores each candidate sacrifice with the value
// network and keeps the best survivor set.
func (s *GonnxStrategy) GenerateStarvationChoice(ctx context.Context, gs *jarls.GameState, playerID string, candidates []string) (string, error) {
	best := ""
	bestScore := math.Inf(-1)
	for _, pieceID := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, verr := jarls.ApplyStarvationChoice(gs, playerID, pieceID)
		if verr != nil {
			continue
		}
		preds, err := s.runValue(res.State, playerID)
		var score float64
		if err != nil {
			score = Evaluate(res.State, playerID)
		} else {
			score = float64(preds[0])
		}
		if score > bestScore {
			bestScore = score
			best = pieceID
		}
	}
	if best == "" {
		return DefaultStarvationChoice(candidates), nil
	}
	return best, nil
}

// runValue encodes a position and runs the value model, returning
// [win_prob, survival_prob, throne_progress].
func (s *GonnxStrategy) runValue(gs *jarls.GameState, playerID string) ([neural.ValueOutputs]float32, error) {
	boardData := neural.EncodeBoard(gs, playerID)
	seatIdx := []int64{int64(neural.SeatIndex(gs, playerID))}

	boardTensor := tensor.New(
		tensor.WithShape(1, neural.NumCells, neural.NumFeatures),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(boardData),
	)
	seatTensor := tensor.New(
		tensor.WithShape(1),
		tensor.Of(tensor.Int64),
		tensor.WithBacking(seatIdx),
	)

	inputs := gonnx.Tensors{
		"board": boardTensor,
		"seat":  seatTensor,
	}

	s.mu.Lock()
	outputs, err := s.value.Run(inputs)
	s.mu.Unlock()
	if err != nil {
		return [neural.ValueOutputs]float32{}, fmt.Errorf("value run error: %w", err)
	}

	out, ok := outputs["value_preds"]
	if !ok {
		// Try the first output key if the name doesn't match.
		for _, v := range outputs {
			out = v
			break
		}
	}
	if out == nil {
		return [neural.ValueOutputs]float32{}, fmt.Errorf("no output tensor from value model")
	}

	var result [neural.ValueOutputs]float32
	switch d := out.Data().(type) {
	case []float32:
		if len(d) < neural.ValueOutputs {
			return result, fmt.Errorf("value output too short: %d", len(d))
		}
		copy(result[:], d[:neural.ValueOutputs])
	case []float64:
		if len(d) < neural.ValueOutputs {
			return result, fmt.Errorf("value output too short: %d", len(d))
		}
		for i := 0; i < neural.ValueOutputs; i++ {
			result[i] = float32(d[i])
		}
	default:
		return result, fmt.Errorf("unexpected value output type %T", out.Data())
	}
	return result, nil
}
