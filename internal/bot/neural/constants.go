package neural

import "github.com/jarlsgame/jarls/server/pkg/jarls"

// MaxRadius is the largest supported board. Smaller boards encode into the
// same tensor with their outer rings flagged off-board, so one model serves
// every configuration.
const MaxRadius = 6

// NumCells is the hex count of a radius-6 board: 1 + 3*r*(r+1).
const NumCells = 127

// NumFeatures is the number of features per cell in the board tensor.
const NumFeatures = 14

// MaxPlayers is the seat count the encoding reserves owner channels for.
const MaxPlayers = 6

// MaxPieces is the most pieces one player can field: a jarl plus eight
// warriors.
const MaxPieces = 9

// Feature offset constants matching the training pipeline.
const (
	FeatPieceType  = 0  // [0:3]  piece type one-hot: jarl, warrior, empty
	FeatPieceOwner = 3  // [3:10] owner seat one-hot: 0..5, none
	FeatHole       = 10 // hole present
	FeatThrone     = 11 // the center cell
	FeatOffBoard   = 12 // cell outside the game's configured radius
	FeatViewerOwn  = 13 // piece belongs to the evaluated player
)

// ValueOutputs is the width of the value head: win, survival, and
// throne-progress probabilities.
const ValueOutputs = 3

// cellIndex maps an axial coordinate to its tensor row. Cells are ordered
// raster style: R from -MaxRadius..MaxRadius, Q ascending within each row.
var cellIndex map[jarls.Hex]int

// cellOrder is the inverse mapping, index -> coordinate.
var cellOrder [NumCells]jarls.Hex

func init() {
	cellIndex = make(map[jarls.Hex]int, NumCells)
	i := 0
	for r := -MaxRadius; r <= MaxRadius; r++ {
		for q := -MaxRadius; q <= MaxRadius; q++ {
			h := jarls.Hex{Q: q, R: r}
			if !jarls.OnBoard(h, MaxRadius) {
				continue
			}
			cellIndex[h] = i
			cellOrder[i] = h
			i++
		}
	}
}

// CellIndex returns the tensor row for a coordinate, or -1 if it lies
// outside even the largest board.
func CellIndex(h jarls.Hex) int {
	idx, ok := cellIndex[h]
	if !ok {
		return -1
	}
	return idx
}

// CellAt returns the coordinate encoded at a tensor row.
func CellAt(idx int) jarls.Hex {
	return cellOrder[idx]
}

// SeatIndex maps a player ID to its seat channel (0..5), or MaxPlayers when
// the player is unknown.
func SeatIndex(s *jarls.GameState, playerID string) int {
	for i := range s.Players {
		if s.Players[i].ID == playerID {
			return i
		}
	}
	return MaxPlayers
}
