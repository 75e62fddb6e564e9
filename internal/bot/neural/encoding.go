// Package neural encodes board positions into the tensors consumed by the
// ONNX value network.
package neural

import "github.com/jarlsgame/jarls/server/pkg/jarls"

// EncodeBoard encodes a GameState into a flat [127*14] float32 array
// (row-major) from the viewer's perspective, matching the training
// encoding. Cells beyond the game's configured radius carry only the
// off-board flag.
func EncodeBoard(s *jarls.GameState, viewerID string) []float32 {
	tensor := make([]float32, NumCells*NumFeatures)
	radius := s.Config.BoardRadius

	// Static cell features.
	for cell := 0; cell < NumCells; cell++ {
		base := cell * NumFeatures
		h := CellAt(cell)
		if !jarls.OnBoard(h, radius) {
			tensor[base+FeatOffBoard] = 1
			continue
		}
		if h == jarls.Throne {
			tensor[base+FeatThrone] = 1
		}
		if s.HoleAt(h) {
			tensor[base+FeatHole] = 1
		}
	}

	// Piece positions.
	for i := range s.Pieces {
		p := &s.Pieces[i]
		cell := CellIndex(p.Position)
		if cell < 0 {
			continue
		}
		base := cell * NumFeatures
		switch p.Type {
		case jarls.Jarl:
			tensor[base+FeatPieceType] = 1
		case jarls.Warrior:
			tensor[base+FeatPieceType+1] = 1
		}
		tensor[base+FeatPieceOwner+SeatIndex(s, p.PlayerID)] = 1
		if p.PlayerID == viewerID {
			tensor[base+FeatViewerOwn] = 1
		}
	}

	// Mark empty playable cells.
	for cell := 0; cell < NumCells; cell++ {
		base := cell * NumFeatures
		if tensor[base+FeatOffBoard] == 1 {
			continue
		}
		if tensor[base+FeatPieceType] == 0 && tensor[base+FeatPieceType+1] == 0 {
			tensor[base+FeatPieceType+2] = 1
			tensor[base+FeatPieceOwner+MaxPlayers] = 1
		}
	}

	return tensor
}

// CollectPieceCells returns the tensor rows occupied by one player's
// pieces, padded with -1 to a fixed width of MaxPieces entries.
func CollectPieceCells(s *jarls.GameState, playerID string) []int64 {
	out := make([]int64, MaxPieces)
	for i := range out {
		out[i] = -1
	}
	n := 0
	for i := range s.Pieces {
		if n >= MaxPieces {
			break
		}
		p := &s.Pieces[i]
		if p.PlayerID != playerID {
			continue
		}
		if cell := CellIndex(p.Position); cell >= 0 {
			out[n] = int64(cell)
			n++
		}
	}
	return out
}
