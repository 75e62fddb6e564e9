package neural

import (
	"testing"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

func TestCellIndexRoundTrip(t *testing.T) {
	seen := make(map[int]bool, NumCells)
	for _, h := range jarls.BoardHexes(MaxRadius) {
		idx := CellIndex(h)
		if idx < 0 || idx >= NumCells {
			t.Fatalf("CellIndex(%+v) = %d, out of range", h, idx)
		}
		if seen[idx] {
			t.Fatalf("duplicate cell index %d for %+v", idx, h)
		}
		seen[idx] = true
		if got := CellAt(idx); got != h {
			t.Fatalf("CellAt(%d) = %+v, want %+v", idx, got, h)
		}
	}
	if len(seen) != NumCells {
		t.Errorf("indexed %d cells, want %d", len(seen), NumCells)
	}
	if CellIndex(jarls.Hex{Q: 7, R: 0}) != -1 {
		t.Error("coordinate beyond MaxRadius should index to -1")
	}
}

func TestEncodeBoardFeatures(t *testing.T) {
	s := &jarls.GameState{
		ID:    "g1",
		Phase: jarls.PhasePlaying,
		Config: jarls.Config{
			PlayerCount:  2,
			BoardRadius:  3,
			WarriorCount: 5,
			Terrain:      jarls.TerrainTreacherous,
		},
		Players: []jarls.Player{
			{ID: "a", Name: "Astrid"},
			{ID: "b", Name: "Bjorn"},
		},
		Pieces: []jarls.Piece{
			{ID: "a-jarl", Type: jarls.Jarl, PlayerID: "a", Position: jarls.Hex{Q: 0, R: 3}},
			{ID: "b-w1", Type: jarls.Warrior, PlayerID: "b", Position: jarls.Hex{Q: 1, R: -1}},
		},
		Holes:           []jarls.Hex{{Q: -1, R: 0}},
		CurrentPlayerID: "a",
	}

	enc := EncodeBoard(s, "a")
	if len(enc) != NumCells*NumFeatures {
		t.Fatalf("encoded length %d, want %d", len(enc), NumCells*NumFeatures)
	}

	at := func(h jarls.Hex, feat int) float32 {
		return enc[CellIndex(h)*NumFeatures+feat]
	}

	jarlPos := jarls.Hex{Q: 0, R: 3}
	if at(jarlPos, FeatPieceType) != 1 {
		t.Error("jarl cell missing jarl channel")
	}
	if at(jarlPos, FeatPieceOwner+0) != 1 {
		t.Error("jarl cell missing seat-0 owner channel")
	}
	if at(jarlPos, FeatViewerOwn) != 1 {
		t.Error("viewer's own piece missing the viewer channel")
	}

	warriorPos := jarls.Hex{Q: 1, R: -1}
	if at(warriorPos, FeatPieceType+1) != 1 {
		t.Error("warrior cell missing warrior channel")
	}
	if at(warriorPos, FeatPieceOwner+1) != 1 {
		t.Error("warrior cell missing seat-1 owner channel")
	}
	if at(warriorPos, FeatViewerOwn) != 0 {
		t.Error("opponent piece should not set the viewer channel")
	}

	if at(jarls.Throne, FeatThrone) != 1 {
		t.Error("throne cell missing throne channel")
	}
	if at(jarls.Hex{Q: -1, R: 0}, FeatHole) != 1 {
		t.Error("hole cell missing hole channel")
	}

	empty := jarls.Hex{Q: 2, R: 0}
	if at(empty, FeatPieceType+2) != 1 {
		t.Error("empty cell missing empty channel")
	}
	if at(empty, FeatPieceOwner+MaxPlayers) != 1 {
		t.Error("empty cell missing owner-none channel")
	}

	// Radius 3 game on the radius 6 tensor: the outer rings are off-board.
	outer := jarls.Hex{Q: 4, R: 0}
	if at(outer, FeatOffBoard) != 1 {
		t.Error("cell beyond the configured radius missing off-board flag")
	}
	if at(outer, FeatPieceType+2) != 0 {
		t.Error("off-board cell should not be marked empty-playable")
	}
}

func TestCollectPieceCells(t *testing.T) {
	s := &jarls.GameState{
		Config: jarls.Config{PlayerCount: 2, BoardRadius: 3},
		Players: []jarls.Player{
			{ID: "a"}, {ID: "b"},
		},
		Pieces: []jarls.Piece{
			{ID: "a-jarl", Type: jarls.Jarl, PlayerID: "a", Position: jarls.Hex{Q: 0, R: 3}},
			{ID: "a-w1", Type: jarls.Warrior, PlayerID: "a", Position: jarls.Hex{Q: 1, R: 2}},
			{ID: "b-jarl", Type: jarls.Jarl, PlayerID: "b", Position: jarls.Hex{Q: 0, R: -3}},
		},
	}

	cells := CollectPieceCells(s, "a")
	if len(cells) != MaxPieces {
		t.Fatalf("got %d entries, want %d", len(cells), MaxPieces)
	}
	if cells[0] != int64(CellIndex(jarls.Hex{Q: 0, R: 3})) {
		t.Errorf("first cell = %d, want the jarl's index", cells[0])
	}
	if cells[1] != int64(CellIndex(jarls.Hex{Q: 1, R: 2})) {
		t.Errorf("second cell = %d, want the warrior's index", cells[1])
	}
	for i := 2; i < MaxPieces; i++ {
		if cells[i] != -1 {
			t.Errorf("padding entry %d = %d, want -1", i, cells[i])
		}
	}
}
