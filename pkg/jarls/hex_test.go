package jarls

import "testing"

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Hex
		want int
	}{
		{"same hex", Hex{0, 0}, Hex{0, 0}, 0},
		{"adjacent east", Hex{0, 0}, Hex{1, 0}, 1},
		{"adjacent southeast", Hex{0, 0}, Hex{0, 1}, 1},
		{"two east", Hex{0, 0}, Hex{2, 0}, 2},
		{"diagonal", Hex{0, 0}, Hex{1, 1}, 2},
		{"across center", Hex{-2, 0}, Hex{2, 0}, 4},
		{"mixed axes", Hex{-1, 2}, Hex{2, -1}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := Distance(tt.b, tt.a); got != tt.want {
				t.Errorf("Distance(%v, %v) = %d, want %d", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestNeighborOpposite(t *testing.T) {
	origin := Hex{0, 0}
	for d := East; d <= Southeast; d++ {
		n := Neighbor(origin, d)
		if Distance(origin, n) != 1 {
			t.Errorf("neighbor in direction %d is not adjacent: %v", d, n)
		}
		back := Neighbor(n, Opposite(d))
		if back != origin {
			t.Errorf("Opposite(%d) does not return home: got %v", d, back)
		}
	}
}

func TestNeighborsAreDistinct(t *testing.T) {
	seen := make(map[Hex]bool)
	for d := East; d <= Southeast; d++ {
		n := Neighbor(Hex{2, -1}, d)
		if seen[n] {
			t.Errorf("duplicate neighbor %v for direction %d", n, d)
		}
		seen[n] = true
	}
	if len(seen) != 6 {
		t.Errorf("expected 6 distinct neighbors, got %d", len(seen))
	}
}

func TestLineDirection(t *testing.T) {
	tests := []struct {
		name     string
		from, to Hex
		want     Direction
		ok       bool
	}{
		{"east", Hex{0, 0}, Hex{3, 0}, East, true},
		{"west", Hex{2, 0}, Hex{-1, 0}, West, true},
		{"southeast", Hex{0, 0}, Hex{0, 2}, Southeast, true},
		{"northwest", Hex{0, 0}, Hex{0, -2}, Northwest, true},
		{"northeast", Hex{0, 0}, Hex{2, -2}, Northeast, true},
		{"southwest", Hex{1, -1}, Hex{-1, 1}, Southwest, true},
		{"not collinear", Hex{0, 0}, Hex{1, 1}, East, false},
		{"zero", Hex{1, 1}, Hex{1, 1}, East, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LineDirection(tt.from, tt.to)
			if ok != tt.ok {
				t.Fatalf("LineDirection(%v, %v) ok = %v, want %v", tt.from, tt.to, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("LineDirection(%v, %v) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestLine(t *testing.T) {
	got := Line(Hex{-1, 0}, Hex{2, 0})
	want := []Hex{{-1, 0}, {0, 0}, {1, 0}, {2, 0}}
	if len(got) != len(want) {
		t.Fatalf("Line length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Line[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if Line(Hex{0, 0}, Hex{1, 1}) != nil {
		t.Error("expected nil line for non-collinear hexes")
	}
}

func TestOnBoard(t *testing.T) {
	tests := []struct {
		name   string
		h      Hex
		radius int
		want   bool
	}{
		{"center", Hex{0, 0}, 3, true},
		{"edge corner", Hex{3, 0}, 3, true},
		{"edge mixed", Hex{3, -3}, 3, true},
		{"just outside", Hex{4, 0}, 3, false},
		{"outside diagonal", Hex{2, 2}, 3, false},
		{"inside diagonal", Hex{1, 1}, 3, true},
		{"larger board", Hex{4, 0}, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OnBoard(tt.h, tt.radius); got != tt.want {
				t.Errorf("OnBoard(%v, %d) = %v, want %v", tt.h, tt.radius, got, tt.want)
			}
		})
	}
}

func TestOnEdge(t *testing.T) {
	if !OnEdge(Hex{3, 0}, 3) {
		t.Error("corner should be on edge")
	}
	if !OnEdge(Hex{0, -3}, 3) {
		t.Error("(0,-3) should be on edge")
	}
	if OnEdge(Hex{2, 0}, 3) {
		t.Error("(2,0) should be interior on radius 3")
	}
	if OnEdge(Hex{0, 0}, 3) {
		t.Error("center should not be on edge")
	}
}

func TestBoardHexes(t *testing.T) {
	for _, radius := range []int{3, 4, 5, 6} {
		hexes := BoardHexes(radius)
		want := 3*radius*(radius+1) + 1
		if len(hexes) != want {
			t.Errorf("radius %d: got %d hexes, want %d", radius, len(hexes), want)
		}
		seen := make(map[Hex]bool, len(hexes))
		for _, h := range hexes {
			if !OnBoard(h, radius) {
				t.Errorf("radius %d: hex %v out of bounds", radius, h)
			}
			if seen[h] {
				t.Errorf("radius %d: duplicate hex %v", radius, h)
			}
			seen[h] = true
		}
	}
}

func TestCubeRoundTrip(t *testing.T) {
	for _, h := range BoardHexes(3) {
		c := AxialToCube(h)
		if c.Q+c.R+c.S != 0 {
			t.Errorf("cube %v does not sum to zero", c)
		}
		if back := CubeToAxial(c); back != h {
			t.Errorf("round trip %v -> %v -> %v", h, c, back)
		}
	}
}
