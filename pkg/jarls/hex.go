package jarls

// Hex is an axial hex coordinate. The third cube component is implicit:
// s = -q - r.
type Hex struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the derived cube coordinate.
func (h Hex) S() int { return -h.Q - h.R }

// Cube is the symmetric three-component form of a hex coordinate, used for
// distance and containment math.
type Cube struct {
	Q, R, S int
}

// AxialToCube converts an axial coordinate to cube form.
func AxialToCube(h Hex) Cube { return Cube{Q: h.Q, R: h.R, S: -h.Q - h.R} }

// CubeToAxial converts a cube coordinate back to axial form.
func CubeToAxial(c Cube) Hex { return Hex{Q: c.Q, R: c.R} }

// Throne is the center hex. A jarl that reaches it wins the game.
var Throne = Hex{Q: 0, R: 0}

// Direction indexes the six hex directions counterclockwise from east.
type Direction int

const (
	East Direction = iota
	Northeast
	Northwest
	West
	Southwest
	Southeast
)

// directionOffsets holds the axial unit vector for each direction.
var directionOffsets = [6]Hex{
	{Q: 1, R: 0},  // east
	{Q: 1, R: -1}, // northeast
	{Q: 0, R: -1}, // northwest
	{Q: -1, R: 0}, // west
	{Q: -1, R: 1}, // southwest
	{Q: 0, R: 1},  // southeast
}

// Neighbor returns the hex adjacent to h in direction d.
func Neighbor(h Hex, d Direction) Hex {
	off := directionOffsets[d]
	return Hex{Q: h.Q + off.Q, R: h.R + off.R}
}

// Opposite returns the direction pointing the other way.
func Opposite(d Direction) Direction { return (d + 3) % 6 }

// Distance returns the hex distance between a and b.
func Distance(a, b Hex) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	return (dq + dr + ds) / 2
}

// LineDirection reports the direction from one hex to another when they lie
// on a shared axis, and false when they do not (or are equal).
func LineDirection(from, to Hex) (Direction, bool) {
	dq := to.Q - from.Q
	dr := to.R - from.R
	if dq == 0 && dr == 0 {
		return 0, false
	}
	switch {
	case dr == 0 && dq > 0:
		return East, true
	case dr == 0 && dq < 0:
		return West, true
	case dq == 0 && dr < 0:
		return Northwest, true
	case dq == 0 && dr > 0:
		return Southeast, true
	case dq == -dr && dq > 0:
		return Northeast, true
	case dq == -dr && dq < 0:
		return Southwest, true
	}
	return 0, false
}

// Line returns the inclusive sequence of hexes from a to b along their
// shared axis. Non-collinear inputs yield nil.
func Line(a, b Hex) []Hex {
	if a == b {
		return []Hex{a}
	}
	dir, ok := LineDirection(a, b)
	if !ok {
		return nil
	}
	line := []Hex{a}
	cur := a
	for cur != b {
		cur = Neighbor(cur, dir)
		line = append(line, cur)
	}
	return line
}

// OnBoard reports whether h lies within a board of the given radius.
func OnBoard(h Hex, radius int) bool {
	return maxComponent(h) <= radius
}

// OnEdge reports whether h is an outermost board hex.
func OnEdge(h Hex, radius int) bool {
	return maxComponent(h) == radius
}

// BoardHexes returns every hex of a board with the given radius.
func BoardHexes(radius int) []Hex {
	hexes := make([]Hex, 0, 3*radius*(radius+1)+1)
	for q := -radius; q <= radius; q++ {
		for r := -radius; r <= radius; r++ {
			h := Hex{Q: q, R: r}
			if OnBoard(h, radius) {
				hexes = append(hexes, h)
			}
		}
	}
	return hexes
}

func maxComponent(h Hex) int {
	m := abs(h.Q)
	if v := abs(h.R); v > m {
		m = v
	}
	if v := abs(h.S()); v > m {
		m = v
	}
	return m
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
