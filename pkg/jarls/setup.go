package jarls

import (
	"fmt"
	"math/rand"
)

// jarlCorners spreads the players' jarls around the board rim: seat i takes
// the corner at direction i*6/playerCount, so two players start on opposite
// corners.
func jarlCorners(playerCount, radius int) []Hex {
	corners := make([]Hex, playerCount)
	for i := 0; i < playerCount; i++ {
		off := directionOffsets[i*6/playerCount]
		corners[i] = Hex{Q: off.Q * radius, R: off.R * radius}
	}
	return corners
}

// setupBoard places every player's pieces and digs the terrain's holes.
// Hole positions are the only randomness; the seed makes them reproducible.
func (s *GameState) setupBoard(seed int64) {
	radius := s.Config.BoardRadius
	corners := jarlCorners(len(s.Players), radius)
	occupied := map[Hex]bool{Throne: true}
	s.Pieces = nil

	for i := range s.Players {
		p := &s.Players[i]
		jarlPos := corners[i]
		s.Pieces = append(s.Pieces, Piece{
			ID:       p.ID + "-jarl",
			Type:     Jarl,
			PlayerID: p.ID,
			Position: jarlPos,
		})
		occupied[jarlPos] = true

		// Warriors fill the free hexes nearest the jarl, breadth first.
		// Rotating the direction order by the seat's corner keeps the
		// layout symmetric about the center.
		rot := i * 6 / len(s.Players)
		queue := []Hex{jarlPos}
		seen := map[Hex]bool{jarlPos: true}
		placed := 0
		for len(queue) > 0 && placed < s.Config.WarriorCount {
			cur := queue[0]
			queue = queue[1:]
			for j := 0; j < 6 && placed < s.Config.WarriorCount; j++ {
				h := Neighbor(cur, Direction((j+rot)%6))
				if seen[h] || !OnBoard(h, radius) {
					continue
				}
				seen[h] = true
				queue = append(queue, h)
				if occupied[h] {
					continue
				}
				placed++
				s.Pieces = append(s.Pieces, Piece{
					ID:       fmt.Sprintf("%s-w%d", p.ID, placed),
					Type:     Warrior,
					PlayerID: p.ID,
					Position: h,
				})
				occupied[h] = true
			}
		}
	}

	// Holes go on interior hexes only: never the Throne, never the edge or
	// the ring inside it, never a starting position.
	var candidates []Hex
	for _, h := range BoardHexes(radius) {
		if h == Throne || maxComponent(h) >= radius-1 || occupied[h] {
			continue
		}
		candidates = append(candidates, h)
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(candidates), func(a, b int) {
		candidates[a], candidates[b] = candidates[b], candidates[a]
	})
	count := s.Config.Terrain.HoleCount()
	if count > len(candidates) {
		count = len(candidates)
	}
	s.Holes = nil
	if count > 0 {
		s.Holes = candidates[:count]
	}
}
