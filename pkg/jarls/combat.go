package jarls

type pushRec struct {
	pieceID  string
	from, to Hex
	depth    int
}

type elimRec struct {
	pieceID  string
	position Hex
	cause    ElimCause
}

// attackResult is the simulated outcome of an attack, used both for
// enumeration previews and for execution.
type attackResult struct {
	push    bool
	attack  int
	defense int
	pushes  []pushRec
	elim    *elimRec
}

// attackStrength sums the attacker's base, momentum, and inline support:
// the contiguous run of friendly pieces directly behind the attack source.
func attackStrength(s *GameState, mv *checkedMove) int {
	strength := mv.piece.Strength()
	if mv.hasMomentum {
		strength++
	}
	back := Opposite(mv.dir)
	cur := mv.from
	for {
		cur = Neighbor(cur, back)
		if !OnBoard(cur, s.Config.BoardRadius) {
			break
		}
		p := s.PieceAt(cur)
		if p == nil || p.PlayerID != mv.piece.PlayerID {
			break
		}
		strength += p.Strength()
	}
	return strength
}

// defenseStrength sums the defender's base and bracing: the contiguous run
// of pieces friendly to the defender directly behind it, away from the
// attacker.
func defenseStrength(s *GameState, defender *Piece, d Direction) int {
	strength := defender.Strength()
	cur := defender.Position
	for {
		cur = Neighbor(cur, d)
		if !OnBoard(cur, s.Config.BoardRadius) {
			break
		}
		p := s.PieceAt(cur)
		if p == nil || p.PlayerID != defender.PlayerID {
			break
		}
		strength += p.Strength()
	}
	return strength
}

// resolveAttack simulates an attack without mutating state. The chain
// propagates in one direction only: every occupied hex joins it regardless
// of allegiance, and the first empty hex, hole, or board edge terminates
// it. The Throne compresses the whole chain in place, which blocks the
// attack outright since the attacker would coincide with the unmoved
// defender.
func resolveAttack(s *GameState, mv *checkedMove) attackResult {
	defender := s.PieceAt(mv.to)
	res := attackResult{
		attack:  attackStrength(s, mv),
		defense: defenseStrength(s, defender, mv.dir),
	}
	if res.attack <= res.defense {
		return res
	}

	chain := []*Piece{defender}
	cur := defender
	for {
		next := Neighbor(cur.Position, mv.dir)
		if next == Throne {
			return res
		}
		if !OnBoard(next, s.Config.BoardRadius) {
			res.elim = &elimRec{pieceID: cur.ID, position: next, cause: CauseEdge}
			break
		}
		if s.HoleAt(next) {
			res.elim = &elimRec{pieceID: cur.ID, position: next, cause: CauseHole}
			break
		}
		occ := s.PieceAt(next)
		if occ == nil {
			break
		}
		chain = append(chain, occ)
		cur = occ
	}

	res.push = true
	moving := len(chain)
	if res.elim != nil {
		moving--
	}
	for i := 0; i < moving; i++ {
		from := chain[i].Position
		res.pushes = append(res.pushes, pushRec{
			pieceID: chain[i].ID,
			from:    from,
			to:      Neighbor(from, mv.dir),
			depth:   i,
		})
	}
	return res
}
