package jarls

import "fmt"

// ErrorCode identifies why a move command was rejected.
type ErrorCode string

const (
	ErrGameNotPlaying         ErrorCode = "GAME_NOT_PLAYING"
	ErrNotYourTurn            ErrorCode = "NOT_YOUR_TURN"
	ErrPieceNotFound          ErrorCode = "PIECE_NOT_FOUND"
	ErrNotYourPiece           ErrorCode = "NOT_YOUR_PIECE"
	ErrDestinationOffBoard    ErrorCode = "DESTINATION_OFF_BOARD"
	ErrDestinationIsHole      ErrorCode = "DESTINATION_IS_HOLE"
	ErrDestinationFriendly    ErrorCode = "DESTINATION_OCCUPIED_FRIENDLY"
	ErrWarriorThrone          ErrorCode = "WARRIOR_CANNOT_ENTER_THRONE"
	ErrNotStraightLine        ErrorCode = "MOVE_NOT_STRAIGHT_LINE"
	ErrInvalidDistanceWarrior ErrorCode = "INVALID_DISTANCE_WARRIOR"
	ErrInvalidDistanceJarl    ErrorCode = "INVALID_DISTANCE_JARL"
	ErrJarlNeedsDraft         ErrorCode = "JARL_NEEDS_DRAFT_FOR_TWO_HEX"
	ErrPathBlocked            ErrorCode = "PATH_BLOCKED"
	ErrAttackBlocked          ErrorCode = "ATTACK_BLOCKED"

	ErrGameNotStarving   ErrorCode = "GAME_NOT_STARVING"
	ErrNoChoiceRequired  ErrorCode = "NO_CHOICE_REQUIRED"
	ErrNotACandidate     ErrorCode = "NOT_A_CANDIDATE"
	ErrChoiceAlreadyMade ErrorCode = "CHOICE_ALREADY_MADE"
)

// ValidationError is the typed rejection returned to the submitting player.
// It is normal traffic, never a server fault.
type ValidationError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(code ErrorCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// MoveCommand is a player's request to move one of their pieces.
type MoveCommand struct {
	PieceID string `json:"pieceId"`
	To      Hex    `json:"to"`
}

// MoveKind distinguishes plain relocations from attacks.
type MoveKind string

const (
	KindMove   MoveKind = "move"
	KindAttack MoveKind = "attack"
)

// CombatPreview carries the simulated strengths attached to an enumerated
// attack.
type CombatPreview struct {
	Attack  int `json:"attack"`
	Defense int `json:"defense"`
}

// ValidMove is one legal destination for a piece on its owner's turn.
type ValidMove struct {
	PieceID     string         `json:"pieceId"`
	From        Hex            `json:"from"`
	To          Hex            `json:"to"`
	Distance    int            `json:"distance"`
	HasMomentum bool           `json:"hasMomentum"`
	Kind        MoveKind       `json:"kind"`
	Combat      *CombatPreview `json:"combat,omitempty"`
}

// checkedMove is the result of successful validation, consumed by ApplyMove.
// adjusted is set when the destination is the Throne via a two-hex jarl
// path; clamped additionally means the submitted destination lay beyond it.
type checkedMove struct {
	piece       *Piece
	from        Hex
	to          Hex
	dir         Direction
	distance    int
	hasMomentum bool
	adjusted    bool
	clamped     bool
}

// HasDraftFormation reports whether the jarl at pos may move two hexes in
// direction d: walking the opposite way, at least two friendly warriors are
// found before the walk leaves the board or meets any other piece. Empty
// hexes do not break the walk.
func HasDraftFormation(s *GameState, playerID string, pos Hex, d Direction) bool {
	back := Opposite(d)
	count := 0
	cur := pos
	for {
		cur = Neighbor(cur, back)
		if !OnBoard(cur, s.Config.BoardRadius) {
			return count >= 2
		}
		p := s.PieceAt(cur)
		if p == nil {
			continue
		}
		if p.PlayerID != playerID || p.Type != Warrior {
			return count >= 2
		}
		count++
		if count >= 2 {
			return true
		}
	}
}

// validateMove checks a command and returns the resolved move geometry.
// Attack feasibility is not checked here; callers simulate combat next.
func validateMove(s *GameState, playerID string, cmd MoveCommand) (*checkedMove, *ValidationError) {
	if s.Phase != PhasePlaying {
		return nil, invalid(ErrGameNotPlaying, "game is in phase %q", s.Phase)
	}
	if s.CurrentPlayerID != playerID {
		return nil, invalid(ErrNotYourTurn, "it is not your turn")
	}
	piece := s.PieceByID(cmd.PieceID)
	if piece == nil {
		return nil, invalid(ErrPieceNotFound, "no piece %q", cmd.PieceID)
	}
	if piece.PlayerID != playerID {
		return nil, invalid(ErrNotYourPiece, "piece %q is not yours", cmd.PieceID)
	}

	from := piece.Position
	to := cmd.To
	dir, straight := LineDirection(from, to)
	if !straight {
		return nil, invalid(ErrNotStraightLine, "destination is not on a line from (%d,%d)", from.Q, from.R)
	}
	distance := Distance(from, to)
	adjusted := false
	clamped := false
	var mid Hex
	if distance == 2 {
		mid = Neighbor(from, dir)
	}

	switch piece.Type {
	case Warrior:
		if distance > 2 {
			return nil, invalid(ErrInvalidDistanceWarrior, "warriors move 1 or 2 hexes, not %d", distance)
		}
	case Jarl:
		if distance > 2 {
			return nil, invalid(ErrInvalidDistanceJarl, "jarls move 1 hex, or 2 with a draft, not %d", distance)
		}
		if distance == 2 {
			if mid == Throne {
				// A two-hex path through the center stops on the Throne.
				to = Throne
				adjusted = true
				clamped = true
			} else {
				if !HasDraftFormation(s, playerID, from, dir) {
					return nil, invalid(ErrJarlNeedsDraft, "two-hex jarl moves need two warriors drafting behind")
				}
				if to == Throne {
					adjusted = true
				}
			}
		}
	}

	if !OnBoard(to, s.Config.BoardRadius) {
		return nil, invalid(ErrDestinationOffBoard, "(%d,%d) is off the board", to.Q, to.R)
	}
	if s.HoleAt(to) {
		return nil, invalid(ErrDestinationIsHole, "(%d,%d) is a hole", to.Q, to.R)
	}
	if occ := s.PieceAt(to); occ != nil && occ.PlayerID == playerID {
		return nil, invalid(ErrDestinationFriendly, "(%d,%d) is occupied by your own piece", to.Q, to.R)
	}
	if piece.Type == Warrior && to == Throne {
		return nil, invalid(ErrWarriorThrone, "warriors may not enter the throne")
	}

	if distance == 2 && !clamped {
		if s.PieceAt(mid) != nil || s.HoleAt(mid) {
			return nil, invalid(ErrPathBlocked, "the hex at (%d,%d) blocks the path", mid.Q, mid.R)
		}
	}

	return &checkedMove{
		piece:       piece,
		from:        from,
		to:          to,
		dir:         dir,
		distance:    distance,
		hasMomentum: distance == 2,
		adjusted:    adjusted,
		clamped:     clamped,
	}, nil
}

// ValidateMove checks a command without applying it. On success it reports
// momentum and, for jarl paths clamped to the Throne, the adjusted
// destination.
func ValidateMove(s *GameState, playerID string, cmd MoveCommand) (hasMomentum bool, adjusted *Hex, verr *ValidationError) {
	mv, verr := validateMove(s, playerID, cmd)
	if verr != nil {
		return false, nil, verr
	}
	if occ := s.PieceAt(mv.to); occ != nil {
		res := resolveAttack(s, mv)
		if !res.push {
			return false, nil, invalid(ErrAttackBlocked, "attack %d does not beat defense %d", res.attack, res.defense)
		}
	}
	if mv.adjusted {
		to := mv.to
		return mv.hasMomentum, &to, nil
	}
	return mv.hasMomentum, nil, nil
}

// ValidMoves enumerates every legal destination for the piece. The list is
// empty when the game is not in the playing phase or it is not the owning
// player's turn. Blocked attacks, including compression-blocked chains
// toward the Throne, are excluded.
func ValidMoves(s *GameState, pieceID string) []ValidMove {
	piece := s.PieceByID(pieceID)
	if piece == nil || s.Phase != PhasePlaying || piece.PlayerID != s.CurrentPlayerID {
		return nil
	}

	var moves []ValidMove
	for d := East; d <= Southeast; d++ {
		for _, distance := range []int{1, 2} {
			to := piece.Position
			for i := 0; i < distance; i++ {
				to = Neighbor(to, d)
			}
			mv, verr := validateMove(s, piece.PlayerID, MoveCommand{PieceID: pieceID, To: to})
			if verr != nil {
				continue
			}
			if mv.clamped {
				// Clamping makes this the same destination as the one-hex
				// move already enumerated.
				continue
			}
			vm := ValidMove{
				PieceID:     pieceID,
				From:        mv.from,
				To:          mv.to,
				Distance:    mv.distance,
				HasMomentum: mv.hasMomentum,
				Kind:        KindMove,
			}
			if occ := s.PieceAt(mv.to); occ != nil {
				res := resolveAttack(s, mv)
				if !res.push {
					continue
				}
				vm.Kind = KindAttack
				vm.Combat = &CombatPreview{Attack: res.attack, Defense: res.defense}
			}
			moves = append(moves, vm)
		}
	}
	return moves
}

// AllValidMoves enumerates the legal moves of every piece the player owns.
// Used by the AI adapter and the forced-move fallback.
func AllValidMoves(s *GameState, playerID string) []ValidMove {
	if s.Phase != PhasePlaying || s.CurrentPlayerID != playerID {
		return nil
	}
	var moves []ValidMove
	for i := range s.Pieces {
		if s.Pieces[i].PlayerID == playerID {
			moves = append(moves, ValidMoves(s, s.Pieces[i].ID)...)
		}
	}
	return moves
}
