package jarls

// MoveResult is the outcome of a successfully applied move. State is a new
// snapshot; the input state is never mutated.
type MoveResult struct {
	State               *GameState `json:"newState"`
	Events              []Event    `json:"events"`
	HasMomentum         bool       `json:"hasMomentum"`
	AdjustedDestination *Hex       `json:"adjustedDestination,omitempty"`
}

// ApplyMove validates and executes a move command, returning the new state
// and the event stream, or the validation error that rejected it.
func ApplyMove(s *GameState, playerID string, cmd MoveCommand) (*MoveResult, *ValidationError) {
	next := s.Clone()
	mv, verr := validateMove(next, playerID, cmd)
	if verr != nil {
		return nil, verr
	}
	movedID := mv.piece.ID

	var events []Event
	if next.PieceAt(mv.to) != nil {
		res := resolveAttack(next, mv)
		if !res.push {
			return nil, invalid(ErrAttackBlocked, "attack %d does not beat defense %d", res.attack, res.defense)
		}
		events = append(events, moveEvent(movedID, mv.from, mv.to, mv.hasMomentum))
		for _, p := range res.pushes {
			events = append(events, pushEvent(p.pieceID, p.from, p.to, p.depth))
		}
		if res.elim != nil {
			events = append(events, eliminatedEvent(res.elim.pieceID, res.elim.position, res.elim.cause))
			next.removePiece(res.elim.pieceID)
		}
		// Deepest piece first so no hex is ever doubly occupied mid-update.
		for i := len(res.pushes) - 1; i >= 0; i-- {
			if p := next.PieceByID(res.pushes[i].pieceID); p != nil {
				p.Position = res.pushes[i].to
			}
		}
	} else {
		events = append(events, moveEvent(movedID, mv.from, mv.to, mv.hasMomentum))
	}
	if p := next.PieceByID(movedID); p != nil {
		p.Position = mv.to
	}

	events = next.postMove(movedID, events)

	result := &MoveResult{State: next, Events: events, HasMomentum: mv.hasMomentum}
	if mv.adjusted {
		to := mv.to
		result.AdjustedDestination = &to
	}
	return result, nil
}

// postMove runs win detection and turn advancement after a move's
// displacements have been applied.
func (s *GameState) postMove(movedPieceID string, events []Event) []Event {
	if p := s.PieceByID(movedPieceID); p != nil && p.Type == Jarl && p.Position == Throne {
		return append(events, s.finishGame(p.PlayerID, WinThrone))
	}

	s.sweepEliminations()
	if winnerID, over := s.lastStanding(); over {
		return append(events, s.finishGame(winnerID, WinLastStanding))
	}

	return s.advanceTurn(HasElimination(events), events)
}

// sweepEliminations marks every player whose jarl is gone as eliminated and
// clears their remaining warriors off the board.
func (s *GameState) sweepEliminations() {
	for i := range s.Players {
		p := &s.Players[i]
		if p.IsEliminated || s.JarlOf(p.ID) != nil {
			continue
		}
		p.IsEliminated = true
		for _, w := range s.WarriorsOf(p.ID) {
			s.removePiece(w.ID)
		}
	}
}

// lastStanding reports the winner when exactly one player survives.
func (s *GameState) lastStanding() (string, bool) {
	alive := s.AlivePlayers()
	if len(alive) == 1 {
		return alive[0].ID, true
	}
	return "", false
}

// finishGame freezes the state and returns the terminal event.
func (s *GameState) finishGame(winnerID string, cond WinCondition) Event {
	s.Phase = PhaseEnded
	s.WinnerID = winnerID
	s.WinCondition = cond
	s.StarvationCandidates = nil
	s.PendingStarvationChoices = nil
	return gameEndedEvent(winnerID, cond)
}

// advanceTurn moves play to the next non-eliminated player. Crossing the
// round boundary increments the round counter, applies the lone-jarl rule
// when enabled, and evaluates the starvation trigger.
func (s *GameState) advanceTurn(eliminated bool, events []Event) []Event {
	s.TurnNumber++
	if eliminated {
		s.RoundsSinceElimination = 0
	}

	n := len(s.Players)
	cur := s.seatOf(s.CurrentPlayerID)
	roundStart := s.roundStartSeat()
	for i := 1; i <= n; i++ {
		seat := (cur + i) % n
		if s.Players[seat].IsEliminated {
			continue
		}
		s.CurrentPlayerID = s.Players[seat].ID
		if seat == roundStart {
			events = s.completeRound(eliminated, events)
		}
		break
	}
	return events
}

// completeRound handles the bookkeeping at a round boundary.
func (s *GameState) completeRound(eliminated bool, events []Event) []Event {
	s.RoundNumber++
	if !eliminated {
		s.RoundsSinceElimination++
	}

	events = s.cullLoneJarls(events)
	if s.Phase == PhaseEnded {
		return events
	}

	if ShouldStarve(s.RoundsSinceElimination) {
		s.enterStarvation()
	}
	return events
}

func (s *GameState) seatOf(playerID string) int {
	for i := range s.Players {
		if s.Players[i].ID == playerID {
			return i
		}
	}
	return 0
}

// roundStartSeat is the seat of the first non-eliminated player at or after
// FirstPlayerIndex; reaching it again marks a completed round.
func (s *GameState) roundStartSeat() int {
	n := len(s.Players)
	for i := 0; i < n; i++ {
		seat := (s.FirstPlayerIndex + i) % n
		if !s.Players[seat].IsEliminated {
			return seat
		}
	}
	return s.FirstPlayerIndex
}
