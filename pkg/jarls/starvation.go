package jarls

import "sort"

// ShouldStarve reports whether a starvation round triggers at the given
// rounds-since-elimination count: once at 10, then every 5 after that.
func ShouldStarve(rounds int) bool {
	if rounds == 10 {
		return true
	}
	return rounds > 10 && (rounds-10)%5 == 0
}

// enterStarvation computes sacrifice candidates and moves the game into the
// starvation phase. With no candidates anywhere the sacrifice resolves
// trivially: the counter resets and play continues.
func (s *GameState) enterStarvation() {
	cands := s.starvationCandidates()
	if len(cands) == 0 {
		s.RoundsSinceElimination = 0
		return
	}
	s.Phase = PhaseStarvation
	s.StarvationCandidates = cands
	s.PendingStarvationChoices = nil
}

// starvationCandidates returns, per surviving player with warriors, the
// ids of the warriors farthest from the Throne (ties included), sorted.
func (s *GameState) starvationCandidates() map[string][]string {
	out := make(map[string][]string)
	for _, p := range s.AlivePlayers() {
		warriors := s.WarriorsOf(p.ID)
		if len(warriors) == 0 {
			continue
		}
		maxDist := -1
		for _, w := range warriors {
			if d := Distance(w.Position, Throne); d > maxDist {
				maxDist = d
			}
		}
		var ids []string
		for _, w := range warriors {
			if Distance(w.Position, Throne) == maxDist {
				ids = append(ids, w.ID)
			}
		}
		sort.Strings(ids)
		out[p.ID] = ids
	}
	return out
}

// ChoiceResult is the outcome of a starvation choice submission.
type ChoiceResult struct {
	State    *GameState `json:"newState"`
	Events   []Event    `json:"events"`
	Resolved bool       `json:"resolved"`
}

// ApplyStarvationChoice records one player's sacrifice pick. When the last
// required player submits, the round resolves: chosen warriors are removed
// and play returns to the playing phase.
func ApplyStarvationChoice(s *GameState, playerID, pieceID string) (*ChoiceResult, *ValidationError) {
	if s.Phase != PhaseStarvation {
		return nil, invalid(ErrGameNotStarving, "game is in phase %q", s.Phase)
	}
	cands, ok := s.StarvationCandidates[playerID]
	if !ok {
		return nil, invalid(ErrNoChoiceRequired, "no sacrifice required from you")
	}
	if _, done := s.PendingStarvationChoices[playerID]; done {
		return nil, invalid(ErrChoiceAlreadyMade, "you already chose a sacrifice")
	}
	found := false
	for _, id := range cands {
		if id == pieceID {
			found = true
			break
		}
	}
	if !found {
		return nil, invalid(ErrNotACandidate, "piece %q is not a sacrifice candidate", pieceID)
	}

	next := s.Clone()
	if next.PendingStarvationChoices == nil {
		next.PendingStarvationChoices = make(map[string]string)
	}
	next.PendingStarvationChoices[playerID] = pieceID

	res := &ChoiceResult{State: next}
	if len(next.PendingStarvationChoices) == len(next.StarvationCandidates) {
		res.Events = next.resolveStarvation(nil)
		res.Resolved = true
	}
	return res, nil
}

// AutoResolveStarvation fills in the lowest-id candidate for every player
// who has not chosen and resolves the round. Returns nil when the game is
// not starving.
func AutoResolveStarvation(s *GameState) *ChoiceResult {
	if s.Phase != PhaseStarvation {
		return nil
	}
	next := s.Clone()
	if next.PendingStarvationChoices == nil {
		next.PendingStarvationChoices = make(map[string]string)
	}
	for playerID, ids := range next.StarvationCandidates {
		if _, ok := next.PendingStarvationChoices[playerID]; !ok {
			next.PendingStarvationChoices[playerID] = ids[0]
		}
	}
	return &ChoiceResult{State: next, Events: next.resolveStarvation(nil), Resolved: true}
}

// resolveStarvation removes every chosen warrior and returns play to the
// playing phase.
func (s *GameState) resolveStarvation(events []Event) []Event {
	playerIDs := make([]string, 0, len(s.PendingStarvationChoices))
	for id := range s.PendingStarvationChoices {
		playerIDs = append(playerIDs, id)
	}
	sort.Strings(playerIDs)
	for _, playerID := range playerIDs {
		pieceID := s.PendingStarvationChoices[playerID]
		if p := s.PieceByID(pieceID); p != nil {
			events = append(events, eliminatedEvent(pieceID, p.Position, CauseStarvation))
			s.removePiece(pieceID)
		}
	}

	s.RoundsSinceElimination = 0
	s.StarvationCandidates = nil
	s.PendingStarvationChoices = nil
	s.Phase = PhasePlaying

	s.sweepEliminations()
	if winnerID, over := s.lastStanding(); over {
		events = append(events, s.finishGame(winnerID, WinLastStanding))
	}
	return events
}

// cullLoneJarls applies the optional lone-jarl timeout: a player holding
// only a jarl for the configured number of consecutive rounds loses it.
func (s *GameState) cullLoneJarls(events []Event) []Event {
	limit := s.Config.LoneJarlTimeoutRounds
	if limit <= 0 {
		return events
	}
	if s.LoneJarlRounds == nil {
		s.LoneJarlRounds = make(map[string]int)
	}

	culled := false
	for i := range s.Players {
		p := &s.Players[i]
		if p.IsEliminated || len(s.WarriorsOf(p.ID)) > 0 {
			delete(s.LoneJarlRounds, p.ID)
			continue
		}
		s.LoneJarlRounds[p.ID]++
		if s.LoneJarlRounds[p.ID] < limit {
			continue
		}
		if jarl := s.JarlOf(p.ID); jarl != nil {
			events = append(events, eliminatedEvent(jarl.ID, jarl.Position, CauseStarvation))
			s.removePiece(jarl.ID)
			culled = true
		}
		delete(s.LoneJarlRounds, p.ID)
	}
	if len(s.LoneJarlRounds) == 0 {
		s.LoneJarlRounds = nil
	}
	if !culled {
		return events
	}

	s.RoundsSinceElimination = 0
	s.sweepEliminations()
	if winnerID, over := s.lastStanding(); over {
		return append(events, s.finishGame(winnerID, WinLastStanding))
	}

	// The round-start player may have just been culled.
	if p := s.PlayerByID(s.CurrentPlayerID); p == nil || p.IsEliminated {
		n := len(s.Players)
		cur := s.seatOf(s.CurrentPlayerID)
		for i := 1; i <= n; i++ {
			seat := (cur + i) % n
			if !s.Players[seat].IsEliminated {
				s.CurrentPlayerID = s.Players[seat].ID
				break
			}
		}
	}
	return events
}
