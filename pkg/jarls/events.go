package jarls

// EventType discriminates the entries of a move's event stream.
type EventType string

const (
	EventMove       EventType = "MOVE"
	EventPush       EventType = "PUSH"
	EventEliminated EventType = "ELIMINATED"
	EventGameEnded  EventType = "GAME_ENDED"
)

// ElimCause records what destroyed a piece.
type ElimCause string

const (
	CauseEdge       ElimCause = "edge"
	CauseHole       ElimCause = "hole"
	CauseStarvation ElimCause = "starvation"
	CauseForfeit    ElimCause = "forfeit"
)

// Event is one entry of the stream produced by a transition. Exactly the
// fields relevant to Type are set; the rest stay at their zero values and
// are omitted from JSON.
type Event struct {
	Type         EventType    `json:"type"`
	PieceID      string       `json:"pieceId,omitempty"`
	From         *Hex         `json:"from,omitempty"`
	To           *Hex         `json:"to,omitempty"`
	HasMomentum  bool         `json:"hasMomentum,omitempty"`
	Depth        *int         `json:"depth,omitempty"`
	Position     *Hex         `json:"position,omitempty"`
	Cause        ElimCause    `json:"cause,omitempty"`
	WinnerID     string       `json:"winnerId,omitempty"`
	WinCondition WinCondition `json:"winCondition,omitempty"`
}

func moveEvent(pieceID string, from, to Hex, momentum bool) Event {
	return Event{Type: EventMove, PieceID: pieceID, From: &from, To: &to, HasMomentum: momentum}
}

func pushEvent(pieceID string, from, to Hex, depth int) Event {
	return Event{Type: EventPush, PieceID: pieceID, From: &from, To: &to, Depth: &depth}
}

func eliminatedEvent(pieceID string, position Hex, cause ElimCause) Event {
	return Event{Type: EventEliminated, PieceID: pieceID, Position: &position, Cause: cause}
}

func gameEndedEvent(winnerID string, cond WinCondition) Event {
	return Event{Type: EventGameEnded, WinnerID: winnerID, WinCondition: cond}
}

// HasElimination reports whether any event in the list destroyed a piece.
func HasElimination(events []Event) bool {
	for _, e := range events {
		if e.Type == EventEliminated {
			return true
		}
	}
	return false
}
