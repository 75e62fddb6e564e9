package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// SeatRunner joins an existing game as a single seat and plays it with one
// strategy. Unlike the Orchestrator it controls nothing beyond its own seat:
// it reacts to broadcasts and refetches state when the table moves without it.
type SeatRunner struct {
	client   *Client
	strategy Strategy
	gameID   string
}

// NewSeatRunner creates a runner that will claim one seat in gameID.
func NewSeatRunner(baseURL, gameID, name string, strategy Strategy) *SeatRunner {
	return &SeatRunner{
		client:   NewClient(name, baseURL),
		strategy: strategy,
		gameID:   gameID,
	}
}

// seatStep is the action the runner should take for a given state.
type seatStep int

const (
	seatWait seatStep = iota
	seatMove
	seatChoose
	seatDone
)

// seatAction decides what the runner owes the table in the given state.
func seatAction(s *jarls.GameState, playerID string) seatStep {
	switch s.Phase {
	case jarls.PhaseEnded:
		return seatDone
	case jarls.PhasePlaying:
		if s.CurrentPlayerID == playerID {
			return seatMove
		}
	case jarls.PhaseStarvation:
		if _, owes := s.StarvationCandidates[playerID]; owes {
			if _, submitted := s.PendingStarvationChoices[playerID]; !submitted {
				return seatChoose
			}
		}
	}
	return seatWait
}

// Run claims the seat, then plays until the game ends or ctx is cancelled.
// The game must still have an open seat; the host starts it whenever ready.
func (r *SeatRunner) Run(ctx context.Context) (*MatchResult, error) {
	c := r.client
	if err := c.JoinGame(r.gameID); err != nil {
		return nil, fmt.Errorf("join game: %w", err)
	}
	if err := c.ConnectWS(); err != nil {
		return nil, fmt.Errorf("ws connect: %w", err)
	}
	defer c.CloseWS()

	joinCtx, cancel := context.WithTimeout(ctx, opTimeout)
	ack, err := c.JoinGameWS(joinCtx, r.gameID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ws join: %w", err)
	}
	state, err := stateFromAck(ack, "gameState")
	if err != nil {
		return nil, fmt.Errorf("join ack: %w", err)
	}
	log.Info().Str("gameId", r.gameID).Str("playerId", c.PlayerID()).
		Str("strategy", r.strategy.Name()).Msg("Seat claimed")

	// Coalesce the broadcast feed into a single wakeup signal; the runner
	// refetches state rather than interpreting each event. An unread feed
	// would eventually wedge the client's read loop.
	poke := make(chan struct{}, 1)
	feedClosed := make(chan struct{})
	go func() {
		for range c.Events() {
			select {
			case poke <- struct{}{}:
			default:
			}
		}
		close(feedClosed)
	}()

	misfires := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next *jarls.GameState
		switch seatAction(state, c.PlayerID()) {
		case seatDone:
			res := r.result(state)
			log.Info().Str("gameId", r.gameID).Str("winner", res.WinnerName).
				Str("condition", res.WinCondition).Int("turns", res.Turns).Msg("Game ended")
			return res, nil
		case seatMove:
			next, err = r.playMove(ctx, state)
		case seatChoose:
			next, err = r.submitChoice(ctx, state)
		case seatWait:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-feedClosed:
				return nil, fmt.Errorf("connection lost")
			case <-poke:
			}
			next, err = c.GameState(r.gameID)
		}

		if err != nil {
			misfires++
			if misfires > 3 {
				return nil, fmt.Errorf("giving up after %d consecutive failures: %w", misfires, err)
			}
			log.Warn().Err(err).Str("gameId", r.gameID).Int("misfires", misfires).Msg("Submission failed, refetching state")
			if next, err = c.GameState(r.gameID); err != nil {
				return nil, fmt.Errorf("refetch state: %w", err)
			}
		} else {
			misfires = 0
		}
		state = next
	}
}

// playMove generates and submits this seat's move.
func (r *SeatRunner) playMove(ctx context.Context, state *jarls.GameState) (*jarls.GameState, error) {
	c := r.client
	moveCtx, cancel := context.WithTimeout(ctx, opTimeout)
	cmd, err := r.strategy.GenerateMove(moveCtx, state, c.PlayerID())
	cancel()
	if err != nil {
		fb, ok := FallbackMove(state, c.PlayerID())
		if !ok {
			return nil, fmt.Errorf("no legal moves")
		}
		log.Warn().Err(err).Str("bot", c.Name()).Msg("Strategy failed, playing fallback move")
		cmd = fb
	}

	sendCtx, cancel := context.WithTimeout(ctx, opTimeout)
	ack, err := c.PlayTurn(sendCtx, r.gameID, cmd, state.TurnNumber)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("play turn %d: %w", state.TurnNumber, err)
	}
	return stateFromAck(ack, "newState")
}

// submitChoice submits this seat's starvation pick.
func (r *SeatRunner) submitChoice(ctx context.Context, state *jarls.GameState) (*jarls.GameState, error) {
	c := r.client
	candidates := state.StarvationCandidates[c.PlayerID()]

	pick := ""
	if chooser, ok := r.strategy.(StarvationChooser); ok {
		chooseCtx, cancel := context.WithTimeout(ctx, opTimeout)
		p, err := chooser.GenerateStarvationChoice(chooseCtx, state, c.PlayerID(), candidates)
		cancel()
		if err == nil {
			pick = p
		}
	}
	if pick == "" {
		pick = DefaultStarvationChoice(candidates)
	}

	sendCtx, cancel := context.WithTimeout(ctx, opTimeout)
	ack, err := c.StarvationChoice(sendCtx, r.gameID, pick)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("starvation choice: %w", err)
	}
	return stateFromAck(ack, "newState")
}

func (r *SeatRunner) result(state *jarls.GameState) *MatchResult {
	res := &MatchResult{
		GameID:       r.gameID,
		WinnerID:     state.WinnerID,
		WinCondition: string(state.WinCondition),
		Turns:        state.TurnNumber,
		Rounds:       state.RoundNumber,
		Strategies:   map[string]string{r.client.Name(): r.strategy.Name()},
	}
	if p := state.PlayerByID(state.WinnerID); p != nil {
		res.WinnerName = p.Name
	}
	return res
}
