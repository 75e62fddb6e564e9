package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// opTimeout bounds each request/ack round trip in the play loop.
const opTimeout = 15 * time.Second

// Orchestrator seats a full table of socket clients against a running server
// and plays one game to completion, each seat driven by its own strategy.
type Orchestrator struct {
	baseURL    string
	strategies []Strategy
	radius     int
	terrain    string
	turnLimit  int
	seats      []*seat
}

type seat struct {
	client   *Client
	strategy Strategy
}

// MatchResult summarizes one finished selfplay game.
type MatchResult struct {
	GameID       string            `json:"gameId"`
	WinnerID     string            `json:"winnerId,omitempty"`
	WinnerName   string            `json:"winnerName,omitempty"`
	WinCondition string            `json:"winCondition,omitempty"`
	Turns        int               `json:"turns"`
	Rounds       int               `json:"rounds"`
	Strategies   map[string]string `json:"strategies"`
}

// NewOrchestrator creates an orchestrator seating one client per strategy.
func NewOrchestrator(baseURL string, strategies []Strategy, boardRadius int, terrain string, turnLimit int) *Orchestrator {
	return &Orchestrator{
		baseURL:    baseURL,
		strategies: strategies,
		radius:     boardRadius,
		terrain:    terrain,
		turnLimit:  turnLimit,
	}
}

// Run executes a full game: create, join every seat, start, then play until
// the game ends or the turn limit trips.
func (o *Orchestrator) Run(ctx context.Context) (*MatchResult, error) {
	if len(o.strategies) < 2 {
		return nil, fmt.Errorf("need at least 2 strategies, have %d", len(o.strategies))
	}

	for i, strat := range o.strategies {
		name := fmt.Sprintf("Bot%d", i+1)
		o.seats = append(o.seats, &seat{client: NewClient(name, o.baseURL), strategy: strat})
	}
	host := o.seats[0].client

	gameID, err := host.CreateGame(len(o.seats), o.radius, nil, o.terrain)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	log.Info().Str("gameId", gameID).Int("seats", len(o.seats)).Msg("Selfplay game created")

	for _, s := range o.seats {
		if err := s.client.JoinGame(gameID); err != nil {
			return nil, fmt.Errorf("join %s: %w", s.client.Name(), err)
		}
	}

	// Bind every socket and drain its broadcast feed; an unread feed would
	// eventually wedge the client's read loop.
	for _, s := range o.seats {
		if err := s.client.ConnectWS(); err != nil {
			return nil, fmt.Errorf("ws connect %s: %w", s.client.Name(), err)
		}
		joinCtx, cancel := context.WithTimeout(ctx, opTimeout)
		_, err := s.client.JoinGameWS(joinCtx, gameID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("ws join %s: %w", s.client.Name(), err)
		}
		go func(c *Client) {
			for range c.Events() {
			}
		}(s.client)
	}
	defer func() {
		for _, s := range o.seats {
			s.client.CloseWS()
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, opTimeout)
	ack, err := host.StartGameWS(startCtx, gameID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}
	state, err := stateFromAck(ack, "gameState")
	if err != nil {
		return nil, fmt.Errorf("start ack: %w", err)
	}
	log.Info().Str("gameId", gameID).Str("firstPlayer", state.CurrentPlayerID).Msg("Selfplay game started")

	return o.playLoop(ctx, gameID, state)
}

// playLoop advances the game one submission at a time, tracking state from
// the acks. A few consecutive rejections refetch state and retry before
// giving up.
func (o *Orchestrator) playLoop(ctx context.Context, gameID string, state *jarls.GameState) (*MatchResult, error) {
	misfires := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			next *jarls.GameState
			err  error
		)
		switch state.Phase {
		case jarls.PhaseEnded:
			res := o.result(gameID, state)
			log.Info().Str("gameId", gameID).Str("winner", res.WinnerName).
				Str("condition", res.WinCondition).Int("turns", res.Turns).Msg("Selfplay game ended")
			return res, nil
		case jarls.PhasePlaying:
			if o.turnLimit > 0 && state.TurnNumber > o.turnLimit {
				log.Warn().Str("gameId", gameID).Int("turnLimit", o.turnLimit).Msg("Turn limit reached, abandoning game")
				return o.result(gameID, state), nil
			}
			next, err = o.playOne(ctx, gameID, state)
		case jarls.PhaseStarvation:
			next, err = o.submitOneChoice(ctx, gameID, state)
		default:
			return nil, fmt.Errorf("unexpected phase %q", state.Phase)
		}

		if err != nil {
			misfires++
			if misfires > 3 {
				return nil, fmt.Errorf("giving up after %d consecutive failures: %w", misfires, err)
			}
			log.Warn().Err(err).Str("gameId", gameID).Int("misfires", misfires).Msg("Submission failed, refetching state")
			if next, err = o.refetch(gameID); err != nil {
				return nil, fmt.Errorf("refetch state: %w", err)
			}
		} else {
			misfires = 0
		}
		state = next
	}
}

// playOne generates and submits the current player's move.
func (o *Orchestrator) playOne(ctx context.Context, gameID string, state *jarls.GameState) (*jarls.GameState, error) {
	s := o.seatFor(state.CurrentPlayerID)
	if s == nil {
		return nil, fmt.Errorf("no seat for current player %s", state.CurrentPlayerID)
	}

	moveCtx, cancel := context.WithTimeout(ctx, opTimeout)
	cmd, err := s.strategy.GenerateMove(moveCtx, state, s.client.PlayerID())
	cancel()
	if err != nil {
		fb, ok := FallbackMove(state, s.client.PlayerID())
		if !ok {
			return nil, fmt.Errorf("%s has no legal moves", s.client.Name())
		}
		log.Warn().Err(err).Str("bot", s.client.Name()).Msg("Strategy failed, playing fallback move")
		cmd = fb
	}

	sendCtx, cancel := context.WithTimeout(ctx, opTimeout)
	ack, err := s.client.PlayTurn(sendCtx, gameID, cmd, state.TurnNumber)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("play turn %d (%s): %w", state.TurnNumber, s.client.Name(), err)
	}
	return stateFromAck(ack, "newState")
}

// submitOneChoice submits one missing starvation choice; the loop comes back
// here until the round resolves.
func (o *Orchestrator) submitOneChoice(ctx context.Context, gameID string, state *jarls.GameState) (*jarls.GameState, error) {
	ids := make([]string, 0, len(state.StarvationCandidates))
	for pid := range state.StarvationCandidates {
		ids = append(ids, pid)
	}
	sort.Strings(ids)

	for _, pid := range ids {
		if _, done := state.PendingStarvationChoices[pid]; done {
			continue
		}
		s := o.seatFor(pid)
		if s == nil {
			return nil, fmt.Errorf("no seat for starving player %s", pid)
		}
		candidates := state.StarvationCandidates[pid]

		pick := ""
		if chooser, ok := s.strategy.(StarvationChooser); ok {
			chooseCtx, cancel := context.WithTimeout(ctx, opTimeout)
			p, err := chooser.GenerateStarvationChoice(chooseCtx, state, pid, candidates)
			cancel()
			if err == nil {
				pick = p
			}
		}
		if pick == "" {
			pick = DefaultStarvationChoice(candidates)
		}

		sendCtx, cancel := context.WithTimeout(ctx, opTimeout)
		ack, err := s.client.StarvationChoice(sendCtx, gameID, pick)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("starvation choice (%s): %w", s.client.Name(), err)
		}
		return stateFromAck(ack, "newState")
	}
	return nil, fmt.Errorf("starvation phase with no missing choices")
}

func (o *Orchestrator) seatFor(playerID string) *seat {
	for _, s := range o.seats {
		if s.client.PlayerID() == playerID {
			return s
		}
	}
	return nil
}

func (o *Orchestrator) refetch(gameID string) (*jarls.GameState, error) {
	raw, err := o.seats[0].client.GetGame(gameID)
	if err != nil {
		return nil, err
	}
	return decodeState(raw)
}

func (o *Orchestrator) result(gameID string, state *jarls.GameState) *MatchResult {
	res := &MatchResult{
		GameID:       gameID,
		WinnerID:     state.WinnerID,
		WinCondition: string(state.WinCondition),
		Turns:        state.TurnNumber,
		Rounds:       state.RoundNumber,
		Strategies:   make(map[string]string, len(o.seats)),
	}
	for _, s := range o.seats {
		res.Strategies[s.client.Name()] = s.strategy.Name()
	}
	if p := state.PlayerByID(state.WinnerID); p != nil {
		res.WinnerName = p.Name
	}
	return res
}

// stateFromAck pulls a game state out of an ack payload.
func stateFromAck(ev *WSEvent, key string) (*jarls.GameState, error) {
	raw, ok := ev.Data[key]
	if !ok {
		return nil, fmt.Errorf("ack missing %q", key)
	}
	return decodeState(raw)
}

// decodeState converts a generically-decoded JSON value into a GameState.
func decodeState(v any) (*jarls.GameState, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("re-marshal state: %w", err)
	}
	var gs jarls.GameState
	if err := json.Unmarshal(blob, &gs); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &gs, nil
}
