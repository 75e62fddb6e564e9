package bot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jarlsgame/jarls/server/internal/repository"
	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

const defaultArenaTurnLimit = 1000

// ArenaConfig configures a single bot-vs-bot game played directly against
// the engine, without a server.
type ArenaConfig struct {
	Seats       []string      // strategy name per seat (easy, greedy, hard, llm)
	BoardRadius int           // 0 = default
	Terrain     jarls.Terrain // "" = default
	TurnLimit   int           // abandon past this turn; 0 = 1000
	Seed        int64         // draft seed; 0 = time-derived
	DryRun      bool          // skip snapshot and event writes
}

// ArenaResult describes the outcome of a completed arena game.
type ArenaResult struct {
	GameID       string
	WinnerID     string // empty when the turn limit was hit
	WinnerName   string
	WinCondition string
	Turns        int
	Rounds       int
	LimitHit     bool
	PieceCounts  map[string]int // player id -> surviving pieces
}

// RunGame plays a full game using bot strategies, writing the same snapshot
// and event rows a server game would. Pass a nil repo for dry-run mode.
func RunGame(ctx context.Context, cfg ArenaConfig, repo repository.GameRepository) (*ArenaResult, error) {
	if len(cfg.Seats) < 2 {
		return nil, fmt.Errorf("need at least 2 seats, have %d", len(cfg.Seats))
	}
	turnLimit := cfg.TurnLimit
	if turnLimit == 0 {
		turnLimit = defaultArenaTurnLimit
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	state := jarls.NewGame(arenaID(), jarls.Config{
		PlayerCount: len(cfg.Seats),
		BoardRadius: cfg.BoardRadius,
		Terrain:     cfg.Terrain,
	})
	if err := state.Config.Validate(); err != nil {
		return nil, err
	}

	var p *arenaPersister
	if repo != nil && !cfg.DryRun {
		p = &arenaPersister{repo: repo, gameID: state.ID}
	}
	if err := p.commit(ctx, state, lifecycleRow(0, "GAME_CREATED", map[string]any{"config": state.Config})); err != nil {
		return nil, err
	}

	// Seat one AI player per strategy name.
	strategies := make(map[string]Strategy, len(cfg.Seats))
	for i, name := range cfg.Seats {
		id := fmt.Sprintf("bot%d", i+1)
		display := fmt.Sprintf("Bot %d (%s)", i+1, name)
		aiCfg := jarls.AIConfig{Type: "builtin", Difficulty: name}
		if name == "llm" {
			aiCfg = jarls.AIConfig{Type: "llm"}
		}
		next, err := jarls.AddAIPlayer(state, id, display, aiCfg)
		if err != nil {
			return nil, fmt.Errorf("seat %s: %w", id, err)
		}
		state = next
		strategies[id] = StrategyByName(name)
		if err := p.commit(ctx, state, lifecycleRow(0, "PLAYER_JOINED", map[string]any{
			"playerId": id,
			"name":     display,
			"aiConfig": aiCfg,
		})); err != nil {
			return nil, err
		}
	}

	next, err := jarls.StartGame(state, "bot1", seed)
	if err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}
	state = next
	if err := p.commit(ctx, state, lifecycleRow(state.TurnNumber, "GAME_STARTED", map[string]any{
		"currentPlayerId": state.CurrentPlayerID,
	})); err != nil {
		return nil, err
	}

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch state.Phase {
		case jarls.PhaseEnded:
			res := arenaResult(state)
			log.Info().Str("gameId", state.ID).Str("winnerId", res.WinnerID).
				Str("winCondition", res.WinCondition).Int("turns", res.Turns).
				Msg("Arena game ended")
			return res, nil

		case jarls.PhasePlaying:
			if state.TurnNumber > turnLimit {
				res := arenaResult(state)
				res.LimitHit = true
				log.Info().Str("gameId", state.ID).Int("turnLimit", turnLimit).Msg("Arena game hit turn limit")
				return res, nil
			}
			state, err = playArenaTurn(ctx, state, strategies, p)
			if err != nil {
				return nil, err
			}

		case jarls.PhaseStarvation:
			state, err = resolveArenaChoice(ctx, state, strategies, p)
			if err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("unexpected phase %s in arena game", state.Phase)
		}
	}
}

// playArenaTurn asks the current player's strategy for a move and applies
// it, degrading to the deterministic fallback when the strategy misfires.
func playArenaTurn(ctx context.Context, state *jarls.GameState, strategies map[string]Strategy, p *arenaPersister) (*jarls.GameState, error) {
	pid := state.CurrentPlayerID
	strat := strategies[pid]
	if strat == nil {
		return nil, fmt.Errorf("no strategy for player %s", pid)
	}
	turn := state.TurnNumber

	var res *jarls.MoveResult
	if cmd, err := strat.GenerateMove(ctx, state, pid); err == nil {
		if r, verr := jarls.ApplyMove(state, pid, cmd); verr == nil {
			res = r
		}
	}
	if res == nil {
		fb, ok := FallbackMove(state, pid)
		if !ok {
			return nil, fmt.Errorf("player %s has no legal move on turn %d", pid, turn)
		}
		r, verr := jarls.ApplyMove(state, pid, fb)
		if verr != nil {
			return nil, fmt.Errorf("fallback move rejected for %s on turn %d: %w", pid, turn, verr)
		}
		res = r
	}

	if err := p.commit(ctx, res.State, engineRows(turn, res.Events)); err != nil {
		return nil, err
	}
	return res.State, nil
}

// resolveArenaChoice submits one outstanding starvation sacrifice.
func resolveArenaChoice(ctx context.Context, state *jarls.GameState, strategies map[string]Strategy, p *arenaPersister) (*jarls.GameState, error) {
	pid := nextChooser(state)
	if pid == "" {
		return nil, fmt.Errorf("starvation phase with nobody left to choose in game %s", state.ID)
	}
	candidates := state.StarvationCandidates[pid]
	turn := state.TurnNumber

	pieceID := DefaultStarvationChoice(candidates)
	if chooser, ok := strategies[pid].(StarvationChooser); ok {
		if chosen, err := chooser.GenerateStarvationChoice(ctx, state, pid, candidates); err == nil {
			pieceID = chosen
		}
	}

	res, err := jarls.ApplyStarvationChoice(state, pid, pieceID)
	if err != nil && pieceID != DefaultStarvationChoice(candidates) {
		res, err = jarls.ApplyStarvationChoice(state, pid, DefaultStarvationChoice(candidates))
	}
	if err != nil {
		return nil, fmt.Errorf("starvation choice rejected for %s on turn %d: %w", pid, turn, err)
	}

	rows := lifecycleRow(turn, "STARVATION_CHOICE", map[string]any{"playerId": pid, "pieceId": pieceID})
	if res.Resolved {
		rows = engineRows(turn, res.Events)
	}
	if err := p.commit(ctx, res.State, rows); err != nil {
		return nil, err
	}
	return res.State, nil
}

// nextChooser returns the lowest-id player who still owes a sacrifice.
func nextChooser(s *jarls.GameState) string {
	ids := make([]string, 0, len(s.StarvationCandidates))
	for pid := range s.StarvationCandidates {
		if _, chosen := s.PendingStarvationChoices[pid]; !chosen {
			ids = append(ids, pid)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return ids[0]
}

func arenaResult(s *jarls.GameState) *ArenaResult {
	res := &ArenaResult{
		GameID:      s.ID,
		Turns:       s.TurnNumber,
		Rounds:      s.RoundNumber,
		PieceCounts: make(map[string]int, len(s.Players)),
	}
	for i := range s.Players {
		pid := s.Players[i].ID
		n := len(s.WarriorsOf(pid))
		if s.JarlOf(pid) != nil {
			n++
		}
		res.PieceCounts[pid] = n
	}
	if s.Phase == jarls.PhaseEnded {
		res.WinnerID = s.WinnerID
		res.WinCondition = string(s.WinCondition)
		if w := s.PlayerByID(s.WinnerID); w != nil {
			res.WinnerName = w.Name
		}
	}
	return res
}

// arenaPersister mirrors the server's snapshot versioning so arena games are
// indistinguishable from server games in the tables. A nil persister skips
// all writes.
type arenaPersister struct {
	repo    repository.GameRepository
	gameID  string
	version int
}

type eventRow struct {
	turn int
	typ  string
	data json.RawMessage
}

func (p *arenaPersister) commit(ctx context.Context, s *jarls.GameState, rows []eventRow) error {
	if p == nil {
		return nil
	}
	p.version++
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := p.repo.SaveSnapshot(ctx, p.gameID, data, p.version, string(s.Phase)); err != nil {
		return fmt.Errorf("save snapshot v%d: %w", p.version, err)
	}
	for _, r := range rows {
		if err := p.repo.SaveEvent(ctx, p.gameID, r.turn, r.typ, r.data); err != nil {
			return fmt.Errorf("save %s event: %w", r.typ, err)
		}
	}
	return nil
}

func lifecycleRow(turn int, typ string, payload any) []eventRow {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return []eventRow{{turn: turn, typ: typ, data: data}}
}

func engineRows(turn int, events []jarls.Event) []eventRow {
	rows := make([]eventRow, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		rows = append(rows, eventRow{turn: turn, typ: string(ev.Type), data: data})
	}
	return rows
}

func arenaID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("arena%d", time.Now().UnixNano())
	}
	return "arena" + hex.EncodeToString(b)
}
