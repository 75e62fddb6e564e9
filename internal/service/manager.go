// Package service owns the live games: it serializes mutations per game,
// schedules persistence, drives AI turns, and fans committed transitions out
// to the socket layer.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jarlsgame/jarls/server/internal/bot"
	"github.com/jarlsgame/jarls/server/internal/logger"
	"github.com/jarlsgame/jarls/server/internal/model"
	"github.com/jarlsgame/jarls/server/internal/repository"
	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrGameUnavailable = errors.New("game is unavailable after a persistence conflict")
	ErrStaleMove       = errors.New("stale move request")
	ErrShuttingDown    = errors.New("server is shutting down")
)

const (
	// GraceWindow is how long a disconnected player has to reconnect before
	// the game forfeits them.
	GraceWindow = 120 * time.Second

	// defaultChoiceTimeout bounds starvation choices in games without a
	// turn timer.
	defaultChoiceTimeout = 30 * time.Second

	aiMoveTimeout  = 10 * time.Second
	persistTimeout = 10 * time.Second
	timerOpTimeout = 5 * time.Second
)

// liveGame is one resident game: its authoritative state, snapshot version,
// and the per-game persistence queue. All fields are guarded by mu except
// the queue channel, which only the owning goroutine receives from.
type liveGame struct {
	id string

	mu        sync.Mutex
	state     *jarls.GameState
	version   int
	createdAt time.Time

	jobs        chan persistJob
	closed      bool
	quarantined bool
	aiRunning   bool

	// In-memory deadlines mirror the Redis timer keys so a poller can
	// backstop missed keyspace notifications.
	graceDeadlines map[string]time.Time
	choiceDeadline time.Time
}

type persistJob struct {
	state   json.RawMessage
	version int
	status  string
	events  []eventJob
}

type eventJob struct {
	turnNumber int
	eventType  string
	data       json.RawMessage
}

// Manager owns every live game. Mutations hold the game's lock across
// validate, apply, persistence scheduling, and broadcast, so observers see
// commits in order and snapshot versions stay strictly monotone.
type Manager struct {
	repo        repository.GameRepository
	timers      repository.TimerStore
	broadcaster Broadcaster

	games sync.Map // gameID -> *liveGame
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewManager creates a manager. A nil broadcaster falls back to the no-op
// implementation so tests and tools can skip the socket layer.
func NewManager(repo repository.GameRepository, timers repository.TimerStore, broadcaster Broadcaster) *Manager {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &Manager{
		repo:        repo,
		timers:      timers,
		broadcaster: broadcaster,
	}
}

// SetBroadcaster swaps the fan-out target. Called once during startup after
// the hub is constructed; not safe once games are live.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	if b != nil {
		m.broadcaster = b
	}
}

// Create initializes a lobby, registers it, and schedules its first
// snapshot. The returned ID is the game's public identifier.
func (m *Manager) Create(ctx context.Context, cfg jarls.Config) (string, error) {
	if m.isClosed() {
		return "", ErrShuttingDown
	}
	state := jarls.NewGame(newID(16), cfg)
	if err := state.Config.Validate(); err != nil {
		return "", err
	}

	g := m.newLiveGame(state.ID, state, 1, time.Now().UTC())
	m.games.Store(state.ID, g)

	g.mu.Lock()
	m.schedulePersist(g, lifecycleEvents(0, "GAME_CREATED", map[string]any{"config": state.Config}))
	g.mu.Unlock()

	log.Info().Str("gameId", state.ID).
		Int("playerCount", state.Config.PlayerCount).
		Int("boardRadius", state.Config.BoardRadius).
		Msg("Game created")
	return state.ID, nil
}

// Join seats a player under a freshly generated ID and returns it together
// with the committed state.
func (m *Manager) Join(ctx context.Context, gameID, playerName string) (string, *jarls.GameState, error) {
	g, err := m.game(gameID)
	if err != nil {
		return "", nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guard(); err != nil {
		return "", nil, err
	}

	playerID := "p" + newID(4)
	next, err := jarls.AddPlayer(g.state, playerID, playerName)
	if err != nil {
		return "", nil, err
	}
	m.commit(g, next, lifecycleEvents(0, "PLAYER_JOINED", map[string]any{
		"playerId": playerID,
		"name":     playerName,
	}))

	m.broadcaster.BroadcastGameEvent(gameID, "playerJoined", map[string]any{
		"playerId":   playerID,
		"playerName": playerName,
		"gameState":  next,
	})
	log.Info().Str("gameId", gameID).Str("playerId", playerID).Msg("Player joined")
	return playerID, next.Clone(), nil
}

// AddAI seats a computer-controlled player. Only the host may call this.
func (m *Manager) AddAI(ctx context.Context, gameID, callerID string, cfg jarls.AIConfig) (string, *jarls.AIConfig, error) {
	g, err := m.game(gameID)
	if err != nil {
		return "", nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guard(); err != nil {
		return "", nil, err
	}
	if g.state.HostID() != callerID {
		return "", nil, jarls.ErrNotHost
	}

	if cfg.Type == "" {
		cfg.Type = "builtin"
	}
	if cfg.Type != "llm" && cfg.Difficulty == "" {
		cfg.Difficulty = "medium"
	}

	aiID := "ai" + newID(4)
	name := fmt.Sprintf("Bot %d", countAI(g.state)+1)
	next, err := jarls.AddAIPlayer(g.state, aiID, name, cfg)
	if err != nil {
		return "", nil, err
	}
	m.commit(g, next, lifecycleEvents(0, "PLAYER_JOINED", map[string]any{
		"playerId": aiID,
		"name":     name,
		"aiConfig": cfg,
	}))

	m.broadcaster.BroadcastGameEvent(gameID, "playerJoined", map[string]any{
		"playerId":   aiID,
		"playerName": name,
		"isAI":       true,
		"gameState":  next,
	})
	log.Info().Str("gameId", gameID).Str("playerId", aiID).
		Str("type", cfg.Type).Str("difficulty", cfg.Difficulty).
		Msg("AI player added")
	return aiID, &cfg, nil
}

// Start rolls the draft and opens play. Host only; every seat must be
// filled.
func (m *Manager) Start(ctx context.Context, gameID, callerID string) (*jarls.GameState, error) {
	g, err := m.game(gameID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if err := g.guard(); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	next, err := jarls.StartGame(g.state, callerID, time.Now().UnixNano())
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	m.commit(g, next, lifecycleEvents(next.TurnNumber, "GAME_STARTED", map[string]any{
		"currentPlayerId": next.CurrentPlayerID,
	}))
	m.broadcaster.BroadcastGameEvent(gameID, "gameState", next)
	g.mu.Unlock()

	log.Info().Str("gameId", gameID).Str("currentPlayerId", next.CurrentPlayerID).Msg("Game started")
	m.maybeDriveAI(gameID)
	return next.Clone(), nil
}

// Get returns a deep copy of the current state.
func (m *Manager) Get(ctx context.Context, gameID string) (*jarls.GameState, error) {
	g, err := m.game(gameID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Clone(), nil
}

// List summarizes every resident non-ended game, newest first. Finished
// games stay resident for final-state fetches but drop out of the listing;
// they are still counted by Stats.
func (m *Manager) List(ctx context.Context) []model.GameSummary {
	out := []model.GameSummary{}
	m.games.Range(func(_, v any) bool {
		g := v.(*liveGame)
		g.mu.Lock()
		s := g.state
		if s.Phase == jarls.PhaseEnded {
			g.mu.Unlock()
			return true
		}
		sum := model.GameSummary{
			GameID:      s.ID,
			Status:      string(s.Phase),
			PlayerCount: len(s.Players),
			MaxPlayers:  s.Config.PlayerCount,
			TurnTimerMs: s.Config.TurnTimerMs,
			CreatedAt:   g.createdAt,
			Players:     make([]model.PlayerSummary, 0, len(s.Players)),
		}
		for i := range s.Players {
			sum.Players = append(sum.Players, model.PlayerSummary{
				ID:   s.Players[i].ID,
				Name: s.Players[i].Name,
			})
		}
		g.mu.Unlock()
		out = append(out, sum)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Stats aggregates lifetime game counts from the snapshot table, so ended
// and pre-restart games are included.
func (m *Manager) Stats(ctx context.Context) (*model.GameStats, error) {
	return m.repo.Stats(ctx)
}

// ValidMoves enumerates the legal destinations for one piece. Unknown
// pieces and off-turn queries yield an empty list, not an error.
func (m *Manager) ValidMoves(ctx context.Context, gameID, pieceID string) ([]jarls.ValidMove, error) {
	g, err := m.game(gameID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	moves := jarls.ValidMoves(g.state, pieceID)
	if moves == nil {
		moves = []jarls.ValidMove{}
	}
	return moves, nil
}

// MakeMove validates and applies one move. When clientTurn is non-nil it
// must match the current turn number, which lets clients detect that a
// queued command raced a timeout resolution.
func (m *Manager) MakeMove(ctx context.Context, gameID, playerID string, cmd jarls.MoveCommand, clientTurn *int) (*jarls.MoveResult, error) {
	g, err := m.game(gameID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if err := g.guard(); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	if clientTurn != nil && *clientTurn != g.state.TurnNumber {
		g.mu.Unlock()
		return nil, ErrStaleMove
	}

	turn := g.state.TurnNumber
	res, verr := jarls.ApplyMove(g.state, playerID, cmd)
	if verr != nil {
		g.mu.Unlock()
		return nil, verr
	}

	m.commit(g, res.State, engineEvents(turn, res.Events))
	m.afterTransition(g)
	m.broadcaster.BroadcastGameEvent(gameID, "turnPlayed", map[string]any{
		"newState": res.State,
		"events":   res.Events,
	})
	m.announceEnd(g)
	g.mu.Unlock()

	m.maybeDriveAI(gameID)
	return res, nil
}

// SubmitStarvationChoice records one player's sacrifice. The round resolves
// once the last required player has chosen.
func (m *Manager) SubmitStarvationChoice(ctx context.Context, gameID, playerID, pieceID string) (*jarls.ChoiceResult, error) {
	g, err := m.game(gameID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if err := g.guard(); err != nil {
		g.mu.Unlock()
		return nil, err
	}

	turn := g.state.TurnNumber
	res, verr := jarls.ApplyStarvationChoice(g.state, playerID, pieceID)
	if verr != nil {
		g.mu.Unlock()
		return nil, verr
	}

	if res.Resolved {
		m.commit(g, res.State, engineEvents(turn, res.Events))
		m.afterTransition(g)
		m.broadcaster.BroadcastGameEvent(gameID, "turnPlayed", map[string]any{
			"newState": res.State,
			"events":   res.Events,
		})
		m.announceEnd(g)
	} else {
		m.commit(g, res.State, lifecycleEvents(turn, "STARVATION_CHOICE", map[string]any{
			"playerId": playerID,
			"pieceId":  pieceID,
		}))
		m.broadcaster.BroadcastGameEvent(gameID, "gameState", res.State)
	}
	g.mu.Unlock()

	m.maybeDriveAI(gameID)
	return res, nil
}

// OnDisconnect marks a player as dropped. In the lobby the seat is simply
// vacated; during play the game pauses and a grace timer starts.
func (m *Manager) OnDisconnect(gameID, playerID string) {
	g, err := m.game(gameID)
	if err != nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.quarantined {
		return
	}

	switch g.state.Phase {
	case jarls.PhaseLobby:
		next, err := jarls.RemovePlayer(g.state, playerID)
		if err != nil {
			return
		}
		m.commit(g, next, lifecycleEvents(0, "PLAYER_LEFT", map[string]any{"playerId": playerID}))
		m.broadcaster.BroadcastGameEvent(gameID, "playerLeft", map[string]any{
			"playerId":  playerID,
			"gameState": next,
		})
		log.Info().Str("gameId", gameID).Str("playerId", playerID).Msg("Player left lobby")

	case jarls.PhaseEnded:
		return

	default:
		next, changed := jarls.MarkDisconnected(g.state, playerID)
		if !changed {
			return
		}
		m.commit(g, next, lifecycleEvents(next.TurnNumber, "PLAYER_DISCONNECTED", map[string]any{
			"playerId": playerID,
		}))
		g.graceDeadlines[playerID] = time.Now().Add(GraceWindow)
		go m.armGrace(gameID, playerID, GraceWindow)
		m.broadcaster.BroadcastGameEvent(gameID, "playerLeft", map[string]any{
			"playerId":  playerID,
			"gameState": next,
		})
		log.Info().Str("gameId", gameID).Str("playerId", playerID).
			Dur("graceWindow", GraceWindow).
			Msg("Player disconnected, game paused")
	}
}

// OnReconnect clears a player's grace window and resumes the game once
// nobody is missing. Safe to call for players who never disconnected.
func (m *Manager) OnReconnect(gameID, playerID string) {
	g, err := m.game(gameID)
	if err != nil {
		return
	}

	g.mu.Lock()
	delete(g.graceDeadlines, playerID)
	go m.cancelGrace(gameID, playerID)

	next, changed := jarls.MarkReconnected(g.state, playerID)
	if !changed {
		g.mu.Unlock()
		return
	}
	m.commit(g, next, lifecycleEvents(next.TurnNumber, "PLAYER_RECONNECTED", map[string]any{
		"playerId": playerID,
	}))
	if next.Phase == jarls.PhaseStarvation {
		// Resumed into an unresolved starvation round: give the remaining
		// choosers a fresh window.
		ttl := choiceTimeout(next)
		g.choiceDeadline = time.Now().Add(ttl)
		go m.armChoice(gameID, ttl)
	}
	m.broadcaster.BroadcastGameEvent(gameID, "playerReconnected", map[string]any{
		"playerId":  playerID,
		"gameState": next,
	})
	g.mu.Unlock()

	log.Info().Str("gameId", gameID).Str("playerId", playerID).Msg("Player reconnected")
	m.maybeDriveAI(gameID)
}

// OnGraceExpired forfeits a player whose reconnect window ran out. The
// deadline is re-checked under the lock, so a reconnect that raced the
// expiry wins.
func (m *Manager) OnGraceExpired(gameID, playerID string) {
	g, err := m.game(gameID)
	if err != nil {
		return
	}

	g.mu.Lock()
	if g.quarantined {
		g.mu.Unlock()
		return
	}
	if _, armed := g.graceDeadlines[playerID]; !armed {
		g.mu.Unlock()
		return
	}
	delete(g.graceDeadlines, playerID)
	if !g.state.IsDisconnected(playerID) {
		g.mu.Unlock()
		return
	}

	turn := g.state.TurnNumber
	next, events, err := jarls.Forfeit(g.state, playerID)
	if err != nil {
		g.mu.Unlock()
		log.Error().Err(err).Str("gameId", gameID).Str("playerId", playerID).
			Msg("Grace expiry forfeit failed")
		return
	}

	jobs := lifecycleEvents(turn, "PLAYER_FORFEITED", map[string]any{"playerId": playerID})
	jobs = append(jobs, engineEvents(turn, events)...)
	m.commit(g, next, jobs)
	m.afterTransition(g)
	m.broadcaster.BroadcastGameEvent(gameID, "playerLeft", map[string]any{
		"playerId":  playerID,
		"forfeited": true,
		"gameState": next,
		"events":    events,
	})
	m.announceEnd(g)
	g.mu.Unlock()

	log.Info().Str("gameId", gameID).Str("playerId", playerID).Msg("Grace window expired, player forfeited")
	m.maybeDriveAI(gameID)
}

// OnChoiceExpired auto-selects sacrifices for players who never chose.
// Double fires and late fires are no-ops.
func (m *Manager) OnChoiceExpired(gameID string) {
	g, err := m.game(gameID)
	if err != nil {
		return
	}

	g.mu.Lock()
	g.choiceDeadline = time.Time{}
	if g.quarantined || g.state.Phase != jarls.PhaseStarvation {
		g.mu.Unlock()
		return
	}

	turn := g.state.TurnNumber
	res := jarls.AutoResolveStarvation(g.state)
	if res == nil {
		g.mu.Unlock()
		return
	}
	m.commit(g, res.State, engineEvents(turn, res.Events))
	m.afterTransition(g)
	m.broadcaster.BroadcastGameEvent(gameID, "turnPlayed", map[string]any{
		"newState": res.State,
		"events":   res.Events,
	})
	m.announceEnd(g)
	g.mu.Unlock()

	log.Info().Str("gameId", gameID).Msg("Starvation choice window expired, auto-resolved")
	m.maybeDriveAI(gameID)
}

// Recover loads every non-ended snapshot and rebuilds its live game.
// Individual bad rows are skipped; only the initial query is fatal.
func (m *Manager) Recover(ctx context.Context) error {
	recs, err := m.repo.LoadActiveSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("load active snapshots: %w", err)
	}
	if len(recs) == 0 {
		log.Info().Msg("No active games to recover")
		return nil
	}
	log.Info().Int("count", len(recs)).Msg("Recovering active games")

	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(8)
	for _, rec := range recs {
		rec := rec
		eg.Go(func() error {
			var state jarls.GameState
			if err := json.Unmarshal(rec.State, &state); err != nil {
				log.Error().Err(err).Str("gameId", rec.GameID).Msg("Snapshot unmarshal failed, skipping game")
				return nil
			}

			g := m.newLiveGame(rec.GameID, &state, rec.Version, rec.CreatedAt)
			m.games.Store(rec.GameID, g)

			g.mu.Lock()
			switch state.Phase {
			case jarls.PhasePaused:
				for _, pid := range state.DisconnectedPlayers {
					g.graceDeadlines[pid] = time.Now().Add(GraceWindow)
					go m.armGrace(rec.GameID, pid, GraceWindow)
				}
			case jarls.PhaseStarvation:
				ttl := choiceTimeout(&state)
				g.choiceDeadline = time.Now().Add(ttl)
				go m.armChoice(rec.GameID, ttl)
			}
			g.mu.Unlock()

			log.Info().Str("gameId", rec.GameID).Str("phase", string(state.Phase)).
				Int("version", rec.Version).
				Msg("Game recovered")
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, rec := range recs {
		m.maybeDriveAI(rec.GameID)
	}
	log.Info().Msg("Recovery complete")
	return nil
}

// ExpiredTimers returns the timers whose in-memory deadline has passed.
// The poll fallback feeds these back through the expiry handlers.
func (m *Manager) ExpiredTimers(now time.Time) (grace [][2]string, choice []string) {
	m.games.Range(func(_, v any) bool {
		g := v.(*liveGame)
		g.mu.Lock()
		for pid, deadline := range g.graceDeadlines {
			if now.After(deadline) {
				grace = append(grace, [2]string{g.id, pid})
			}
		}
		if !g.choiceDeadline.IsZero() && now.After(g.choiceDeadline) {
			choice = append(choice, g.id)
		}
		g.mu.Unlock()
		return true
	})
	return grace, choice
}

// Close stops accepting work and waits for the persistence queues to drain.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.games.Range(func(_, v any) bool {
		g := v.(*liveGame)
		g.mu.Lock()
		if !g.closed {
			g.closed = true
			close(g.jobs)
		}
		g.mu.Unlock()
		return true
	})
	m.wg.Wait()
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) game(gameID string) (*liveGame, error) {
	v, ok := m.games.Load(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}
	return v.(*liveGame), nil
}

func (g *liveGame) guard() error {
	if g.quarantined {
		return ErrGameUnavailable
	}
	return nil
}

func (m *Manager) newLiveGame(id string, state *jarls.GameState, version int, createdAt time.Time) *liveGame {
	g := &liveGame{
		id:             id,
		state:          state,
		version:        version,
		createdAt:      createdAt,
		jobs:           make(chan persistJob, 64),
		graceDeadlines: make(map[string]time.Time),
	}
	m.wg.Add(1)
	go m.runPersistQueue(g)
	return g
}

// commit swaps in the next state and schedules its snapshot. Must be called
// with g.mu held. Committed states are never mutated again, so broadcasting
// the same pointer afterwards is safe.
func (m *Manager) commit(g *liveGame, next *jarls.GameState, events []eventJob) {
	g.state = next
	g.version++
	m.schedulePersist(g, events)
}

// schedulePersist marshals the committed state under the lock so queued
// versions line up, then hands the write to the queue without waiting.
func (m *Manager) schedulePersist(g *liveGame, events []eventJob) {
	if g.closed {
		log.Error().Str("gameId", g.id).Int("version", g.version).Msg("Persist after close, dropping write")
		return
	}
	data, err := json.Marshal(g.state)
	if err != nil {
		log.Error().Err(err).Str("gameId", g.id).Msg("State marshal failed, dropping write")
		return
	}
	job := persistJob{state: data, version: g.version, status: string(g.state.Phase), events: events}
	select {
	case g.jobs <- job:
	default:
		log.Error().Str("gameId", g.id).Int("version", job.version).Msg("Persist queue full, dropping write")
	}
}

// runPersistQueue drains one game's writes in order. A version conflict
// quarantines the game; other write failures are logged and skipped so the
// queue keeps moving.
func (m *Manager) runPersistQueue(g *liveGame) {
	defer m.wg.Done()
	lg := logger.ForGame(g.id)
	for job := range g.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := m.repo.SaveSnapshot(ctx, g.id, job.state, job.version, job.status)
		if errors.Is(err, repository.ErrVersionConflict) {
			g.mu.Lock()
			g.quarantined = true
			g.mu.Unlock()
			lg.Error().Int("version", job.version).Msg("Snapshot version conflict, quarantining game")
			cancel()
			continue
		}
		if err != nil {
			lg.Error().Err(err).Int("version", job.version).Msg("Snapshot write failed")
		}
		for _, ev := range job.events {
			if err := m.repo.SaveEvent(ctx, g.id, ev.turnNumber, ev.eventType, ev.data); err != nil {
				lg.Error().Err(err).Str("eventType", ev.eventType).Msg("Event write failed")
			}
		}
		cancel()
	}
}

// afterTransition reconciles the timers with the phase just committed.
// Must be called with g.mu held.
func (m *Manager) afterTransition(g *liveGame) {
	switch g.state.Phase {
	case jarls.PhaseStarvation:
		if g.choiceDeadline.IsZero() {
			ttl := choiceTimeout(g.state)
			g.choiceDeadline = time.Now().Add(ttl)
			go m.armChoice(g.id, ttl)
			m.broadcaster.BroadcastGameEvent(g.id, "starvationRequired", map[string]any{
				"candidates": g.state.StarvationCandidates,
				"timeoutMs":  int(ttl / time.Millisecond),
			})
		}
	case jarls.PhaseEnded:
		if !g.choiceDeadline.IsZero() {
			g.choiceDeadline = time.Time{}
			go m.cancelChoice(g.id)
		}
		for pid := range g.graceDeadlines {
			go m.cancelGrace(g.id, pid)
		}
		g.graceDeadlines = make(map[string]time.Time)
	default:
		if !g.choiceDeadline.IsZero() {
			g.choiceDeadline = time.Time{}
			go m.cancelChoice(g.id)
		}
	}
}

// announceEnd emits the terminal broadcast. Must be called with g.mu held.
func (m *Manager) announceEnd(g *liveGame) {
	if g.state.Phase != jarls.PhaseEnded {
		return
	}
	m.broadcaster.BroadcastGameEvent(g.id, "gameEnded", map[string]any{
		"winnerId":     g.state.WinnerID,
		"winCondition": g.state.WinCondition,
	})
	log.Info().Str("gameId", g.id).Str("winnerId", g.state.WinnerID).
		Str("winCondition", string(g.state.WinCondition)).
		Msg("Game ended")
}

// maybeDriveAI starts one background strategy turn when the game is waiting
// on a computer player. At most one AI task runs per game at a time.
func (m *Manager) maybeDriveAI(gameID string) {
	g, err := m.game(gameID)
	if err != nil {
		return
	}

	g.mu.Lock()
	if g.quarantined || g.aiRunning {
		g.mu.Unlock()
		return
	}

	switch g.state.Phase {
	case jarls.PhasePlaying:
		p := g.state.PlayerByID(g.state.CurrentPlayerID)
		if p == nil || !p.IsAI {
			g.mu.Unlock()
			return
		}
		g.aiRunning = true
		snapshot := g.state.Clone()
		turn := g.state.TurnNumber
		g.mu.Unlock()
		go m.runAIMove(gameID, p.ID, snapshot, turn)

	case jarls.PhaseStarvation:
		owing := ""
		for i := range g.state.Players {
			p := &g.state.Players[i]
			if !p.IsAI {
				continue
			}
			if _, required := g.state.StarvationCandidates[p.ID]; !required {
				continue
			}
			if _, chosen := g.state.PendingStarvationChoices[p.ID]; chosen {
				continue
			}
			owing = p.ID
			break
		}
		if owing == "" {
			g.mu.Unlock()
			return
		}
		g.aiRunning = true
		snapshot := g.state.Clone()
		g.mu.Unlock()
		go m.runAIChoice(gameID, owing, snapshot)

	default:
		g.mu.Unlock()
	}
}

// runAIMove asks the configured strategy for a move and feeds it through
// the normal MakeMove path. Strategy failures degrade to the deterministic
// fallback move.
func (m *Manager) runAIMove(gameID, playerID string, state *jarls.GameState, turn int) {
	ctx, cancel := context.WithTimeout(context.Background(), aiMoveTimeout)
	defer cancel()

	var cfg *jarls.AIConfig
	if p := state.PlayerByID(playerID); p != nil {
		cfg = p.AIConfig
	}
	strat := bot.StrategyFor(cfg)

	moved := false
	cmd, err := strat.GenerateMove(ctx, state, playerID)
	if err == nil {
		if _, mvErr := m.MakeMove(ctx, gameID, playerID, cmd, &turn); mvErr == nil {
			moved = true
		} else {
			log.Warn().Err(mvErr).Str("gameId", gameID).Str("strategy", strat.Name()).
				Msg("AI move rejected, using fallback")
		}
	} else {
		log.Warn().Err(err).Str("gameId", gameID).Str("strategy", strat.Name()).
			Msg("AI strategy failed, using fallback")
	}

	if !moved {
		if fallback, ok := bot.FallbackMove(state, playerID); ok {
			if _, err := m.MakeMove(context.Background(), gameID, playerID, fallback, &turn); err != nil {
				log.Error().Err(err).Str("gameId", gameID).Msg("AI fallback move rejected")
			} else {
				moved = true
			}
		} else {
			log.Warn().Str("gameId", gameID).Str("playerId", playerID).Msg("AI has no legal moves")
		}
	}
	m.finishAITask(gameID, moved)
}

// runAIChoice submits a starvation sacrifice for one AI player.
func (m *Manager) runAIChoice(gameID, playerID string, state *jarls.GameState) {
	ctx, cancel := context.WithTimeout(context.Background(), aiMoveTimeout)
	defer cancel()

	var cfg *jarls.AIConfig
	if p := state.PlayerByID(playerID); p != nil {
		cfg = p.AIConfig
	}
	strat := bot.StrategyFor(cfg)
	candidates := state.StarvationCandidates[playerID]

	pieceID := bot.DefaultStarvationChoice(candidates)
	if chooser, ok := strat.(bot.StarvationChooser); ok {
		if chosen, err := chooser.GenerateStarvationChoice(ctx, state, playerID, candidates); err == nil {
			pieceID = chosen
		}
	}

	done := true
	if _, err := m.SubmitStarvationChoice(ctx, gameID, playerID, pieceID); err != nil {
		fallback := bot.DefaultStarvationChoice(candidates)
		if pieceID == fallback {
			done = false
			log.Error().Err(err).Str("gameId", gameID).Str("playerId", playerID).
				Msg("AI starvation choice rejected")
		} else if _, err2 := m.SubmitStarvationChoice(ctx, gameID, playerID, fallback); err2 != nil {
			done = false
			log.Error().Err(err2).Str("gameId", gameID).Str("playerId", playerID).
				Msg("AI starvation fallback rejected")
		}
	}
	m.finishAITask(gameID, done)
}

// finishAITask clears the single-flight flag and, when progress was made,
// immediately checks whether another AI action is due.
func (m *Manager) finishAITask(gameID string, progressed bool) {
	g, err := m.game(gameID)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.aiRunning = false
	g.mu.Unlock()
	if progressed {
		m.maybeDriveAI(gameID)
	}
}

func (m *Manager) armGrace(gameID, playerID string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()
	if err := m.timers.ArmGrace(ctx, gameID, playerID, ttl); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Str("playerId", playerID).
			Msg("Grace timer arm failed, poller will cover it")
	}
}

func (m *Manager) cancelGrace(gameID, playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()
	if err := m.timers.CancelGrace(ctx, gameID, playerID); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Str("playerId", playerID).Msg("Grace timer cancel failed")
	}
}

func (m *Manager) armChoice(gameID string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()
	if err := m.timers.ArmChoice(ctx, gameID, ttl); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Choice timer arm failed, poller will cover it")
	}
}

func (m *Manager) cancelChoice(gameID string) {
	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()
	if err := m.timers.CancelChoice(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Choice timer cancel failed")
	}
}

// choiceTimeout is the game's turn timer when configured, else 30 seconds.
func choiceTimeout(s *jarls.GameState) time.Duration {
	if t := s.Config.TurnTimerMs; t != nil && *t > 0 {
		return time.Duration(*t) * time.Millisecond
	}
	return defaultChoiceTimeout
}

func countAI(s *jarls.GameState) int {
	n := 0
	for i := range s.Players {
		if s.Players[i].IsAI {
			n++
		}
	}
	return n
}

// engineEvents converts engine events into persistence jobs for one turn.
func engineEvents(turn int, events []jarls.Event) []eventJob {
	jobs := make([]eventJob, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		jobs = append(jobs, eventJob{turnNumber: turn, eventType: string(ev.Type), data: data})
	}
	return jobs
}

// lifecycleEvents wraps a single service-level event into a job list.
func lifecycleEvents(turn int, eventType string, payload any) []eventJob {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return []eventJob{{turnNumber: turn, eventType: eventType, data: data}}
}

// newID returns a random hex identifier of 2n characters.
func newID(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("id%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
