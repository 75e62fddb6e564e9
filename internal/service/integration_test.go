//go:build integration

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jarlsgame/jarls/server/internal/model"
	"github.com/jarlsgame/jarls/server/internal/repository/postgres"
	redisrepo "github.com/jarlsgame/jarls/server/internal/repository/redis"
	"github.com/jarlsgame/jarls/server/internal/testutil"
	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// testEnv holds shared test infrastructure.
type testEnv struct {
	db     *sql.DB
	rdb    *goredis.Client
	repo   *postgres.GameRepo
	timers *redisrepo.TimerRepo
}

var env *testEnv

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	if env == nil {
		db := testutil.SetupDB(t)
		rdb := testutil.SetupRedis(t)
		env = &testEnv{
			db:     db,
			rdb:    rdb,
			repo:   postgres.NewGameRepo(db),
			timers: redisrepo.NewTimerRepo(redisrepo.NewClientFromPool(rdb)),
		}
	}
	testutil.CleanupDB(t, env.db)
	testutil.CleanupRedis(t, env.rdb)
	return env
}

func newManager(t *testing.T, e *testEnv) *Manager {
	t.Helper()
	m := NewManager(e.repo, e.timers, nil)
	t.Cleanup(m.Close)
	return m
}

// createStarted builds a default two-player game and starts it.
func createStarted(t *testing.T, m *Manager) (gameID, hostID, guestID string) {
	t.Helper()
	ctx := context.Background()

	gameID, err := m.Create(ctx, jarls.Config{})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if hostID, _, err = m.Join(ctx, gameID, "Ragnar"); err != nil {
		t.Fatalf("join host: %v", err)
	}
	if guestID, _, err = m.Join(ctx, gameID, "Freya"); err != nil {
		t.Fatalf("join guest: %v", err)
	}
	if _, err := m.Start(ctx, gameID, hostID); err != nil {
		t.Fatalf("start game: %v", err)
	}
	return gameID, hostID, guestID
}

// waitSnapshot polls until the persist queue has flushed the given version.
func waitSnapshot(t *testing.T, e *testEnv, gameID string, version int) *model.GameRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, err := e.repo.LoadSnapshot(context.Background(), gameID)
		if err != nil {
			t.Fatalf("load snapshot: %v", err)
		}
		if rec != nil && rec.Version >= version {
			return rec
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot for %s never reached version %d", gameID, version)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// waitEvents polls until at least n event rows are visible.
func waitEvents(t *testing.T, e *testEnv, gameID string, n int) []model.EventRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		evs, err := e.repo.ListEvents(context.Background(), gameID)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(evs) >= n {
			return evs
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d events for %s, have %d", n, gameID, len(evs))
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// waitKey polls until the Redis key exists (or not). Timer writes happen on
// background goroutines, so assertions on them have to wait.
func waitKey(t *testing.T, rdb *goredis.Client, key string, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := rdb.Exists(context.Background(), key).Result()
		if err != nil {
			t.Fatalf("exists %s: %v", key, err)
		}
		if (n == 1) == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("key %s exists=%v, want %v", key, n == 1, want)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// TestLifecyclePersistsSnapshotsAndEvents tests: create -> join -> start,
// then verifies the snapshot chain and event log in Postgres.
func TestLifecyclePersistsSnapshotsAndEvents(t *testing.T) {
	e := setupEnv(t)
	m := newManager(t, e)
	ctx := context.Background()

	gameID, hostID, _ := createStarted(t, m)

	live, err := m.Get(ctx, gameID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if live.Phase != jarls.PhasePlaying {
		t.Fatalf("expected playing, got %s", live.Phase)
	}
	if live.TurnNumber != 1 {
		t.Fatalf("expected turn 1, got %d", live.TurnNumber)
	}

	// create=1, two joins=2,3, start=4
	rec := waitSnapshot(t, e, gameID, 4)
	if rec.Status != "playing" {
		t.Fatalf("expected status playing, got %s", rec.Status)
	}
	var stored jarls.GameState
	if err := json.Unmarshal(rec.State, &stored); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if stored.ID != gameID || len(stored.Players) != 2 || stored.Phase != jarls.PhasePlaying {
		t.Fatalf("snapshot mismatch: id=%s players=%d phase=%s", stored.ID, len(stored.Players), stored.Phase)
	}

	evs := waitEvents(t, e, gameID, 4)
	wantTypes := []string{"GAME_CREATED", "PLAYER_JOINED", "PLAYER_JOINED", "GAME_STARTED"}
	for i, want := range wantTypes {
		if evs[i].EventType != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, evs[i].EventType)
		}
	}
	if evs[3].TurnNumber != 1 {
		t.Fatalf("expected start event on turn 1, got %d", evs[3].TurnNumber)
	}

	var joined struct {
		PlayerID string `json:"playerId"`
	}
	if err := json.Unmarshal(evs[1].EventData, &joined); err != nil {
		t.Fatalf("unmarshal join event: %v", err)
	}
	if joined.PlayerID != hostID {
		t.Fatalf("expected first join %s, got %s", hostID, joined.PlayerID)
	}

	var started struct {
		CurrentPlayerID string `json:"currentPlayerId"`
	}
	if err := json.Unmarshal(evs[3].EventData, &started); err != nil {
		t.Fatalf("unmarshal start event: %v", err)
	}
	if started.CurrentPlayerID != live.CurrentPlayerID {
		t.Fatalf("expected current player %s, got %s", live.CurrentPlayerID, started.CurrentPlayerID)
	}
}

// TestMoveRoundTripPersists plays one real move and verifies both the stale
// guard and the persisted state.
func TestMoveRoundTripPersists(t *testing.T) {
	e := setupEnv(t)
	m := newManager(t, e)
	ctx := context.Background()

	gameID, _, _ := createStarted(t, m)

	s, err := m.Get(ctx, gameID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	moves := jarls.AllValidMoves(s, s.CurrentPlayerID)
	if len(moves) == 0 {
		t.Fatal("expected legal moves at game start")
	}
	mv := moves[0]

	turn := s.TurnNumber
	res, err := m.MakeMove(ctx, gameID, s.CurrentPlayerID, jarls.MoveCommand{PieceID: mv.PieceID, To: mv.To}, &turn)
	if err != nil {
		t.Fatalf("make move: %v", err)
	}
	if res.State.TurnNumber != 2 {
		t.Fatalf("expected turn 2 after move, got %d", res.State.TurnNumber)
	}

	// Replaying against the old turn number must be rejected before validation.
	if _, err := m.MakeMove(ctx, gameID, s.CurrentPlayerID, jarls.MoveCommand{PieceID: mv.PieceID, To: mv.To}, &turn); !errors.Is(err, ErrStaleMove) {
		t.Fatalf("expected ErrStaleMove, got %v", err)
	}

	rec := waitSnapshot(t, e, gameID, 5)
	var stored jarls.GameState
	if err := json.Unmarshal(rec.State, &stored); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if stored.TurnNumber != 2 {
		t.Fatalf("expected persisted turn 2, got %d", stored.TurnNumber)
	}

	evs := waitEvents(t, e, gameID, 5)
	foundMove := false
	for _, ev := range evs {
		if ev.EventType == string(jarls.EventMove) && ev.TurnNumber == 1 {
			foundMove = true
		}
	}
	if !foundMove {
		t.Fatal("expected a MOVE event for turn 1 in the log")
	}
}

// TestRecoverContinuesGame restarts the manager mid-game and verifies the
// snapshot version chain survives across the restart.
func TestRecoverContinuesGame(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	m1 := newManager(t, e)
	gameID, _, _ := createStarted(t, m1)

	s, _ := m1.Get(ctx, gameID)
	mv := jarls.AllValidMoves(s, s.CurrentPlayerID)[0]
	turn := s.TurnNumber
	if _, err := m1.MakeMove(ctx, gameID, s.CurrentPlayerID, jarls.MoveCommand{PieceID: mv.PieceID, To: mv.To}, &turn); err != nil {
		t.Fatalf("make move: %v", err)
	}
	m1.Close()

	m2 := newManager(t, e)
	if err := m2.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	s2, err := m2.Get(ctx, gameID)
	if err != nil {
		t.Fatalf("get recovered game: %v", err)
	}
	if s2.Phase != jarls.PhasePlaying || s2.TurnNumber != 2 {
		t.Fatalf("expected playing turn 2 after recovery, got %s turn %d", s2.Phase, s2.TurnNumber)
	}

	found := false
	for _, sum := range m2.List(ctx) {
		if sum.GameID == gameID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected recovered game in list")
	}

	// The next commit has to extend the persisted chain, not restart it.
	mv2 := jarls.AllValidMoves(s2, s2.CurrentPlayerID)[0]
	turn2 := s2.TurnNumber
	if _, err := m2.MakeMove(ctx, gameID, s2.CurrentPlayerID, jarls.MoveCommand{PieceID: mv2.PieceID, To: mv2.To}, &turn2); err != nil {
		t.Fatalf("move after recovery: %v", err)
	}
	rec := waitSnapshot(t, e, gameID, 6)
	if rec.Status != "playing" {
		t.Fatalf("expected status playing, got %s", rec.Status)
	}
}

// TestDisconnectGraceLifecycle covers pause on disconnect, the Redis grace
// key, the poll fallback, and resume on reconnect.
func TestDisconnectGraceLifecycle(t *testing.T) {
	e := setupEnv(t)
	m := newManager(t, e)
	ctx := context.Background()

	gameID, _, guestID := createStarted(t, m)

	m.OnDisconnect(gameID, guestID)

	s, _ := m.Get(ctx, gameID)
	if s.Phase != jarls.PhasePaused {
		t.Fatalf("expected paused after disconnect, got %s", s.Phase)
	}
	if !s.IsDisconnected(guestID) {
		t.Fatal("expected guest marked disconnected")
	}

	graceKey := "game:" + gameID + ":grace:" + guestID
	waitKey(t, e.rdb, graceKey, true)

	future := time.Now().Add(GraceWindow + time.Second)
	grace, choice := m.ExpiredTimers(future)
	if len(choice) != 0 {
		t.Fatalf("expected no choice timers, got %v", choice)
	}
	found := false
	for _, pair := range grace {
		if pair[0] == gameID && pair[1] == guestID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected grace deadline for %s/%s, got %v", gameID, guestID, grace)
	}

	m.OnReconnect(gameID, guestID)

	s, _ = m.Get(ctx, gameID)
	if s.Phase != jarls.PhasePlaying {
		t.Fatalf("expected playing after reconnect, got %s", s.Phase)
	}
	waitKey(t, e.rdb, graceKey, false)
	if grace, _ := m.ExpiredTimers(future); len(grace) != 0 {
		t.Fatalf("expected no grace deadlines after reconnect, got %v", grace)
	}
}

// TestGraceExpiryForfeitsAndEndsGame lets the grace window lapse in a
// two-player game; the remaining player wins by last standing.
func TestGraceExpiryForfeitsAndEndsGame(t *testing.T) {
	e := setupEnv(t)
	m := newManager(t, e)
	ctx := context.Background()

	gameID, hostID, guestID := createStarted(t, m)

	m.OnDisconnect(gameID, guestID)
	m.OnGraceExpired(gameID, guestID)

	s, _ := m.Get(ctx, gameID)
	if s.Phase != jarls.PhaseEnded {
		t.Fatalf("expected ended after forfeit, got %s", s.Phase)
	}
	if s.WinnerID != hostID {
		t.Fatalf("expected winner %s, got %s", hostID, s.WinnerID)
	}
	if s.WinCondition != jarls.WinLastStanding {
		t.Fatalf("expected last standing win, got %s", s.WinCondition)
	}

	// start=4, pause=5, forfeit=6
	rec := waitSnapshot(t, e, gameID, 6)
	if rec.Status != "ended" {
		t.Fatalf("expected status ended, got %s", rec.Status)
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalGames != 1 || stats.GamesEnded != 1 || stats.GamesInProgress != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// The forfeit commit appends PLAYER_FORFEITED, the jarl's ELIMINATED,
	// and GAME_ENDED after the five lifecycle rows.
	evs := waitEvents(t, e, gameID, 8)
	types := make(map[string]bool)
	for _, ev := range evs {
		types[ev.EventType] = true
	}
	for _, want := range []string{"PLAYER_DISCONNECTED", "PLAYER_FORFEITED", string(jarls.EventGameEnded)} {
		if !types[want] {
			t.Fatalf("expected %s in event log, have %v", want, types)
		}
	}
}

// TestRecoverRearmsGraceForPausedGame restarts on top of a paused snapshot
// and verifies the grace window is armed again.
func TestRecoverRearmsGraceForPausedGame(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	m1 := newManager(t, e)
	gameID, hostID, guestID := createStarted(t, m1)
	m1.OnDisconnect(gameID, guestID)
	if rec := waitSnapshot(t, e, gameID, 5); rec.Status != "paused" {
		t.Fatalf("expected status paused, got %s", rec.Status)
	}
	m1.Close()

	m2 := newManager(t, e)
	if err := m2.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	s, err := m2.Get(ctx, gameID)
	if err != nil {
		t.Fatalf("get recovered game: %v", err)
	}
	if s.Phase != jarls.PhasePaused {
		t.Fatalf("expected paused after recovery, got %s", s.Phase)
	}

	grace, _ := m2.ExpiredTimers(time.Now().Add(GraceWindow + time.Second))
	found := false
	for _, pair := range grace {
		if pair[0] == gameID && pair[1] == guestID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected re-armed grace deadline, got %v", grace)
	}

	m2.OnGraceExpired(gameID, guestID)
	s, _ = m2.Get(ctx, gameID)
	if s.Phase != jarls.PhaseEnded || s.WinnerID != hostID {
		t.Fatalf("expected host win after expiry, got phase=%s winner=%s", s.Phase, s.WinnerID)
	}
}

// TestConcurrentJoinsRespectCapacity races more joiners than seats.
func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	e := setupEnv(t)
	m := newManager(t, e)
	ctx := context.Background()

	gameID, err := m.Create(ctx, jarls.Config{PlayerCount: 4})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	var mu sync.Mutex
	joined, full := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := m.Join(ctx, gameID, "Racer")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, jarls.ErrGameFull):
				full++
			default:
				t.Errorf("unexpected join error: %v", err)
			}
		}()
	}
	wg.Wait()

	if joined != 4 || full != 4 {
		t.Fatalf("expected 4 joins and 4 rejections, got %d/%d", joined, full)
	}
	s, _ := m.Get(ctx, gameID)
	if len(s.Players) != 4 {
		t.Fatalf("expected 4 seated players, got %d", len(s.Players))
	}

	// create=1 plus one commit per successful join
	if rec := waitSnapshot(t, e, gameID, 5); rec.Status != "lobby" {
		t.Fatalf("expected status lobby, got %s", rec.Status)
	}
}
