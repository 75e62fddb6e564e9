package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jarlsgame/jarls/server/internal/model"
	"github.com/jarlsgame/jarls/server/internal/repository"
)

// mockGameRepo is an in-memory GameRepository. The persist queue writes
// from background goroutines, so everything is mutex-guarded.
type mockGameRepo struct {
	mu        sync.Mutex
	snapshots map[string]*model.GameRecord
	versions  map[string][]int
	events    map[string][]model.EventRecord

	// conflictOn triggers ErrVersionConflict for that version; saveErr
	// fails every snapshot write.
	conflictOn int
	saveErr    error
}

func newMockGameRepo() *mockGameRepo {
	return &mockGameRepo{
		snapshots: make(map[string]*model.GameRecord),
		versions:  make(map[string][]int),
		events:    make(map[string][]model.EventRecord),
	}
}

func (m *mockGameRepo) SaveSnapshot(_ context.Context, gameID string, state json.RawMessage, version int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictOn != 0 && version == m.conflictOn {
		return repository.ErrVersionConflict
	}
	if m.saveErr != nil {
		return m.saveErr
	}

	now := time.Now()
	rec, ok := m.snapshots[gameID]
	if !ok {
		rec = &model.GameRecord{GameID: gameID, CreatedAt: now}
		m.snapshots[gameID] = rec
	}
	rec.State = append(json.RawMessage(nil), state...)
	rec.Version = version
	rec.Status = status
	rec.UpdatedAt = now
	m.versions[gameID] = append(m.versions[gameID], version)
	return nil
}

func (m *mockGameRepo) LoadSnapshot(_ context.Context, gameID string) (*model.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.snapshots[gameID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	cp.State = append(json.RawMessage(nil), rec.State...)
	return &cp, nil
}

func (m *mockGameRepo) LoadActiveSnapshots(_ context.Context) ([]model.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GameRecord
	for _, rec := range m.snapshots {
		if rec.Status == "ended" {
			continue
		}
		cp := *rec
		cp.State = append(json.RawMessage(nil), rec.State...)
		out = append(out, cp)
	}
	return out, nil
}

func (m *mockGameRepo) SaveEvent(_ context.Context, gameID string, turnNumber int, eventType string, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[gameID] = append(m.events[gameID], model.EventRecord{
		ID:         int64(len(m.events[gameID]) + 1),
		GameID:     gameID,
		TurnNumber: turnNumber,
		EventType:  eventType,
		EventData:  append(json.RawMessage(nil), data...),
		CreatedAt:  time.Now(),
	})
	return nil
}

func (m *mockGameRepo) ListEvents(_ context.Context, gameID string) ([]model.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.EventRecord(nil), m.events[gameID]...), nil
}

func (m *mockGameRepo) Stats(_ context.Context) (*model.GameStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &model.GameStats{}
	for _, rec := range m.snapshots {
		stats.TotalGames++
		switch rec.Status {
		case "lobby":
			stats.OpenLobbies++
		case "ended":
			stats.GamesEnded++
		default:
			stats.GamesInProgress++
		}
	}
	return stats, nil
}

func (m *mockGameRepo) savedVersions(gameID string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.versions[gameID]...)
}

func (m *mockGameRepo) latestVersion(gameID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.snapshots[gameID]; ok {
		return rec.Version
	}
	return 0
}

func (m *mockGameRepo) eventTypes(gameID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events[gameID] {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *mockGameRepo) seed(rec model.GameRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := rec
	cp.State = append(json.RawMessage(nil), rec.State...)
	m.snapshots[rec.GameID] = &cp
}

// mockTimerStore records armed timers without any real TTL behavior.
type mockTimerStore struct {
	mu     sync.Mutex
	grace  map[string]time.Duration
	choice map[string]time.Duration
}

func newMockTimerStore() *mockTimerStore {
	return &mockTimerStore{
		grace:  make(map[string]time.Duration),
		choice: make(map[string]time.Duration),
	}
}

func graceID(gameID, playerID string) string {
	return fmt.Sprintf("%s/%s", gameID, playerID)
}

func (m *mockTimerStore) ArmGrace(_ context.Context, gameID, playerID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grace[graceID(gameID, playerID)] = ttl
	return nil
}

func (m *mockTimerStore) CancelGrace(_ context.Context, gameID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grace, graceID(gameID, playerID))
	return nil
}

func (m *mockTimerStore) ArmChoice(_ context.Context, gameID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.choice[gameID] = ttl
	return nil
}

func (m *mockTimerStore) CancelChoice(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.choice, gameID)
	return nil
}

func (m *mockTimerStore) graceArmed(gameID, playerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.grace[graceID(gameID, playerID)]
	return ok
}

func (m *mockTimerStore) choiceArmed(gameID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.choice[gameID]
	return ok
}

// recordingBroadcaster captures every fan-out in order.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

type broadcastEvent struct {
	gameID    string
	eventType string
	data      any
}

func (b *recordingBroadcaster) BroadcastGameEvent(gameID string, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{gameID: gameID, eventType: eventType, data: data})
}

func (b *recordingBroadcaster) types(gameID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, ev := range b.events {
		if ev.gameID == gameID {
			out = append(out, ev.eventType)
		}
	}
	return out
}

func (b *recordingBroadcaster) count(gameID, eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.gameID == gameID && ev.eventType == eventType {
			n++
		}
	}
	return n
}
