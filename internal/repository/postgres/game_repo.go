package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jarlsgame/jarls/server/internal/model"
	"github.com/jarlsgame/jarls/server/internal/repository"
)

// GameRepo handles game snapshot and event log database operations.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

// SaveSnapshot writes one snapshot row. Version 1 inserts; every later
// version updates only the row still holding version-1, so a writer that
// lost a race gets ErrVersionConflict instead of clobbering newer state.
func (r *GameRepo) SaveSnapshot(ctx context.Context, gameID string, state json.RawMessage, version int, status string) error {
	if version <= 1 {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO game_snapshots (game_id, state_snapshot, version, status)
			 VALUES ($1, $2, $3, $4)`,
			gameID, []byte(state), version, status)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		return nil
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE game_snapshots
		 SET state_snapshot = $2, version = $3, status = $4, updated_at = now()
		 WHERE game_id = $1 AND version = $3 - 1`,
		gameID, []byte(state), version, status)
	if err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	if n == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}

// LoadSnapshot returns the snapshot for a game, or nil when none exists.
func (r *GameRepo) LoadSnapshot(ctx context.Context, gameID string) (*model.GameRecord, error) {
	var rec model.GameRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT game_id, state_snapshot, version, status, created_at, updated_at
		 FROM game_snapshots WHERE game_id = $1`, gameID,
	).Scan(&rec.GameID, &rec.State, &rec.Version, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &rec, nil
}

// LoadActiveSnapshots returns every snapshot that still needs a live game,
// oldest first.
func (r *GameRepo) LoadActiveSnapshots(ctx context.Context) ([]model.GameRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, state_snapshot, version, status, created_at, updated_at
		 FROM game_snapshots
		 WHERE status IN ('lobby', 'playing', 'starvation', 'paused')
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load active snapshots: %w", err)
	}
	defer rows.Close()

	var recs []model.GameRecord
	for rows.Next() {
		var rec model.GameRecord
		if err := rows.Scan(&rec.GameID, &rec.State, &rec.Version, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveEvent appends one event to a game's log.
func (r *GameRepo) SaveEvent(ctx context.Context, gameID string, turnNumber int, eventType string, data json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_events (game_id, turn_number, event_type, event_data)
		 VALUES ($1, $2, $3, $4)`,
		gameID, turnNumber, eventType, []byte(data))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// ListEvents returns a game's event log in append order.
func (r *GameRepo) ListEvents(ctx context.Context, gameID string) ([]model.EventRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id, game_id, turn_number, event_type, event_data, created_at
		 FROM game_events WHERE game_id = $1 ORDER BY event_id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.EventRecord
	for rows.Next() {
		var ev model.EventRecord
		if err := rows.Scan(&ev.ID, &ev.GameID, &ev.TurnNumber, &ev.EventType, &ev.EventData, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Stats returns aggregate game counts for the stats endpoint.
func (r *GameRepo) Stats(ctx context.Context) (*model.GameStats, error) {
	var s model.GameStats
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'lobby'),
		        count(*) FILTER (WHERE status IN ('playing', 'starvation', 'paused')),
		        count(*) FILTER (WHERE status = 'ended')
		 FROM game_snapshots`,
	).Scan(&s.TotalGames, &s.OpenLobbies, &s.GamesInProgress, &s.GamesEnded)
	if err != nil {
		return nil, fmt.Errorf("game stats: %w", err)
	}
	return &s, nil
}
