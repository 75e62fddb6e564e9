package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jarlsgame/jarls/server/internal/model"
)

// ErrVersionConflict means a snapshot write lost the optimistic version check:
// the row's stored version was not exactly one below the version being written.
var ErrVersionConflict = errors.New("snapshot version conflict")

// GameRepository persists game snapshots and the append-only event log.
type GameRepository interface {
	// SaveSnapshot writes a snapshot at the given version. Version 1 inserts;
	// later versions update only when the stored version is version-1, and
	// return ErrVersionConflict otherwise.
	SaveSnapshot(ctx context.Context, gameID string, state json.RawMessage, version int, status string) error
	LoadSnapshot(ctx context.Context, gameID string) (*model.GameRecord, error)
	// LoadActiveSnapshots returns every snapshot whose status is not ended,
	// for rehydration at startup.
	LoadActiveSnapshots(ctx context.Context) ([]model.GameRecord, error)
	SaveEvent(ctx context.Context, gameID string, turnNumber int, eventType string, data json.RawMessage) error
	ListEvents(ctx context.Context, gameID string) ([]model.EventRecord, error)
	Stats(ctx context.Context) (*model.GameStats, error)
}

// SessionStore persists player sessions keyed by opaque token.
// Find returns (nil, nil) for a missing or expired token.
type SessionStore interface {
	Save(ctx context.Context, session *model.Session, ttl time.Duration) error
	Find(ctx context.Context, token string) (*model.Session, error)
	Touch(ctx context.Context, token string, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

// TimerStore arms expiring keys that drive disconnect-grace and
// starvation-choice deadlines via keyspace expiry notifications.
type TimerStore interface {
	ArmGrace(ctx context.Context, gameID, playerID string, ttl time.Duration) error
	CancelGrace(ctx context.Context, gameID, playerID string) error
	ArmChoice(ctx context.Context, gameID string, ttl time.Duration) error
	CancelChoice(ctx context.Context, gameID string) error
}
