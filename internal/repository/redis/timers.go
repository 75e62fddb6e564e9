package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Timer kinds reported by ParseTimerKey.
const (
	TimerGrace  = "grace"
	TimerChoice = "choice"
)

func graceKey(gameID, playerID string) string { return "game:" + gameID + ":grace:" + playerID }
func choiceKey(gameID string) string          { return "game:" + gameID + ":choice" }

// TimerRepo arms expiring keys whose expiry notifications drive
// disconnect-grace forfeits and starvation-choice auto-resolution.
type TimerRepo struct {
	rdb *redis.Client
}

// NewTimerRepo creates a TimerRepo on the shared client.
func NewTimerRepo(c *Client) *TimerRepo {
	return &TimerRepo{rdb: c.rdb}
}

// ArmGrace starts the reconnect grace window for a disconnected player.
// The value records the deadline for debugging; expiry does the work.
func (r *TimerRepo) ArmGrace(ctx context.Context, gameID, playerID string, ttl time.Duration) error {
	deadline := time.Now().Add(ttl).Unix()
	if err := r.rdb.Set(ctx, graceKey(gameID, playerID), deadline, ttl).Err(); err != nil {
		return fmt.Errorf("arm grace timer: %w", err)
	}
	return nil
}

// CancelGrace clears a player's grace window, normally on reconnect.
func (r *TimerRepo) CancelGrace(ctx context.Context, gameID, playerID string) error {
	if err := r.rdb.Del(ctx, graceKey(gameID, playerID)).Err(); err != nil {
		return fmt.Errorf("cancel grace timer: %w", err)
	}
	return nil
}

// ArmChoice starts the starvation-choice deadline for a game.
func (r *TimerRepo) ArmChoice(ctx context.Context, gameID string, ttl time.Duration) error {
	deadline := time.Now().Add(ttl).Unix()
	if err := r.rdb.Set(ctx, choiceKey(gameID), deadline, ttl).Err(); err != nil {
		return fmt.Errorf("arm choice timer: %w", err)
	}
	return nil
}

// CancelChoice clears a game's starvation-choice deadline.
func (r *TimerRepo) CancelChoice(ctx context.Context, gameID string) error {
	if err := r.rdb.Del(ctx, choiceKey(gameID)).Err(); err != nil {
		return fmt.Errorf("cancel choice timer: %w", err)
	}
	return nil
}

// ParseTimerKey classifies an expired key from the keyspace notification
// channel. ok is false for keys this package did not write, including the
// session keys that share the database.
func ParseTimerKey(key string) (kind, gameID, playerID string, ok bool) {
	parts := strings.Split(key, ":")
	switch {
	case len(parts) == 4 && parts[0] == "game" && parts[2] == TimerGrace:
		return TimerGrace, parts[1], parts[3], true
	case len(parts) == 3 && parts[0] == "game" && parts[2] == TimerChoice:
		return TimerChoice, parts[1], "", true
	}
	return "", "", "", false
}
