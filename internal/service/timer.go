package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisrepo "github.com/jarlsgame/jarls/server/internal/repository/redis"
)

// TimerListener listens for Redis keyspace notifications on expired timer
// keys and dispatches grace and starvation-choice expiries to the manager.
// Also runs a polling fallback over the manager's in-memory deadlines to
// catch expirations if keyspace notifications are unavailable.
type TimerListener struct {
	rdb     *redis.Client
	manager *Manager
}

// NewTimerListener creates a TimerListener.
func NewTimerListener(rdb *redis.Client, manager *Manager) *TimerListener {
	return &TimerListener{rdb: rdb, manager: manager}
}

// Start begins listening for expired key events and runs a polling fallback.
func (t *TimerListener) Start(ctx context.Context) {
	go t.listenKeyspace(ctx)
	t.pollDeadlines(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(msg.Payload)
		}
	}
}

// pollDeadlines periodically re-checks the in-memory timer deadlines. The
// expiry handlers tolerate double fires, so overlap with the keyspace path
// is harmless.
func (t *TimerListener) pollDeadlines(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log.Info().Msg("Timer deadline poller started (10s interval)")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Timer deadline poller stopped")
			return
		case <-ticker.C:
			t.checkDeadlines()
		}
	}
}

// checkDeadlines fires the handlers for every deadline now in the past.
func (t *TimerListener) checkDeadlines() {
	grace, choice := t.manager.ExpiredTimers(time.Now())
	if len(grace)+len(choice) > 0 {
		log.Info().Int("grace", len(grace)).Int("choice", len(choice)).
			Msg("Poller found expired timers")
	}
	for _, gp := range grace {
		t.manager.OnGraceExpired(gp[0], gp[1])
	}
	for _, gameID := range choice {
		t.manager.OnChoiceExpired(gameID)
	}
}

// handleExpiry processes an expired key. Only acts on game timer keys;
// session keys sharing the database are ignored.
func (t *TimerListener) handleExpiry(key string) {
	kind, gameID, playerID, ok := redisrepo.ParseTimerKey(key)
	if !ok {
		return
	}

	switch kind {
	case redisrepo.TimerGrace:
		log.Info().Str("gameId", gameID).Str("playerId", playerID).
			Msg("Grace timer expired")
		t.manager.OnGraceExpired(gameID, playerID)
	case redisrepo.TimerChoice:
		log.Info().Str("gameId", gameID).Msg("Starvation choice timer expired")
		t.manager.OnChoiceExpired(gameID)
	}
}
