package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jarlsgame/jarls/server/internal/model"
)

func sessionKey(token string) string { return "session:" + token }

// SessionRepo stores sessions as JSON blobs under session:{token} with a TTL.
type SessionRepo struct {
	rdb *redis.Client
}

// NewSessionRepo creates a SessionRepo on the shared client.
func NewSessionRepo(c *Client) *SessionRepo {
	return &SessionRepo{rdb: c.rdb}
}

// Save stores a session under its token with the given TTL.
func (r *SessionRepo) Save(ctx context.Context, session *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.rdb.Set(ctx, sessionKey(session.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Find returns the session for a token, or nil when missing or expired.
func (r *SessionRepo) Find(ctx context.Context, token string) (*model.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	s.Token = token
	return &s, nil
}

// Touch refreshes a session's TTL.
func (r *SessionRepo) Touch(ctx context.Context, token string, ttl time.Duration) error {
	if err := r.rdb.Expire(ctx, sessionKey(token), ttl).Err(); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Delete removes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
