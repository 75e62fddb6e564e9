package auth

import (
	"context"

	"github.com/jarlsgame/jarls/server/internal/model"
)

// SetSessionForTest injects a session into the context for handler tests.
func SetSessionForTest(ctx context.Context, s *model.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, s)
}
