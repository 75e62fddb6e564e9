package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/jarlsgame/jarls/server/internal/model"
)

type contextKey string

const sessionCtxKey contextKey = "session"

// unauthorizedBody is the single response for every auth failure.
const unauthorizedBody = `{"error":"UNAUTHORIZED","message":"missing or invalid session token"}`

// Middleware returns an HTTP middleware that validates Bearer session tokens.
// The resolved session is stored in the request context; every failure mode
// gets the same 401 so the response leaks nothing about why.
func Middleware(sessions *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w)
				return
			}

			s, err := sessions.Validate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), sessionCtxKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an Authorization header (Bearer scheme).
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(unauthorizedBody))
}

// SessionFromContext extracts the authenticated session from the request
// context, or nil when the request did not pass the middleware.
func SessionFromContext(ctx context.Context) *model.Session {
	s, _ := ctx.Value(sessionCtxKey).(*model.Session)
	return s
}
