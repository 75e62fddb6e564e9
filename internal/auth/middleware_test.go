package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) (*SessionManager, string) {
	t.Helper()
	mgr := NewSessionManager(newFakeStore())
	s, err := mgr.Create(context.Background(), "game-7", "player-3", "Astrid")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return mgr, s.Token
}

func TestMiddlewareValidToken(t *testing.T) {
	mgr, token := newTestManager(t)

	var capturedPlayerID, capturedGameID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := SessionFromContext(r.Context())
		if s != nil {
			capturedPlayerID = s.PlayerID
			capturedGameID = s.GameID
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := Middleware(mgr)(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if capturedPlayerID != "player-3" || capturedGameID != "game-7" {
		t.Errorf("context session = %s/%s, want player-3/game-7", capturedPlayerID, capturedGameID)
	}
}

func TestMiddlewareMissingHeader(t *testing.T) {
	mgr, _ := newTestManager(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	handler := Middleware(mgr)(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareBadFormat(t *testing.T) {
	mgr, token := newTestManager(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	handler := Middleware(mgr)(inner)

	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token " + token},
		{"bearer only", "Bearer"},
		{"empty value", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestMiddlewareUnknownToken(t *testing.T) {
	mgr, _ := newTestManager(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	handler := Middleware(mgr)(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+strings.Repeat("ef", 32))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareUnauthorizedShape(t *testing.T) {
	mgr, _ := newTestManager(t)
	handler := Middleware(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"UNAUTHORIZED"`) {
		t.Errorf("body %q should carry the UNAUTHORIZED code", body)
	}
}

func TestMiddlewareCaseInsensitiveBearer(t *testing.T) {
	mgr, token := newTestManager(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := Middleware(mgr)(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for lowercase bearer, got %d", rec.Code)
	}
}

func TestSessionFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if s := SessionFromContext(req.Context()); s != nil {
		t.Errorf("expected nil session from bare context, got %+v", s)
	}
}
