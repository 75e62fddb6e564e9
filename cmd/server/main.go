package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jarlsgame/jarls/server/internal/auth"
	"github.com/jarlsgame/jarls/server/internal/bot"
	"github.com/jarlsgame/jarls/server/internal/config"
	"github.com/jarlsgame/jarls/server/internal/handler"
	"github.com/jarlsgame/jarls/server/internal/logger"
	"github.com/jarlsgame/jarls/server/internal/middleware"
	"github.com/jarlsgame/jarls/server/internal/repository/postgres"
	redisrepo "github.com/jarlsgame/jarls/server/internal/repository/redis"
	"github.com/jarlsgame/jarls/server/internal/service"
)

func main() {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}
	bot.GonnxModelPath = cfg.AIModelPath
	bot.LLMBaseURL = cfg.LLMAPIURL
	bot.LLMAPIKey = cfg.LLMAPIKey
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.SessionStoreURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable keyspace notifications for timer expiry events. The poll
	// fallback covers deployments where CONFIG SET is rejected.
	if err := redisClient.EnableKeyspaceEvents(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to enable Redis keyspace notifications, relying on deadline polling")
	}

	// Repos
	gameRepo := postgres.NewGameRepo(db)
	sessionRepo := redisrepo.NewSessionRepo(redisClient)
	timerRepo := redisrepo.NewTimerRepo(redisClient)

	// Sessions
	sessions := auth.NewSessionManager(sessionRepo)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Game manager, broadcasting through the hub
	manager := service.NewManager(gameRepo, timerRepo, wsHub)

	// Timer listener (forfeits and starvation auto-resolution on expiry)
	timerListener := service.NewTimerListener(redisClient.Underlying(), manager)

	// Handlers
	gameHandler := handler.NewGameHandler(manager, sessions)
	wsHandler := handler.NewWSHandler(wsHub, sessions, manager)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(sessions)
	protected := func(h http.HandlerFunc) http.Handler { return authMw(h) }

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Public routes: joining a game is how a client first gets a session.
	mux.HandleFunc("POST /api/games", gameHandler.CreateGame)
	mux.HandleFunc("GET /api/games", gameHandler.ListGames)
	mux.HandleFunc("GET /api/games/stats", gameHandler.GetStats)
	mux.HandleFunc("POST /api/games/{id}/join", gameHandler.JoinGame)

	// Session-scoped routes
	mux.Handle("GET /api/games/{id}", protected(gameHandler.GetGame))
	mux.Handle("POST /api/games/{id}/start", protected(gameHandler.StartGame))
	mux.Handle("POST /api/games/{id}/ai", protected(gameHandler.AddAI))
	mux.Handle("GET /api/games/{id}/valid-moves/{pieceId}", protected(gameHandler.ValidMoves))

	// WebSocket (auth in-band via the joinGame frame, not middleware)
	mux.HandleFunc("GET /api/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Rehydrate live games from Postgres snapshots after a restart.
	if err := manager.Recover(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to recover active games")
	}

	// Start timer listener
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// Drain the persist queues so no committed state is lost.
	manager.Close()
	log.Info().Msg("Server stopped")
}
