// Command botmatch plays engine-direct arena games between bot strategies,
// without a running server. Games persist to Postgres unless --dry-run, so
// finished matches are reviewable like any server game.
//
// Usage:
//
//	go run ./cmd/botmatch/ --seats greedy,random -n 20 --dry-run
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jarlsgame/jarls/server/internal/bot"
	"github.com/jarlsgame/jarls/server/internal/repository"
	"github.com/jarlsgame/jarls/server/internal/repository/postgres"
	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		seatCfg   string
		numGames  int
		workers   int
		dbURL     string
		radius    int
		terrain   string
		turnLimit int
		seed      int64
		dryRun    bool
		jsonOut   bool
	)

	flag.StringVar(&seatCfg, "seats", "greedy,random", "Comma-separated strategy per seat (random, easy, greedy, medium, hard, llm)")
	flag.IntVar(&numGames, "n", 1, "Number of games to run")
	flag.IntVar(&workers, "workers", 1, "Concurrency (parallel games)")
	flag.StringVar(&dbURL, "db", "", "Database URL (or use DATABASE_URL env)")
	flag.IntVar(&radius, "radius", 0, "Board radius (0 = default)")
	flag.StringVar(&terrain, "terrain", "", "Terrain (calm, treacherous, chaotic; empty = default)")
	flag.IntVar(&turnLimit, "turn-limit", 1000, "Stop games past this turn (0 = default)")
	flag.Int64Var(&seed, "seed", 0, "Base engine seed (0 = random per game)")
	flag.BoolVar(&dryRun, "dry-run", false, "Skip database writes")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")

	flag.Parse()

	seats := strings.Split(seatCfg, ",")
	for i := range seats {
		seats[i] = strings.TrimSpace(seats[i])
	}
	if len(seats) < 2 {
		log.Fatal().Str("seats", seatCfg).Msg("Need at least 2 seats")
	}

	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" && !dryRun {
		log.Fatal().Msg("--db or DATABASE_URL is required (or pass --dry-run)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	var repo repository.GameRepository
	if !dryRun {
		db, err := postgres.Connect(dbURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Database connection failed")
		}
		defer db.Close()
		repo = postgres.NewGameRepo(db)
	}

	// Run games. Strategies draw from the process-wide random source, which
	// is safe across workers; the seed flag fixes only the engine setup.
	results := make([]*bot.ArenaResult, numGames)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	errCount := 0

	for i := 0; i < numGames; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			gameSeed := seed
			if seed != 0 {
				gameSeed = seed + int64(idx)
			}

			cfg := bot.ArenaConfig{
				Seats:       seats,
				BoardRadius: radius,
				Terrain:     jarls.Terrain(terrain),
				TurnLimit:   turnLimit,
				Seed:        gameSeed,
				DryRun:      dryRun,
			}

			result, err := bot.RunGame(ctx, cfg, repo)
			if err != nil {
				log.Error().Err(err).Int("game", idx+1).Msg("Game failed")
				mu.Lock()
				errCount++
				mu.Unlock()
				return
			}

			mu.Lock()
			results[idx] = result
			mu.Unlock()

			log.Info().Int("game", idx+1).Str("gameId", result.GameID).
				Str("winner", result.WinnerName).Int("turns", result.Turns).Msg("Game completed")
		}(i)
	}

	wg.Wait()

	if jsonOut {
		printJSON(results, numGames, errCount)
	} else {
		printSummary(results, seats, errCount, dryRun)
	}
}

func printSummary(results []*bot.ArenaResult, seats []string, errCount int, dryRun bool) {
	type stats struct {
		wins   int
		pieces int
		games  int
	}

	bySeat := make([]*stats, len(seats))
	for i := range bySeat {
		bySeat[i] = &stats{}
	}

	completed := 0
	limits := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		completed++
		if r.LimitHit {
			limits++
		}
		for i := range seats {
			id := "bot" + strconv.Itoa(i+1)
			s := bySeat[i]
			s.games++
			s.pieces += r.PieceCounts[id]
			if r.WinnerID == id {
				s.wins++
			}
		}
	}

	fmt.Printf("\nResults (%d games):\n", completed)
	if errCount > 0 {
		fmt.Printf("  (%d games failed)\n", errCount)
	}
	if limits > 0 {
		fmt.Printf("  (%d games hit the turn limit)\n", limits)
	}

	for i, name := range seats {
		s := bySeat[i]
		avgPieces := 0.0
		if s.games > 0 {
			avgPieces = float64(s.pieces) / float64(s.games)
		}
		fmt.Printf("  bot%d (%s):  %d wins / %d games  -- avg pieces left: %.1f\n",
			i+1, name, s.wins, s.games, avgPieces)
	}

	if !dryRun && completed > 0 {
		fmt.Printf("\nGames saved to database -- load any game by its ID\n")
	}
}

func printJSON(results []*bot.ArenaResult, total, errCount int) {
	out := struct {
		Total   int                `json:"total"`
		Errors  int                `json:"errors"`
		Results []*bot.ArenaResult `json:"results"`
	}{
		Total:   total,
		Errors:  errCount,
		Results: results,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
