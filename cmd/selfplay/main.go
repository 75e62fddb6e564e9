package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jarlsgame/jarls/server/internal/bot"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		url       string
		seatCfg   string
		numGames  int
		workers   int
		radius    int
		terrain   string
		turnLimit int
		jsonOut   bool
		debug     bool
	)

	flag.StringVar(&url, "url", "http://localhost:3000", "Server base URL")
	flag.StringVar(&seatCfg, "seats", "greedy,greedy", "Comma-separated strategy per seat (easy, greedy, hard, llm)")
	flag.IntVar(&numGames, "n", 1, "Number of games to run")
	flag.IntVar(&workers, "workers", 1, "Concurrency (parallel games)")
	flag.IntVar(&radius, "radius", 0, "Board radius (0 = server default)")
	flag.StringVar(&terrain, "terrain", "", "Terrain (calm, treacherous, chaotic; empty = server default)")
	flag.IntVar(&turnLimit, "turn-limit", 500, "Abandon games past this turn (0 = unlimited)")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")

	flag.Parse()

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	names := strings.Split(seatCfg, ",")
	if len(names) < 2 {
		log.Fatal().Str("seats", seatCfg).Msg("Need at least 2 seats")
	}
	strategies := make([]bot.Strategy, len(names))
	for i, name := range names {
		strategies[i] = bot.StrategyByName(strings.TrimSpace(name))
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

	// Run games
	results := make([]*bot.MatchResult, numGames)
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

			orch := bot.NewOrchestrator(url, strategies, radius, terrain, turnLimit)
			result, err := orch.Run(ctx)
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
		}(i)
	}

	wg.Wait()

	if jsonOut {
		printJSON(results, numGames, errCount)
	} else {
		printSummary(results, names, errCount)
	}
}

func printSummary(results []*bot.MatchResult, seatNames []string, errCount int) {
	type stats struct {
		wins  int
		games int
		turns int
	}
	bySeat := make(map[string]*stats)
	for i := range seatNames {
		bySeat[fmt.Sprintf("Bot%d", i+1)] = &stats{}
	}

	completed := 0
	unfinished := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		completed++
		if r.WinnerID == "" {
			unfinished++
		}
		for seatName := range r.Strategies {
			s, ok := bySeat[seatName]
			if !ok {
				s = &stats{}
				bySeat[seatName] = s
			}
			s.games++
			s.turns += r.Turns
			if r.WinnerName == seatName {
				s.wins++
			}
		}
	}

	fmt.Printf("\nResults (%d games):\n", completed)
	if errCount > 0 {
		fmt.Printf("  (%d games failed)\n", errCount)
	}
	if unfinished > 0 {
		fmt.Printf("  (%d games hit the turn limit)\n", unfinished)
	}

	seats := make([]string, 0, len(bySeat))
	for name := range bySeat {
		seats = append(seats, name)
	}
	sort.Strings(seats)
	for i, seatName := range seats {
		s := bySeat[seatName]
		strat := ""
		if i < len(seatNames) {
			strat = strings.TrimSpace(seatNames[i])
		}
		avgTurns := 0.0
		if s.games > 0 {
			avgTurns = float64(s.turns) / float64(s.games)
		}
		fmt.Printf("  %-6s (%s):  %d wins / %d games  -- avg game length: %.0f turns\n",
			seatName, strat, s.wins, s.games, avgTurns)
	}
}

func printJSON(results []*bot.MatchResult, total, errCount int) {
	out := struct {
		Total   int                `json:"total"`
		Errors  int                `json:"errors"`
		Results []*bot.MatchResult `json:"results"`
	}{
		Total:   total,
		Errors:  errCount,
		Results: results,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
