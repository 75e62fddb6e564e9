// Command bot claims one open seat in an existing game and plays it with the
// chosen strategy. Useful for filling a lobby from the terminal; the host
// starts the game whenever ready.
//
// Usage:
//
//	go run ./cmd/bot/ --game <id> --strategy greedy
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jarlsgame/jarls/server/internal/bot"
)

func main() {
	url := flag.String("url", "http://localhost:3000", "server base URL")
	gameID := flag.String("game", "", "game ID to join (required)")
	name := flag.String("name", "Bot", "player name for the seat")
	strategyName := flag.String("strategy", "greedy", "bot strategy (random, easy, greedy, medium, hard, llm)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *gameID == "" {
		log.Fatal().Msg("--game is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	runner := bot.NewSeatRunner(*url, *gameID, *name, bot.StrategyByName(*strategyName))
	if _, err := runner.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Bot seat failed")
	}
}
