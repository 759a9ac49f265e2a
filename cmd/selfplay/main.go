package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"example/portfolio-api/app"
	"example/portfolio-api/app/config"
	"example/portfolio-api/app/games"
	"example/portfolio-api/app/logging"
	"example/portfolio-api/app/models"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		numGames   = flag.Int("games", 10, "number of games to play")
		workers    = flag.Int("workers", 0, "parallel games (default: WORKERS or number of CPUs)")
		maxPlies   = flag.Int("max-plies", app.DefaultSelfPlayMaxPlies, "stop a game after this many plies")
		difficulty = flag.Int("difficulty", 0, "bot difficulty 1-20 (default: ENGINE_DEPTH)")
		enginePath = flag.String("engine", "", "engine binary, or \"builtin\" (default: ENGINE_PATH)")
	)
	flag.Parse()

	start := time.Now()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *enginePath != "" {
		cfg.Engine.Path = *enginePath
	}
	logger := logging.New(cfg.Logs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := app.RunSelfPlay(ctx, games.PerGameFactory(cfg.Engine, logger), app.SelfPlayOptions{
		Games:      *numGames,
		Workers:    *workers,
		MaxPlies:   *maxPlies,
		Difficulty: *difficulty,
	}, logger)
	if err != nil && len(results) == 0 {
		logger.Fatal().Err(err).Msg("selfplay failed")
	}

	for _, g := range results {
		printGame(g)
	}
	printSummary(app.SummarizeSelfPlay(results), time.Since(start))
}

func printGame(g models.SelfPlayGame) {
	result := color.New(color.FgYellow).SprintFunc()
	switch g.Result {
	case games.ResultWhiteWins:
		result = color.New(color.FgWhite, color.Bold).SprintFunc()
	case games.ResultBlackWins:
		result = color.New(color.FgHiBlack, color.Bold).SprintFunc()
	case games.ResultDraw:
		result = color.New(color.FgCyan).SprintFunc()
	}
	fmt.Printf("#%-3d %-11s %-12s plies=%-4d engine=%-4d fallback=%-4d %s\n",
		g.Index, result(g.Result), g.Reason, g.Plies, g.EngineMoves, g.FallbackMoves, g.Took.Round(time.Millisecond))
}

func printSummary(s app.SelfPlaySummary, took time.Duration) {
	bold := color.New(color.Bold)
	fmt.Println()
	bold.Println("Summary")
	fmt.Printf("  white %d  black %d  draws %d  unfinished %d\n", s.WhiteWins, s.BlackWins, s.Draws, s.Unfinished)
	fmt.Printf("  avg plies %.1f\n", s.AvgPlies)

	total := s.EngineMoves + s.FallbackMoves
	fallback := color.New(color.FgGreen)
	if total > 0 && s.FallbackMoves*2 > total {
		fallback = color.New(color.FgRed)
	}
	fmt.Printf("  engine moves %d  ", s.EngineMoves)
	fallback.Printf("fallback moves %d\n", s.FallbackMoves)
	fmt.Printf("  took %s\n", took.Round(time.Millisecond))
}
