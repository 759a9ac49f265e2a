package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example/portfolio-api/app/board"
	"example/portfolio-api/app/bot"
	"example/portfolio-api/app/games"
	"example/portfolio-api/app/models"

	"github.com/rs/zerolog"
)

const (
	DefaultSelfPlayMaxPlies = 200
	ResultUnfinished        = "unfinished"
)

type SelfPlayOptions struct {
	Games      int
	Workers    int // 0 means GetWorkerCount()
	MaxPlies   int
	Difficulty int
}

// RunSelfPlay plays opts.Games bot-vs-bot games across a worker pool. Each
// worker takes its own mover from factory and releases it when done.
// Results come back ordered by game index.
func RunSelfPlay(ctx context.Context, factory games.Factory, opts SelfPlayOptions, log zerolog.Logger) ([]models.SelfPlayGame, error) {
	if opts.Games <= 0 {
		return nil, fmt.Errorf("selfplay: games must be positive, got %d", opts.Games)
	}
	if opts.MaxPlies <= 0 {
		opts.MaxPlies = DefaultSelfPlayMaxPlies
	}
	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = GetWorkerCount()
	}
	numWorkers = min(numWorkers, opts.Games)

	start := time.Now()
	log.Info().Int("games", opts.Games).Int("workers", numWorkers).Int("max_plies", opts.MaxPlies).Msg("selfplay started")

	jobs := make(chan int, opts.Games)
	results := make(chan models.SelfPlayGame, opts.Games)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			mover, release := factory()
			defer release()
			wlog := log.With().Int("worker", id).Logger()

			for idx := range jobs {
				if ctx.Err() != nil {
					return
				}
				g := playSelfGame(ctx, mover, idx, opts)
				wlog.Debug().Int("game", idx).Str("result", g.Result).Str("reason", g.Reason).Int("plies", g.Plies).Msg("game finished")
				results <- g
			}
		}(i)
	}

	// Feed jobs
	go func() {
		defer close(jobs)
		for idx := 1; idx <= opts.Games; idx++ {
			jobs <- idx
		}
	}()

	// Close results once ALL workers are done
	go func() {
		wg.Wait()
		close(results)
	}()

	var all []models.SelfPlayGame
	for res := range results {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })

	log.Info().Int("played", len(all)).Dur("took", time.Since(start)).Msg("selfplay complete")
	if err := ctx.Err(); err != nil {
		return all, err
	}
	return all, nil
}

func playSelfGame(ctx context.Context, mover games.Mover, idx int, opts SelfPlayOptions) (g models.SelfPlayGame) {
	start := time.Now()
	g = models.SelfPlayGame{Index: idx, Result: ResultUnfinished, Reason: "max plies"}
	pos := board.StartPosition
	seen := map[string]int{NormalizeFEN(string(pos)): 1}

	defer func() {
		g.FinalFEN = string(pos)
		g.Took = time.Since(start)
	}()

	for ply := 0; ply < opts.MaxPlies; ply++ {
		if ctx.Err() != nil {
			g.Reason = "cancelled"
			return g
		}
		res, err := mover.RequestMove(ctx, pos, opts.Difficulty, ply)
		if err != nil {
			g.Reason = err.Error()
			return g
		}
		if res.Source == bot.SourceEngine {
			g.EngineMoves++
		} else {
			g.FallbackMoves++
		}

		st, err := board.Parse(pos)
		if err != nil {
			g.Reason = err.Error()
			return g
		}
		next, err := st.Next(res.Move)
		if err != nil {
			g.Reason = err.Error()
			return g
		}
		pos = next.Position()
		g.Plies = ply + 1

		key := NormalizeFEN(string(pos))
		seen[key]++
		switch {
		case next.IsCheckmate():
			// whoever just moved wins
			g.Result, g.Reason = games.ResultWhiteWins, "checkmate"
			if IsEven(g.Plies) {
				g.Result = games.ResultBlackWins
			}
			return g
		case next.IsStalemate():
			g.Result, g.Reason = games.ResultDraw, "stalemate"
			return g
		case next.IsDraw():
			g.Result, g.Reason = games.ResultDraw, "draw"
			return g
		case seen[key] >= 3:
			g.Result, g.Reason = games.ResultDraw, "repetition"
			return g
		}
	}
	return g
}

// SelfPlaySummary aggregates a run.
type SelfPlaySummary struct {
	WhiteWins     int
	BlackWins     int
	Draws         int
	Unfinished    int
	EngineMoves   int
	FallbackMoves int
	AvgPlies      float64
}

func SummarizeSelfPlay(results []models.SelfPlayGame) SelfPlaySummary {
	var s SelfPlaySummary
	plies := 0
	for _, g := range results {
		switch g.Result {
		case games.ResultWhiteWins:
			s.WhiteWins++
		case games.ResultBlackWins:
			s.BlackWins++
		case games.ResultDraw:
			s.Draws++
		default:
			s.Unfinished++
		}
		s.EngineMoves += g.EngineMoves
		s.FallbackMoves += g.FallbackMoves
		plies += g.Plies
	}
	if len(results) > 0 {
		s.AvgPlies = float64(plies) / float64(len(results))
	}
	return s
}
