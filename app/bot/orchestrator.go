// Package bot resolves "what does the bot play here" requests: ask the
// engine first, fall back to the heuristic selector when the engine is not
// ready, fails or answers with something unusable.
package bot

import (
	"context"
	"errors"
	"fmt"

	"example/portfolio-api/app/board"
	"example/portfolio-api/app/config"
	"example/portfolio-api/app/heuristic"
	"example/portfolio-api/app/models"

	"github.com/rs/zerolog"
)

const (
	MinDifficulty     = 1
	MaxDifficulty     = 20
	DefaultDifficulty = 5
)

// ErrGameOverOrNoMove means a move was requested for a position with no
// legal moves; callers should have detected the end of the game first.
var ErrGameOverOrNoMove = errors.New("game over or no legal move")

type Source string

const (
	SourceEngine    Source = "engine"
	SourceHeuristic Source = "heuristic"
)

type Result struct {
	Move   board.Move
	Source Source
}

// Engine is the part of engine.Session the orchestrator needs.
type Engine interface {
	Ready() bool
	BestMove(ctx context.Context, fen string, settings models.EngineSettings) (string, error)
	Close() error
}

type Orchestrator struct {
	engine   Engine
	selector *heuristic.Selector
	cfg      config.EngineConfig
	log      zerolog.Logger
}

type Option func(*Orchestrator)

func WithSelector(s *heuristic.Selector) Option {
	return func(o *Orchestrator) { o.selector = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func New(eng Engine, cfg config.EngineConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:   eng,
		selector: heuristic.New(),
		cfg:      cfg,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RequestMove always settles: with the engine's move, with a heuristic move,
// or with ErrGameOverOrNoMove. Engine failures never reach the caller.
// ply < 0 means "derive it from the position".
func (o *Orchestrator) RequestMove(ctx context.Context, pos board.Position, difficulty, ply int) (Result, error) {
	st, err := board.Parse(pos)
	if err != nil {
		return Result{}, err
	}
	if ply < 0 {
		ply = st.PlyCount()
	}
	log := o.log.With().Str("fen", string(pos)).Int("ply", ply).Logger()

	if o.engine != nil && o.engine.Ready() {
		m, err := o.fromEngine(ctx, st, difficulty)
		if err == nil {
			return Result{Move: m, Source: SourceEngine}, nil
		}
		log.Warn().Err(err).Msg("engine move failed, using heuristic")
	} else {
		log.Debug().Msg("engine not ready, using heuristic")
	}

	m, tier, err := o.selector.Choose(pos, ply)
	if err != nil {
		if errors.Is(err, heuristic.ErrNoLegalMove) {
			return Result{}, fmt.Errorf("%w: %w", ErrGameOverOrNoMove, err)
		}
		return Result{}, err
	}
	log.Debug().Str("move", m.String()).Stringer("tier", tier).Msg("heuristic move")
	return Result{Move: m, Source: SourceHeuristic}, nil
}

func (o *Orchestrator) fromEngine(ctx context.Context, st *board.State, difficulty int) (board.Move, error) {
	token, err := o.engine.BestMove(ctx, string(st.Position()), o.Settings(difficulty))
	if err != nil {
		return board.Move{}, err
	}
	m, err := board.ParseMove(token)
	if err != nil {
		return board.Move{}, fmt.Errorf("engine move %q: %w", token, err)
	}
	if !st.IsLegal(m) {
		return board.Move{}, fmt.Errorf("engine move %q: %w", token, board.ErrIllegalMove)
	}
	return m, nil
}

// Settings maps a difficulty to search limits. Out-of-range difficulties
// are clamped; zero uses the configured default depth.
func (o *Orchestrator) Settings(difficulty int) models.EngineSettings {
	if !o.cfg.DepthOrTime && o.cfg.MoveTime > 0 {
		return models.EngineSettings{MoveTimeMS: o.cfg.MoveTime}
	}
	return models.EngineSettings{UseDepth: true, Depth: o.depth(difficulty)}
}

func (o *Orchestrator) depth(difficulty int) int {
	if difficulty == 0 {
		difficulty = o.cfg.Depth
	}
	if difficulty == 0 {
		difficulty = DefaultDifficulty
	}
	if difficulty < MinDifficulty {
		return MinDifficulty
	}
	if difficulty > MaxDifficulty {
		return MaxDifficulty
	}
	return difficulty
}

// IsEngineReady is for display only; RequestMove works either way.
func (o *Orchestrator) IsEngineReady() bool {
	return o.engine != nil && o.engine.Ready()
}

// Shutdown releases the engine. Safe to call more than once.
func (o *Orchestrator) Shutdown() error {
	if o.engine == nil {
		return nil
	}
	return o.engine.Close()
}
