// Package games keeps bot games in memory and drives them one move at a time.
package games

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"example/portfolio-api/app/board"
	"example/portfolio-api/app/bot"
	"example/portfolio-api/app/config"
	"example/portfolio-api/app/engine"
	"example/portfolio-api/app/models"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrGameOver     = errors.New("game is over")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrMoveInFlight = errors.New("a move is already being played")
	ErrTooManyGames = errors.New("too many active games")
	ErrInvalidColor = errors.New("color must be white, black or random")
)

const (
	White = "white"
	Black = "black"

	StatusActive    = "active"
	StatusCompleted = "completed"

	ResultWhiteWins = "white_wins"
	ResultBlackWins = "black_wins"
	ResultDraw      = "draw"
)

// Mover is what a game needs from the bot.
type Mover interface {
	RequestMove(ctx context.Context, pos board.Position, difficulty, ply int) (bot.Result, error)
	IsEngineReady() bool
}

// Factory hands a new game its mover and the func that releases it.
type Factory func() (Mover, func())

// SharedFactory gives every game the same orchestrator; releasing a game
// leaves it running.
func SharedFactory(o *bot.Orchestrator) Factory {
	return func() (Mover, func()) { return o, func() {} }
}

// PerGameFactory starts a dedicated engine for each game and stops it when
// the game is released.
func PerGameFactory(cfg config.EngineConfig, log zerolog.Logger) Factory {
	return func() (Mover, func()) {
		o := bot.New(engine.Open(cfg, log), cfg, bot.WithLogger(log))
		return o, func() { _ = o.Shutdown() }
	}
}

type Options struct {
	Color      string
	Difficulty int
}

type game struct {
	mu sync.Mutex

	id         string
	nickname   string
	player     string
	difficulty int
	pos        board.Position
	moves      []models.PlayedMove
	seen       map[string]int
	status     string
	result     string
	reason     string
	inFlight   bool
	ended      bool
	mover      Mover
	release    func()
	createdAt  time.Time
	lastMoveAt time.Time
}

type Manager struct {
	mu    sync.Mutex
	games map[string]*game

	factory   Factory
	maxActive int
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
	nickname  func() string
	coin      func() bool
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(factory Factory, cfg config.GamesConfig, opts ...Option) *Manager {
	m := &Manager{
		games:     make(map[string]*game),
		factory:   factory,
		maxActive: cfg.MaxActive,
		log:       zerolog.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
		nickname:  func() string { return petname.Generate(2, "-") },
		coin:      func() bool { return rand.IntN(2) == 0 },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a game against the bot. When the player takes black the
// bot's first move is already on the board in the returned view.
func (m *Manager) Create(ctx context.Context, opts Options) (models.GameView, error) {
	color, err := m.pickColor(opts.Color)
	if err != nil {
		return models.GameView{}, err
	}

	if m.full() {
		return models.GameView{}, ErrTooManyGames
	}
	// the factory may start an engine process; keep it outside m.mu
	mover, release := m.factory()

	m.mu.Lock()
	if m.maxActive > 0 && len(m.games) >= m.maxActive {
		m.mu.Unlock()
		release()
		return models.GameView{}, ErrTooManyGames
	}
	now := m.now()
	g := &game{
		id:         m.newID(),
		nickname:   m.nickname(),
		player:     color,
		difficulty: opts.Difficulty,
		pos:        board.StartPosition,
		seen:       map[string]int{board.RepetitionKey(board.StartPosition): 1},
		status:     StatusActive,
		mover:      mover,
		release:    release,
		createdAt:  now,
		lastMoveAt: now,
	}
	m.games[g.id] = g
	m.mu.Unlock()

	m.log.Info().Str("game", g.id).Str("nickname", g.nickname).Str("color", color).Msg("game created")

	g.mu.Lock()
	if color == Black {
		g.inFlight = true
		g.mu.Unlock()
		if err := m.botReply(ctx, g); err != nil {
			return models.GameView{}, err
		}
		g.mu.Lock()
	}
	defer g.mu.Unlock()
	return g.view(), nil
}

func (m *Manager) full() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive > 0 && len(m.games) >= m.maxActive
}

func (m *Manager) pickColor(c string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case "", White:
		return White, nil
	case Black:
		return Black, nil
	case "random":
		if m.coin() {
			return White, nil
		}
		return Black, nil
	}
	return "", ErrInvalidColor
}

func (m *Manager) lookup(id string) (*game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// Move plays the player's move and, if the game goes on, the bot's reply.
func (m *Manager) Move(ctx context.Context, id, uci string) (models.GameView, error) {
	g, err := m.lookup(id)
	if err != nil {
		return models.GameView{}, err
	}
	mv, err := board.ParseMove(uci)
	if err != nil {
		return models.GameView{}, err
	}

	g.mu.Lock()
	switch {
	case g.status != StatusActive:
		g.mu.Unlock()
		return models.GameView{}, ErrGameOver
	case g.inFlight:
		g.mu.Unlock()
		return models.GameView{}, ErrMoveInFlight
	case g.turn() != g.player:
		g.mu.Unlock()
		return models.GameView{}, ErrNotYourTurn
	}
	if err := g.play(mv, false, "", m.now()); err != nil {
		g.mu.Unlock()
		return models.GameView{}, err
	}
	if g.status != StatusActive {
		defer g.mu.Unlock()
		m.log.Info().Str("game", g.id).Str("result", g.result).Str("reason", g.reason).Msg("game finished")
		return g.view(), nil
	}
	g.inFlight = true
	g.mu.Unlock()

	if err := m.botReply(ctx, g); err != nil {
		return models.GameView{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view(), nil
}

// botReply must be called with g.inFlight set and g.mu released.
func (m *Manager) botReply(ctx context.Context, g *game) error {
	g.mu.Lock()
	pos, ply, difficulty, mover := g.pos, len(g.moves), g.difficulty, g.mover
	g.mu.Unlock()

	res, err := mover.RequestMove(ctx, pos, difficulty, ply)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
	if err != nil {
		m.log.Error().Err(err).Str("game", g.id).Msg("bot could not move")
		return fmt.Errorf("bot move: %w", err)
	}
	if g.ended || g.status != StatusActive || g.pos != pos {
		return nil
	}
	if err := g.play(res.Move, true, string(res.Source), m.now()); err != nil {
		return fmt.Errorf("bot move %s: %w", res.Move, err)
	}
	m.log.Debug().Str("game", g.id).Str("move", res.Move.String()).Str("source", string(res.Source)).Msg("bot moved")
	if g.status != StatusActive {
		m.log.Info().Str("game", g.id).Str("result", g.result).Str("reason", g.reason).Msg("game finished")
	}
	return nil
}

func (m *Manager) Get(id string) (models.GameView, error) {
	g, err := m.lookup(id)
	if err != nil {
		return models.GameView{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view(), nil
}

// Resign ends the game as a loss for the player. The game stays readable
// until it is ended or reaped.
func (m *Manager) Resign(id string) (models.GameView, error) {
	g, err := m.lookup(id)
	if err != nil {
		return models.GameView{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status != StatusActive {
		return models.GameView{}, ErrGameOver
	}
	g.finish(winnerAgainst(g.player), "resignation")
	g.lastMoveAt = m.now()
	m.log.Info().Str("game", g.id).Msg("player resigned")
	return g.view(), nil
}

// End forgets the game and releases its engine.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	g, ok := m.games[id]
	delete(m.games, id)
	m.mu.Unlock()
	if !ok {
		return ErrGameNotFound
	}
	m.release(g)
	return nil
}

func (m *Manager) release(g *game) {
	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		return
	}
	g.ended = true
	release := g.release
	g.mu.Unlock()
	if release != nil {
		release()
	}
	m.log.Debug().Str("game", g.id).Msg("game released")
}

// Reap ends games that have not seen a move for longer than idle and
// returns how many it removed. Games with a bot move in flight are kept.
func (m *Manager) Reap(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	var stale []*game

	m.mu.Lock()
	for id, g := range m.games {
		g.mu.Lock()
		old := !g.inFlight && g.lastMoveAt.Before(cutoff)
		g.mu.Unlock()
		if old {
			stale = append(stale, g)
			delete(m.games, id)
		}
	}
	m.mu.Unlock()

	for _, g := range stale {
		m.release(g)
	}
	if len(stale) > 0 {
		m.log.Info().Int("games", len(stale)).Msg("reaped idle games")
	}
	return len(stale)
}

// Run reaps idle games every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Reap(idle)
		}
	}
}

// Shutdown ends every game.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*game, 0, len(m.games))
	for id, g := range m.games {
		all = append(all, g)
		delete(m.games, id)
	}
	m.mu.Unlock()
	for _, g := range all {
		m.release(g)
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.games)
}

// play applies a move and updates the game's status. Called with g.mu held.
func (g *game) play(mv board.Move, byBot bool, source string, at time.Time) error {
	st, err := board.Parse(g.pos)
	if err != nil {
		return err
	}
	san, err := st.SAN(mv)
	if err != nil {
		return err
	}
	next, err := st.Next(mv)
	if err != nil {
		return err
	}

	g.pos = next.Position()
	g.moves = append(g.moves, models.PlayedMove{
		Ply:    len(g.moves) + 1,
		UCI:    mv.String(),
		SAN:    san,
		ByBot:  byBot,
		Source: source,
		At:     at,
	})
	g.lastMoveAt = at
	key := board.RepetitionKey(g.pos)
	g.seen[key]++

	switch {
	case next.IsCheckmate():
		// the side to move is mated
		if next.WhiteToMove() {
			g.finish(ResultBlackWins, "checkmate")
		} else {
			g.finish(ResultWhiteWins, "checkmate")
		}
	case next.IsStalemate():
		g.finish(ResultDraw, "stalemate")
	case next.IsDraw():
		g.finish(ResultDraw, "draw")
	case g.seen[key] >= 3:
		g.finish(ResultDraw, "repetition")
	}
	return nil
}

func (g *game) finish(result, reason string) {
	g.status = StatusCompleted
	g.result = result
	g.reason = reason
}

func (g *game) turn() string {
	if strings.Contains(string(g.pos), " w ") {
		return White
	}
	return Black
}

func (g *game) view() models.GameView {
	moves := make([]models.PlayedMove, len(g.moves))
	copy(moves, g.moves)
	return models.GameView{
		ID:          g.id,
		Nickname:    g.nickname,
		FEN:         string(g.pos),
		PlayerColor: g.player,
		Turn:        g.turn(),
		Difficulty:  g.difficulty,
		Status:      g.status,
		Result:      g.result,
		Reason:      g.reason,
		InCheck:     board.IsCheck(g.pos),
		Moves:       moves,
		EngineReady: g.mover.IsEngineReady(),
		CreatedAt:   g.createdAt,
		LastMoveAt:  g.lastMoveAt,
	}
}

func winnerAgainst(color string) string {
	if color == White {
		return ResultBlackWins
	}
	return ResultWhiteWins
}
