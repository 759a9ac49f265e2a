package games

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"example/portfolio-api/app/board"
	"example/portfolio-api/app/bot"
	"example/portfolio-api/app/config"

	"github.com/rs/zerolog"
)

// queueMover replies with a fixed list of moves.
type queueMover struct {
	mu      sync.Mutex
	moves   []string
	err     error
	gate    chan struct{}
	entered chan struct{} // receives once per RequestMove, before waiting on gate
	asked   []int
}

func (q *queueMover) RequestMove(_ context.Context, _ board.Position, _ int, ply int) (bot.Result, error) {
	if q.entered != nil {
		q.entered <- struct{}{}
	}
	if q.gate != nil {
		<-q.gate
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.asked = append(q.asked, ply)
	if q.err != nil {
		return bot.Result{}, q.err
	}
	if len(q.moves) == 0 {
		return bot.Result{}, bot.ErrGameOverOrNoMove
	}
	m, err := board.ParseMove(q.moves[0])
	if err != nil {
		return bot.Result{}, err
	}
	q.moves = q.moves[1:]
	return bot.Result{Move: m, Source: bot.SourceHeuristic}, nil
}

func (q *queueMover) IsEngineReady() bool { return false }

func newTestManager(q *queueMover, limit int) (*Manager, *int) {
	released := 0
	f := func() (Mover, func()) { return q, func() { released++ } }
	return NewManager(f, config.GamesConfig{MaxActive: limit}), &released
}

func TestCreateAsWhite(t *testing.T) {
	m, _ := newTestManager(&queueMover{}, 0)
	v, err := m.Create(context.Background(), Options{Color: "white", Difficulty: 3})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if v.ID == "" || v.Nickname == "" {
		t.Fatalf("Create view missing id or nickname: %+v", v)
	}
	if v.FEN != string(board.StartPosition) || v.Turn != White || v.Status != StatusActive || len(v.Moves) != 0 {
		t.Fatalf("Create view = %+v", v)
	}
}

func TestCreateAsBlackBotMovesFirst(t *testing.T) {
	q := &queueMover{moves: []string{"e2e4"}}
	m, _ := newTestManager(q, 0)
	v, err := m.Create(context.Background(), Options{Color: "black"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(v.Moves) != 1 || !v.Moves[0].ByBot || v.Moves[0].SAN != "e4" || v.Turn != Black {
		t.Fatalf("Create(black) view = %+v", v)
	}
	if len(q.asked) != 1 || q.asked[0] != 0 {
		t.Fatalf("bot asked with plies %v, want [0]", q.asked)
	}
}

func TestCreateRejectsBadColor(t *testing.T) {
	m, _ := newTestManager(&queueMover{}, 0)
	if _, err := m.Create(context.Background(), Options{Color: "purple"}); !errors.Is(err, ErrInvalidColor) {
		t.Fatalf("Create(purple) err = %v", err)
	}
}

func TestCreateLimit(t *testing.T) {
	m, _ := newTestManager(&queueMover{}, 1)
	if _, err := m.Create(context.Background(), Options{}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := m.Create(context.Background(), Options{}); !errors.Is(err, ErrTooManyGames) {
		t.Fatalf("second Create err = %v, want ErrTooManyGames", err)
	}
}

func TestCreateStartsMoverOutsideLock(t *testing.T) {
	entered := make(chan struct{}, 2)
	gate := make(chan struct{})
	var released atomic.Int32
	f := func() (Mover, func()) {
		entered <- struct{}{}
		<-gate
		return &queueMover{}, func() { released.Add(1) }
	}
	m := NewManager(f, config.GamesConfig{MaxActive: 1})

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := m.Create(context.Background(), Options{Color: "white"})
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("factory not reached by both creates")
		}
	}
	// both movers are being built; the manager must stay usable meanwhile
	if n := m.Count(); n != 0 {
		t.Fatalf("Count during factory = %d, want 0", n)
	}
	close(gate)

	var tooMany int
	for i := 0; i < 2; i++ {
		if err := <-errs; errors.Is(err, ErrTooManyGames) {
			tooMany++
		} else if err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}
	if tooMany != 1 || m.Count() != 1 {
		t.Fatalf("got %d rejections and %d games, want 1 and 1", tooMany, m.Count())
	}
	if released.Load() != 1 {
		t.Fatalf("released %d movers, want the losing create's one", released.Load())
	}
}

func TestMovePlaysBotReply(t *testing.T) {
	q := &queueMover{moves: []string{"e7e5"}}
	m, _ := newTestManager(q, 0)
	v, _ := m.Create(context.Background(), Options{})

	v, err := m.Move(context.Background(), v.ID, "e2e4")
	if err != nil {
		t.Fatalf("Move error: %v", err)
	}
	if len(v.Moves) != 2 || v.Moves[0].ByBot || !v.Moves[1].ByBot || v.Turn != White {
		t.Fatalf("Move view = %+v", v)
	}
	if v.Moves[1].UCI != "e7e5" || v.Moves[1].Ply != 2 {
		t.Fatalf("bot move = %+v", v.Moves[1])
	}
	if len(q.asked) != 1 || q.asked[0] != 1 {
		t.Fatalf("bot asked with plies %v, want [1]", q.asked)
	}
}

func TestMoveErrors(t *testing.T) {
	m, _ := newTestManager(&queueMover{}, 0)
	v, _ := m.Create(context.Background(), Options{})

	if _, err := m.Move(context.Background(), "missing", "e2e4"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("unknown game err = %v", err)
	}
	if _, err := m.Move(context.Background(), v.ID, "e2"); !errors.Is(err, board.ErrInvalidMove) {
		t.Fatalf("bad notation err = %v", err)
	}
	if _, err := m.Move(context.Background(), v.ID, "e2e5"); !errors.Is(err, board.ErrIllegalMove) {
		t.Fatalf("illegal move err = %v", err)
	}
}

func TestMoveAfterBotFailureIsNotYourTurn(t *testing.T) {
	q := &queueMover{err: errors.New("boom")}
	m, _ := newTestManager(q, 0)
	v, _ := m.Create(context.Background(), Options{})

	if _, err := m.Move(context.Background(), v.ID, "e2e4"); err == nil {
		t.Fatalf("Move should report the bot failure")
	}
	if _, err := m.Move(context.Background(), v.ID, "d2d4"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("Move on bot's turn err = %v, want ErrNotYourTurn", err)
	}
}

func TestOneMoveInFlight(t *testing.T) {
	q := &queueMover{moves: []string{"e7e5"}, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	m, _ := newTestManager(q, 0)
	v, _ := m.Create(context.Background(), Options{})

	done := make(chan error, 1)
	go func() {
		_, err := m.Move(context.Background(), v.ID, "e2e4")
		done <- err
	}()

	select {
	case <-q.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("bot reply was never requested")
	}
	if _, err := m.Move(context.Background(), v.ID, "d2d4"); !errors.Is(err, ErrMoveInFlight) {
		t.Fatalf("concurrent Move err = %v, want ErrMoveInFlight", err)
	}
	close(q.gate)
	if err := <-done; err != nil {
		t.Fatalf("first Move error: %v", err)
	}
}

func TestCheckmateEndsGame(t *testing.T) {
	q := &queueMover{moves: []string{"f2f3", "g2g4"}}
	m, _ := newTestManager(q, 0)
	v, err := m.Create(context.Background(), Options{Color: "black"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if v, err = m.Move(context.Background(), v.ID, "e7e5"); err != nil {
		t.Fatalf("Move error: %v", err)
	}
	v, err = m.Move(context.Background(), v.ID, "d8h4")
	if err != nil {
		t.Fatalf("Move error: %v", err)
	}
	if v.Status != StatusCompleted || v.Result != ResultBlackWins || v.Reason != "checkmate" || !v.InCheck {
		t.Fatalf("after mate view = %+v", v)
	}
	if v.Moves[len(v.Moves)-1].SAN != "Qh4#" {
		t.Fatalf("mating SAN = %q", v.Moves[len(v.Moves)-1].SAN)
	}
	if _, err := m.Move(context.Background(), v.ID, "a7a6"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("Move after mate err = %v, want ErrGameOver", err)
	}
}

func TestThreefoldRepetitionDraws(t *testing.T) {
	q := &queueMover{moves: []string{"g8f6", "f6g8", "g8f6", "f6g8"}}
	m, _ := newTestManager(q, 0)
	v, _ := m.Create(context.Background(), Options{})

	var err error
	for i, mv := range []string{"g1f3", "f3g1", "g1f3", "f3g1"} {
		v, err = m.Move(context.Background(), v.ID, mv)
		if err != nil {
			t.Fatalf("Move %d error: %v", i, err)
		}
	}
	if v.Status != StatusCompleted || v.Result != ResultDraw || v.Reason != "repetition" {
		t.Fatalf("after repetition view = %+v", v)
	}
}

func TestResign(t *testing.T) {
	m, _ := newTestManager(&queueMover{}, 0)
	v, _ := m.Create(context.Background(), Options{})

	v, err := m.Resign(v.ID)
	if err != nil {
		t.Fatalf("Resign error: %v", err)
	}
	if v.Status != StatusCompleted || v.Result != ResultBlackWins || v.Reason != "resignation" {
		t.Fatalf("Resign view = %+v", v)
	}
	if _, err := m.Resign(v.ID); !errors.Is(err, ErrGameOver) {
		t.Fatalf("second Resign err = %v", err)
	}
	if _, err := m.Get(v.ID); err != nil {
		t.Fatalf("resigned game should still be readable: %v", err)
	}
}

func TestEndReleasesEngine(t *testing.T) {
	m, released := newTestManager(&queueMover{}, 0)
	v, _ := m.Create(context.Background(), Options{})

	if err := m.End(v.ID); err != nil {
		t.Fatalf("End error: %v", err)
	}
	if *released != 1 {
		t.Fatalf("release called %d times, want 1", *released)
	}
	if err := m.End(v.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("second End err = %v", err)
	}
	if _, err := m.Get(v.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("Get after End err = %v", err)
	}
}

func TestReapIdleGames(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	released := 0
	f := func() (Mover, func()) { return &queueMover{}, func() { released++ } }
	m := NewManager(f, config.GamesConfig{}, WithClock(func() time.Time { return now }))

	old, _ := m.Create(context.Background(), Options{})
	now = now.Add(20 * time.Minute)
	fresh, _ := m.Create(context.Background(), Options{})
	now = now.Add(15 * time.Minute)

	if n := m.Reap(30 * time.Minute); n != 1 || released != 1 {
		t.Fatalf("Reap = %d (released %d), want 1", n, released)
	}
	if _, err := m.Get(old.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("old game still present: %v", err)
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Fatalf("fresh game reaped: %v", err)
	}

	m.Shutdown()
	if m.Count() != 0 || released != 2 {
		t.Fatalf("after Shutdown count=%d released=%d", m.Count(), released)
	}
}

func TestPerGameFactoryWithoutEngineUsesHeuristic(t *testing.T) {
	m := NewManager(PerGameFactory(config.EngineConfig{}, zerolog.Nop()), config.GamesConfig{})
	defer m.Shutdown()

	v, err := m.Create(context.Background(), Options{Color: "black"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(v.Moves) != 1 || v.Moves[0].Source != string(bot.SourceHeuristic) || v.EngineReady {
		t.Fatalf("Create view = %+v", v)
	}
}
