package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"example/portfolio-api/app/board"
	"example/portfolio-api/app/config"
	"example/portfolio-api/app/engine"
	"example/portfolio-api/app/heuristic"
	"example/portfolio-api/app/models"
)

const (
	queenForPawn board.Position = "4k3/8/8/3q4/4P3/8/8/R3K3 w - - 0 1"
	foolsMate    board.Position = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
)

var centerMoves = map[string]bool{"c2c4": true, "d2d4": true, "e2e4": true, "f2f4": true}

// scripted is an Engine with a fixed answer.
type scripted struct {
	ready    bool
	move     string
	err      error
	calls    int
	settings models.EngineSettings
	closed   int
}

func (s *scripted) Ready() bool { return s.ready }

func (s *scripted) BestMove(_ context.Context, _ string, st models.EngineSettings) (string, error) {
	s.calls++
	s.settings = st
	return s.move, s.err
}

func (s *scripted) Close() error {
	s.closed++
	return nil
}

func stubSession(t *testing.T, timeout time.Duration, opts ...engine.StubOption) *engine.Session {
	t.Helper()
	s := engine.NewSession(engine.NewStub(opts...), engine.WithTimeout(timeout))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.WaitReady(ctx)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRequestMoveUsesEngine(t *testing.T) {
	eng := stubSession(t, time.Second, engine.StubSearch(func(string) string { return "g1f3" }))
	o := New(eng, config.EngineConfig{DepthOrTime: true})

	res, err := o.RequestMove(context.Background(), board.StartPosition, 5, 0)
	if err != nil {
		t.Fatalf("RequestMove error: %v", err)
	}
	if res.Source != SourceEngine || res.Move.String() != "g1f3" {
		t.Fatalf("RequestMove = %+v, want engine g1f3", res)
	}
	if !o.IsEngineReady() {
		t.Fatalf("IsEngineReady = false with a ready engine")
	}
}

func TestRequestMoveFallsBackWithinTimeout(t *testing.T) {
	const timeout = 100 * time.Millisecond
	eng := stubSession(t, timeout, engine.StubSilent())
	o := New(eng, config.EngineConfig{DepthOrTime: true})

	start := time.Now()
	res, err := o.RequestMove(context.Background(), board.StartPosition, 5, 0)
	took := time.Since(start)
	if err != nil {
		t.Fatalf("RequestMove error: %v", err)
	}
	if res.Source != SourceHeuristic || !centerMoves[res.Move.String()] {
		t.Fatalf("RequestMove = %+v, want a heuristic center move", res)
	}
	if took < timeout || took > timeout+500*time.Millisecond {
		t.Fatalf("fallback after %s, want about %s", took, timeout)
	}
	if !o.IsEngineReady() {
		t.Fatalf("a timeout must leave the engine ready")
	}
}

func TestRequestMoveWithoutHandshakeFallsBackImmediately(t *testing.T) {
	eng := engine.NewSession(engine.NewStub(engine.StubNoHandshake()), engine.WithTimeout(time.Second))
	defer eng.Close()
	o := New(eng, config.EngineConfig{})

	for i := 0; i < 5; i++ {
		start := time.Now()
		res, err := o.RequestMove(context.Background(), queenForPawn, 5, 30)
		if err != nil {
			t.Fatalf("RequestMove error: %v", err)
		}
		if res.Source != SourceHeuristic || res.Move.String() != "e4d5" {
			t.Fatalf("RequestMove = %+v, want heuristic e4d5", res)
		}
		if took := time.Since(start); took > 100*time.Millisecond {
			t.Fatalf("fallback took %s with an engine that never became ready", took)
		}
	}
	if o.IsEngineReady() {
		t.Fatalf("IsEngineReady = true without handshake")
	}
}

func TestRequestMoveUnavailableEngine(t *testing.T) {
	o := New(engine.Unavailable(errors.New("no binary")), config.EngineConfig{})
	res, err := o.RequestMove(context.Background(), board.StartPosition, 5, 0)
	if err != nil || res.Source != SourceHeuristic {
		t.Fatalf("RequestMove = (%+v, %v), want heuristic move", res, err)
	}
}

func TestRequestMoveRejectsBadEngineAnswers(t *testing.T) {
	tests := []struct {
		name string
		eng  *scripted
	}{
		{"illegal", &scripted{ready: true, move: "e2e5"}},
		{"garbage", &scripted{ready: true, move: "xyz"}},
		{"none", &scripted{ready: true, err: engine.ErrNoBestMove}},
		{"timeout", &scripted{ready: true, err: engine.ErrEngineTimeout}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(tt.eng, config.EngineConfig{DepthOrTime: true})
			res, err := o.RequestMove(context.Background(), board.StartPosition, 3, 0)
			if err != nil {
				t.Fatalf("RequestMove error: %v", err)
			}
			if res.Source != SourceHeuristic || !centerMoves[res.Move.String()] {
				t.Fatalf("RequestMove = %+v, want heuristic center move", res)
			}
			if tt.eng.calls != 1 {
				t.Fatalf("engine called %d times, want 1", tt.eng.calls)
			}
		})
	}
}

func TestRequestMoveNoLegalMove(t *testing.T) {
	o := New(&scripted{ready: true, err: engine.ErrNoBestMove}, config.EngineConfig{})
	_, err := o.RequestMove(context.Background(), foolsMate, 5, -1)
	if !errors.Is(err, ErrGameOverOrNoMove) || !errors.Is(err, heuristic.ErrNoLegalMove) {
		t.Fatalf("RequestMove(mated) err = %v, want ErrGameOverOrNoMove", err)
	}
}

func TestRequestMoveInvalidPosition(t *testing.T) {
	eng := &scripted{ready: true, move: "e2e4"}
	o := New(eng, config.EngineConfig{})
	if _, err := o.RequestMove(context.Background(), "not a fen", 5, 0); !errors.Is(err, board.ErrInvalidPosition) {
		t.Fatalf("err = %v, want ErrInvalidPosition", err)
	}
	if eng.calls != 0 {
		t.Fatalf("engine consulted for an invalid position")
	}
}

func TestRequestMoveDerivesPly(t *testing.T) {
	// full-move 20 is past the opening, so center pushes get no preference
	pos := board.Position("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 20")
	var asked []int
	sel := heuristic.New(heuristic.WithIntN(func(n int) int {
		asked = append(asked, n)
		return 0
	}))
	o := New(nil, config.EngineConfig{}, WithSelector(sel))

	if _, err := o.RequestMove(context.Background(), pos, 5, -1); err != nil {
		t.Fatalf("RequestMove error: %v", err)
	}
	if _, err := o.RequestMove(context.Background(), pos, 5, 0); err != nil {
		t.Fatalf("RequestMove error: %v", err)
	}
	if len(asked) != 2 || asked[0] != 20 || asked[1] != 4 {
		t.Fatalf("selector pool sizes = %v, want [20 4]", asked)
	}
}

func TestSettings(t *testing.T) {
	depth := New(nil, config.EngineConfig{DepthOrTime: true, Depth: 8})
	tests := []struct {
		difficulty int
		want       int
	}{
		{0, 8},
		{-3, MinDifficulty},
		{1, 1},
		{12, 12},
		{99, MaxDifficulty},
	}
	for _, tt := range tests {
		got := depth.Settings(tt.difficulty)
		if !got.UseDepth || got.Depth != tt.want {
			t.Fatalf("Settings(%d) = %+v, want depth %d", tt.difficulty, got, tt.want)
		}
	}

	timed := New(nil, config.EngineConfig{DepthOrTime: false, MoveTime: 300})
	if got := timed.Settings(10); got.UseDepth || got.MoveTimeMS != 300 {
		t.Fatalf("timed Settings = %+v, want movetime 300", got)
	}
}

func TestShutdown(t *testing.T) {
	eng := &scripted{}
	o := New(eng, config.EngineConfig{})
	if err := o.Shutdown(); err != nil || eng.closed != 1 {
		t.Fatalf("Shutdown = %v, closed %d times", err, eng.closed)
	}
	if err := New(nil, config.EngineConfig{}).Shutdown(); err != nil {
		t.Fatalf("Shutdown without engine = %v", err)
	}
}
