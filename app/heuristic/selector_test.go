package heuristic

import (
	"errors"
	"sort"
	"testing"

	"example/portfolio-api/app/board"
)

const (
	queenForPawn  board.Position = "4k3/8/8/3q4/4P3/8/8/R3K3 w - - 0 1"
	twoRookChecks board.Position = "4k3/8/8/8/8/8/8/R3K2R w - - 0 1"
	capturingMate board.Position = "3qk3/8/8/8/8/8/8/3RK2R w - - 0 1"
	foolsMate     board.Position = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
)

func TestRankOpeningPrefersCenter(t *testing.T) {
	tier, moves, err := New().Rank(board.StartPosition, 0)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if tier != TierCenter {
		t.Fatalf("Rank tier = %s, want center", tier)
	}
	got := moveStrings(moves)
	want := []string{"c2c4", "d2d4", "e2e4", "f2f4"}
	if len(got) != len(want) {
		t.Fatalf("center moves = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("center moves = %v, want %v", got, want)
		}
	}
}

func TestRankAfterOpeningFallsBackToAnyMove(t *testing.T) {
	tier, moves, err := New().Rank(board.StartPosition, OpeningPlies)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if tier != TierAny || len(moves) != 20 {
		t.Fatalf("Rank = (%s, %d moves), want (any, 20)", tier, len(moves))
	}
}

func TestSelectAlwaysTakesCapture(t *testing.T) {
	sel := New()
	for i := 0; i < 200; i++ {
		m, err := sel.Select(queenForPawn, 0)
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		if m.String() != "e4d5" {
			t.Fatalf("Select = %s, want the pawn capture e4d5", m)
		}
	}
}

func TestSelectAlwaysGivesCheckWithoutCaptures(t *testing.T) {
	sel := New()
	for i := 0; i < 200; i++ {
		m, err := sel.Select(twoRookChecks, 30)
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		if s := m.String(); s != "a1a8" && s != "h1h8" {
			t.Fatalf("Select = %s, want a checking rook move", s)
		}
	}
}

func TestCapturingCheckStaysInCaptureTier(t *testing.T) {
	tier, moves, err := New().Rank(capturingMate, 20)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if tier != TierCapture || len(moves) != 1 || moves[0].String() != "d1d8" {
		t.Fatalf("Rank = (%s, %v), want (capture, [d1d8])", tier, moves)
	}

	st, err := board.Parse(capturingMate)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	for _, c := range Classify(st) {
		switch c.Move.String() {
		case "d1d8":
			if !c.Has(Capture) || c.Has(Check) {
				t.Fatalf("d1d8 tags = %b, want capture only", c.Tags)
			}
		case "h1h8":
			if !c.Has(Check) || c.Has(Capture) {
				t.Fatalf("h1h8 tags = %b, want check only", c.Tags)
			}
		}
	}
}

func TestDiscoveredChecksRankAsChecks(t *testing.T) {
	// every knight move uncovers the e1 rook
	tier, moves, err := New().Rank("4k3/8/8/8/4N3/8/8/4RK2 w - - 0 1", 30)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if tier != TierCheck || len(moves) != 8 {
		t.Fatalf("Rank = (%s, %v), want the eight knight moves as checks", tier, moves)
	}
	for _, m := range moves {
		if m.From != "e4" {
			t.Fatalf("unexpected checking move %s", m)
		}
	}
}

func TestSelectNoLegalMove(t *testing.T) {
	if _, err := New().Select(foolsMate, 4); !errors.Is(err, ErrNoLegalMove) {
		t.Fatalf("Select(mated) err = %v, want ErrNoLegalMove", err)
	}
}

func TestSelectInvalidPosition(t *testing.T) {
	if _, err := New().Select("nonsense", 0); !errors.Is(err, board.ErrInvalidPosition) {
		t.Fatalf("Select(bad fen) err = %v, want ErrInvalidPosition", err)
	}
}

func TestSelectUniformWithinTier(t *testing.T) {
	const draws = 4000
	sel := New()
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		m, err := sel.Select(board.StartPosition, 0)
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		counts[m.String()]++
	}
	if len(counts) != 4 {
		t.Fatalf("observed moves = %v, want the four center pawn moves", counts)
	}
	for mv, n := range counts {
		// expected 1000 each; the bounds are far outside sampling noise
		if n < 800 || n > 1200 {
			t.Fatalf("move %s drawn %d times out of %d, distribution %v", mv, n, draws, counts)
		}
	}
}

func TestWithIntN(t *testing.T) {
	var asked []int
	sel := New(WithIntN(func(n int) int {
		asked = append(asked, n)
		return n - 1
	}))
	m, tier, err := sel.Choose(twoRookChecks, 0)
	if err != nil {
		t.Fatalf("Choose error: %v", err)
	}
	if tier != TierCheck || len(asked) != 1 || asked[0] != 2 {
		t.Fatalf("Choose tier=%s asked=%v", tier, asked)
	}
	if s := m.String(); s != "a1a8" && s != "h1h8" {
		t.Fatalf("Choose = %s", s)
	}
}

func moveStrings(moves []board.Move) []string {
	out := make([]string, 0, len(moves))
	for _, m := range moves {
		out = append(out, m.String())
	}
	sort.Strings(out)
	return out
}
