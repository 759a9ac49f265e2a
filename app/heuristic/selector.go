// Package heuristic picks a plausible legal move without search: captures
// first, then checks, then central pawn and piece play in the opening, and
// otherwise anything legal. Each tier is sampled uniformly.
package heuristic

import (
	"errors"
	"math/rand/v2"

	"example/portfolio-api/app/board"
)

// OpeningPlies bounds the window in which center moves are preferred.
const OpeningPlies = 10

var ErrNoLegalMove = errors.New("no legal move")

// CenterSquares are the destinations that count as center development.
var CenterSquares = map[string]bool{
	"c4": true, "d4": true, "e4": true, "f4": true,
	"c5": true, "d5": true, "e5": true, "f5": true,
}

// Tier names the rule that produced a selection.
type Tier int

const (
	TierCapture Tier = iota
	TierCheck
	TierCenter
	TierAny
)

func (t Tier) String() string {
	switch t {
	case TierCapture:
		return "capture"
	case TierCheck:
		return "check"
	case TierCenter:
		return "center"
	}
	return "any"
}

// Tag is a classification bit on a Candidate.
type Tag uint8

const (
	Capture Tag = 1 << iota
	Check
	Center
)

// Candidate is a legal move annotated with its classification.
type Candidate struct {
	Move board.Move
	Tags Tag
}

func (c Candidate) Has(t Tag) bool { return c.Tags&t != 0 }

// Classify tags every legal move of s. A capture is not also tagged as a
// check since it already wins the top tier.
func Classify(s *board.State) []Candidate {
	moves := s.LegalMoves()
	out := make([]Candidate, 0, len(moves))
	for _, m := range moves {
		c := Candidate{Move: m}
		if s.IsCapture(m) {
			c.Tags |= Capture
		} else if s.GivesCheck(m) {
			c.Tags |= Check
		}
		if CenterSquares[m.To] {
			c.Tags |= Center
		}
		out = append(out, c)
	}
	return out
}

// Selector is safe for concurrent use.
type Selector struct {
	intN func(n int) int
}

type Option func(*Selector)

// WithIntN replaces the random source; f must return a value in [0, n).
func WithIntN(f func(n int) int) Option {
	return func(s *Selector) { s.intN = f }
}

func New(opts ...Option) *Selector {
	s := &Selector{intN: rand.IntN}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rank returns the highest non-empty tier for pos and the moves in it.
func (s *Selector) Rank(pos board.Position, ply int) (Tier, []board.Move, error) {
	st, err := board.Parse(pos)
	if err != nil {
		return TierAny, nil, err
	}
	return rank(st, ply)
}

func rank(st *board.State, ply int) (Tier, []board.Move, error) {
	legal := st.LegalMoves()
	if len(legal) == 0 {
		return TierAny, nil, ErrNoLegalMove
	}

	var captures, quiet []board.Move
	for _, m := range legal {
		if st.IsCapture(m) {
			captures = append(captures, m)
		} else {
			quiet = append(quiet, m)
		}
	}
	if len(captures) > 0 {
		return TierCapture, captures, nil
	}

	var checks []board.Move
	for _, m := range quiet {
		if st.GivesCheck(m) {
			checks = append(checks, m)
		}
	}
	if len(checks) > 0 {
		return TierCheck, checks, nil
	}

	if ply < OpeningPlies {
		var center []board.Move
		for _, m := range legal {
			if CenterSquares[m.To] {
				center = append(center, m)
			}
		}
		if len(center) > 0 {
			return TierCenter, center, nil
		}
	}
	return TierAny, legal, nil
}

// Select returns one move from the top tier, chosen uniformly.
func (s *Selector) Select(pos board.Position, ply int) (board.Move, error) {
	m, _, err := s.Choose(pos, ply)
	return m, err
}

// Choose is Select that also reports which tier the move came from.
func (s *Selector) Choose(pos board.Position, ply int) (board.Move, Tier, error) {
	tier, moves, err := s.Rank(pos, ply)
	if err != nil {
		return board.Move{}, tier, err
	}
	return moves[s.intN(len(moves))], tier, nil
}
