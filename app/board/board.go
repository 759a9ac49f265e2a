// Package board adapts github.com/notnil/chess to the small rules contract
// the bot needs: legal moves, move application and check/mate/draw predicates
// over FEN positions.
package board

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// StartPosition is the standard initial position.
const StartPosition Position = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrIllegalMove     = errors.New("illegal move")
	ErrInvalidMove     = errors.New("invalid move notation")
)

// Position is a FEN string. Positions are never mutated; Apply derives a new one.
type Position string

// State is a parsed Position. Legal moves are generated once and reused, so
// callers asking several questions about one position should Parse it first.
type State struct {
	game  *chess.Game
	pos   *chess.Position
	check bool
	moves []*chess.Move
}

// Parse decodes a FEN position.
func Parse(p Position) (*State, error) {
	g, err := newGame(strings.TrimSpace(string(p)))
	if err != nil {
		return nil, err
	}
	return &State{game: g, pos: g.Position(), check: inCheck(g.Position())}, nil
}

// newGame wraps a single position in a chess.Game so its automatic outcome
// (mate, stalemate, insufficient material) is evaluated.
func newGame(fen string) (*chess.Game, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return chess.NewGame(opt), nil
}

// Position returns the FEN of s.
func (s *State) Position() Position {
	return Position(s.pos.String())
}

// WhiteToMove reports whether white is the side to move.
func (s *State) WhiteToMove() bool {
	return s.pos.Turn() == chess.White
}

func (s *State) valid() []*chess.Move {
	if s.moves == nil {
		s.moves = s.pos.ValidMoves()
		if s.moves == nil {
			s.moves = []*chess.Move{}
		}
	}
	return s.moves
}

// LegalMoves returns every legal move for the side to move.
func (s *State) LegalMoves() []Move {
	valid := s.valid()
	out := make([]Move, 0, len(valid))
	for _, m := range valid {
		out = append(out, fromChess(m))
	}
	return out
}

// IsLegal reports whether m is in the legal move set.
func (s *State) IsLegal(m Move) bool {
	return s.find(m) != nil
}

func (s *State) find(m Move) *chess.Move {
	for _, cm := range s.valid() {
		if cm.S1().String() == m.From && cm.S2().String() == m.To && promotionLetter(cm.Promo()) == m.Promotion {
			return cm
		}
	}
	return nil
}

// Next applies m and returns the resulting state.
func (s *State) Next(m Move) (*State, error) {
	cm := s.find(m)
	if cm == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrIllegalMove, m, s.pos.String())
	}
	g, err := newGame(s.pos.Update(cm).String())
	if err != nil {
		return nil, err
	}
	return &State{game: g, pos: g.Position(), check: cm.HasTag(chess.Check)}, nil
}

// SAN returns the standard algebraic notation of a legal move.
func (s *State) SAN(m Move) (string, error) {
	cm := s.find(m)
	if cm == nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, m)
	}
	return chess.AlgebraicNotation{}.Encode(s.pos, cm), nil
}

// IsCapture reports whether m takes an opposing piece, en passant included.
func (s *State) IsCapture(m Move) bool {
	cm := s.find(m)
	return cm != nil && (cm.HasTag(chess.Capture) || cm.HasTag(chess.EnPassant))
}

// GivesCheck reports whether m leaves the opponent in check.
func (s *State) GivesCheck(m Move) bool {
	cm := s.find(m)
	return cm != nil && cm.HasTag(chess.Check)
}

// IsCheck reports whether the side to move is in check.
func (s *State) IsCheck() bool {
	return s.check
}

// IsCheckmate reports whether the side to move is checkmated.
func (s *State) IsCheckmate() bool {
	return s.game.Method() == chess.Checkmate
}

// IsStalemate reports whether the side to move has no legal move and is not in check.
func (s *State) IsStalemate() bool {
	return s.game.Method() == chess.Stalemate
}

// IsDraw reports stalemate, the fifty-move rule or insufficient material.
// Repetition needs game history and is left to whoever owns it.
func (s *State) IsDraw() bool {
	switch s.game.Method() {
	case chess.Stalemate, chess.InsufficientMaterial:
		return true
	}
	return slices.Contains(s.game.EligibleDraws(), chess.FiftyMoveRule)
}

// PlyCount is the number of half-moves played before this position, derived
// from the full-move counter and the side to move.
func (s *State) PlyCount() int {
	fields := strings.Fields(s.pos.String())
	full := 1
	if len(fields) >= 6 {
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			full = n
		}
	}
	ply := (full - 1) * 2
	if !s.WhiteToMove() {
		ply++
	}
	return ply
}

// HalfMoveClock is the number of plies since the last capture or pawn move.
func (s *State) HalfMoveClock() int {
	return s.pos.HalfMoveClock()
}

// RepetitionKey drops the move counters from pos so transpositions compare
// equal. Malformed input is returned unchanged.
func RepetitionKey(pos Position) string {
	fields := strings.Fields(string(pos))
	if len(fields) < 4 {
		return string(pos)
	}
	return strings.Join(fields[:4], " ")
}

// LegalMoves returns all legal moves in pos.
func LegalMoves(pos Position) ([]Move, error) {
	s, err := Parse(pos)
	if err != nil {
		return nil, err
	}
	return s.LegalMoves(), nil
}

// Apply returns the position after m, or ErrIllegalMove.
func Apply(pos Position, m Move) (Position, error) {
	s, err := Parse(pos)
	if err != nil {
		return "", err
	}
	next, err := s.Next(m)
	if err != nil {
		return "", err
	}
	return next.Position(), nil
}

// IsCheck reports whether the side to move in pos is in check. Unparsable
// positions report false.
func IsCheck(pos Position) bool {
	s, err := Parse(pos)
	return err == nil && s.IsCheck()
}

// IsCheckmate reports whether the side to move in pos is mated.
func IsCheckmate(pos Position) bool {
	s, err := Parse(pos)
	return err == nil && s.IsCheckmate()
}

// IsDraw reports whether pos is drawn.
func IsDraw(pos Position) bool {
	s, err := Parse(pos)
	return err == nil && s.IsDraw()
}

// IsCapture reports whether m captures in pos.
func IsCapture(pos Position, m Move) bool {
	s, err := Parse(pos)
	return err == nil && s.IsCapture(m)
}

// PlyCount returns the plies already played before pos, or 0 if pos is unparsable.
func PlyCount(pos Position) int {
	s, err := Parse(pos)
	if err != nil {
		return 0
	}
	return s.PlyCount()
}
