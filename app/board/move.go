package board

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// Move is an origin/destination pair plus an optional promotion piece
// ("q", "r", "b" or "n").
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// ParseMove decodes coordinate notation such as "e2e4" or "e7e8q".
func ParseMove(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrInvalidMove, s)
	}
	m := Move{From: s[0:2], To: s[2:4]}
	if !validSquare(m.From) || !validSquare(m.To) {
		return Move{}, fmt.Errorf("%w: %q", ErrInvalidMove, s)
	}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
			m.Promotion = s[4:]
		default:
			return Move{}, fmt.Errorf("%w: bad promotion piece in %q", ErrInvalidMove, s)
		}
	}
	return m, nil
}

// String returns the coordinate form of m.
func (m Move) String() string {
	return m.From + m.To + m.Promotion
}

func validSquare(sq string) bool {
	return len(sq) == 2 && sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}

func fromChess(m *chess.Move) Move {
	return Move{
		From:      m.S1().String(),
		To:        m.S2().String(),
		Promotion: promotionLetter(m.Promo()),
	}
}

func promotionLetter(pt chess.PieceType) string {
	switch pt {
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	}
	return ""
}
