package board

import "github.com/notnil/chess"

var (
	knightSteps    = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps      = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	diagonalRays   = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	orthogonalRays = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
)

type grid [64]chess.Piece

func (g *grid) at(file, rank int) chess.Piece {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return chess.NoPiece
	}
	return g[rank*8+file]
}

// inCheck reports whether the side to move in pos is attacked on its king
// square. notnil/chess tracks this but does not export it for a position
// loaded from FEN.
func inCheck(pos *chess.Position) bool {
	var g grid
	for i := range g {
		g[i] = chess.NoPiece
	}
	us := pos.Turn()
	kingFile, kingRank, found := 0, 0, false
	for sq, p := range pos.Board().SquareMap() {
		f, r := int(sq.File()), int(sq.Rank())
		g[r*8+f] = p
		if p.Type() == chess.King && p.Color() == us {
			kingFile, kingRank, found = f, r, true
		}
	}
	if !found {
		return false
	}
	return attacked(&g, kingFile, kingRank, us.Other())
}

// attacked reports whether any piece of colour by attacks (file, rank).
func attacked(g *grid, file, rank int, by chess.Color) bool {
	pawnRank := rank - 1
	if by == chess.Black {
		pawnRank = rank + 1
	}
	for _, df := range []int{-1, 1} {
		if p := g.at(file+df, pawnRank); p.Type() == chess.Pawn && p.Color() == by {
			return true
		}
	}
	for _, st := range knightSteps {
		if p := g.at(file+st[0], rank+st[1]); p.Type() == chess.Knight && p.Color() == by {
			return true
		}
	}
	for _, st := range kingSteps {
		if p := g.at(file+st[0], rank+st[1]); p.Type() == chess.King && p.Color() == by {
			return true
		}
	}
	if slides(g, file, rank, by, diagonalRays, chess.Bishop) {
		return true
	}
	return slides(g, file, rank, by, orthogonalRays, chess.Rook)
}

func slides(g *grid, file, rank int, by chess.Color, rays [4][2]int, slider chess.PieceType) bool {
	for _, ray := range rays {
		f, r := file+ray[0], rank+ray[1]
		for f >= 0 && f <= 7 && r >= 0 && r <= 7 {
			p := g.at(f, r)
			if p != chess.NoPiece {
				if p.Color() == by && (p.Type() == slider || p.Type() == chess.Queen) {
					return true
				}
				break
			}
			f, r = f+ray[0], r+ray[1]
		}
	}
	return false
}
