package models

import "time"

// SelfPlayGame summarizes one bot-versus-bot game.
type SelfPlayGame struct {
	Index         int           `json:"index"`
	Result        string        `json:"result"` // "white_wins", "black_wins", "draw", "unfinished"
	Reason        string        `json:"reason"`
	Plies         int           `json:"plies"`
	EngineMoves   int           `json:"engine_moves"`
	FallbackMoves int           `json:"fallback_moves"`
	FinalFEN      string        `json:"final_fen"`
	Took          time.Duration `json:"took"`
}
