package models

import "time"

// BotMoveRequest asks for a single bot move in an arbitrary position.
type BotMoveRequest struct {
	FEN        string `json:"fen" binding:"required"`
	Difficulty int    `json:"difficulty"`
	Ply        *int   `json:"ply,omitempty"` // plies already played; derived from the FEN when absent
}

type BotMoveResponse struct {
	Move      string `json:"move"` // coordinate form, e.g. "e7e8q"
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Source    string `json:"source"` // "engine" or "heuristic"
}

type CreateGameRequest struct {
	Color      string `json:"color"` // "white", "black" or "random"
	Difficulty int    `json:"difficulty"`
}

type PlayMoveRequest struct {
	Move string `json:"move" binding:"required"`
}

// PlayedMove is one ply of a game's history.
type PlayedMove struct {
	Ply    int       `json:"ply"`
	UCI    string    `json:"uci"`
	SAN    string    `json:"san"`
	ByBot  bool      `json:"by_bot"`
	Source string    `json:"source,omitempty"`
	At     time.Time `json:"at"`
}

// GameView is the public snapshot of a bot game.
type GameView struct {
	ID          string       `json:"id"`
	Nickname    string       `json:"nickname"`
	FEN         string       `json:"fen"`
	PlayerColor string       `json:"player_color"`
	Turn        string       `json:"turn"`
	Difficulty  int          `json:"difficulty"`
	Status      string       `json:"status"`           // "active" or "completed"
	Result      string       `json:"result,omitempty"` // "white_wins", "black_wins", "draw"
	Reason      string       `json:"reason,omitempty"` // "checkmate", "draw", "resignation"
	InCheck     bool         `json:"in_check"`
	Moves       []PlayedMove `json:"moves"`
	EngineReady bool         `json:"engine_ready"`
	CreatedAt   time.Time    `json:"created_at"`
	LastMoveAt  time.Time    `json:"last_move_at"`
}
