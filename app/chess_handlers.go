package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"example/portfolio-api/app/board"
	"example/portfolio-api/app/bot"
	"example/portfolio-api/app/games"
	"example/portfolio-api/app/models"

	"github.com/gin-gonic/gin"
)

// moveTimeout bounds a whole bot move request; the engine has its own
// shorter timeout and the heuristic answers immediately after it.
const moveTimeout = 15 * time.Second

// EngineStatus reports whether bot moves currently come from the engine.
func (s *Server) EngineStatus(c *gin.Context) {
	st := models.EngineStatus{Ready: s.bot.IsEngineReady()}
	if !st.Ready {
		st.Reason = "engine unavailable, using heuristic moves"
	}
	c.JSON(http.StatusOK, st)
}

// BotMove answers a stateless "what would the bot play here" request.
func (s *Server) BotMove(c *gin.Context) {
	var req models.BotMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: fen is required")
		return
	}
	if !validDifficulty(req.Difficulty) {
		s.badRequest(c, "difficulty must be between 1 and 20")
		return
	}
	ply := -1
	if req.Ply != nil {
		if *req.Ply < 0 {
			s.badRequest(c, "ply must not be negative")
			return
		}
		ply = *req.Ply
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), moveTimeout)
	defer cancel()

	res, err := s.bot.RequestMove(ctx, board.Position(req.FEN), req.Difficulty, ply)
	if err != nil {
		s.chessError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.BotMoveResponse{
		Move:      res.Move.String(),
		From:      res.Move.From,
		To:        res.Move.To,
		Promotion: res.Move.Promotion,
		Source:    string(res.Source),
	})
}

func (s *Server) CreateGame(c *gin.Context) {
	var req models.CreateGameRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, "invalid request body")
			return
		}
	}
	if !validDifficulty(req.Difficulty) {
		s.badRequest(c, "difficulty must be between 1 and 20")
		return
	}
	if req.Difficulty == 0 {
		req.Difficulty = bot.DefaultDifficulty
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), moveTimeout)
	defer cancel()

	view, err := s.games.Create(ctx, games.Options{Color: req.Color, Difficulty: req.Difficulty})
	if err != nil {
		s.chessError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) GetGame(c *gin.Context) {
	view, err := s.games.Get(c.Param("id"))
	if err != nil {
		s.chessError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PlayMove applies the player's move and returns the game after the bot's reply.
func (s *Server) PlayMove(c *gin.Context) {
	var req models.PlayMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: move is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), moveTimeout)
	defer cancel()

	view, err := s.games.Move(ctx, c.Param("id"), req.Move)
	if err != nil {
		s.chessError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) ResignGame(c *gin.Context) {
	view, err := s.games.Resign(c.Param("id"))
	if err != nil {
		s.chessError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) EndGame(c *gin.Context) {
	if err := s.games.End(c.Param("id")); err != nil {
		s.chessError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func validDifficulty(d int) bool {
	return d == 0 || (d >= bot.MinDifficulty && d <= bot.MaxDifficulty)
}

// chessError maps board, bot and games errors to a status code.
func (s *Server) chessError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, board.ErrInvalidPosition),
		errors.Is(err, board.ErrInvalidMove),
		errors.Is(err, games.ErrInvalidColor):
		status = http.StatusBadRequest
	case errors.Is(err, board.ErrIllegalMove):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, games.ErrGameNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bot.ErrGameOverOrNoMove),
		errors.Is(err, games.ErrGameOver),
		errors.Is(err, games.ErrNotYourTurn),
		errors.Is(err, games.ErrMoveInFlight):
		status = http.StatusConflict
	case errors.Is(err, games.ErrTooManyGames):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= 500 {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("chess request failed")
		if status == http.StatusInternalServerError {
			c.JSON(status, gin.H{"error": "internal error"})
			return
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
