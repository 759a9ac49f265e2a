// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"time"

	"example/portfolio-api/app/logging"
	"example/portfolio-api/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery(), logging.AccessLog(s.log))
	router.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.Server.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.Health)

	api := router.Group("/api")

	chess := api.Group("/chess")
	chess.GET("/engine/status", s.EngineStatus)
	chess.POST("/bot/move", s.BotMove)
	chess.POST("/games", s.CreateGame)
	chess.GET("/games/:id", s.GetGame)
	chess.POST("/games/:id/moves", s.PlayMove)
	chess.POST("/games/:id/resign", s.ResignGame)
	chess.DELETE("/games/:id", s.EndGame)

	api.POST("/visitors", s.SignGuestbook)
	api.GET("/visitors", s.ListGuestbook)
	api.GET("/visitors/stats", s.GuestbookStats)
	api.POST("/email/contact", s.Contact)

	disabled := auth.Disabled(s.cfg.Auth)
	verifier, err := auth.NewVerifierFromConfig(s.cfg.Auth)
	switch {
	case err == auth.ErrNotConfigured:
		// admin and friends routes answer 503 until configured
		s.log.Warn().Msg("auth not configured")
		verifier = nil
	case err != nil && !disabled:
		return nil, err
	}

	admin := api.Group("/admin")
	admin.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		RequireScopes: []string{s.cfg.Auth.Scope},
		DisableAuth:   disabled,
	}))
	admin.GET("/me", Me)
	admin.GET("/visitors", s.AdminVisitors)

	// any valid token; the subject identifies the player
	friends := api.Group("/friends")
	friends.Use(auth.Middleware(verifier, auth.MiddlewareConfig{DisableAuth: disabled}))
	friends.GET("", s.ListFriends)
	friends.GET("/profile", s.GetProfile)
	friends.PUT("/profile", s.SetProfile)
	friends.POST("/request", s.SendFriendRequest)
	friends.POST("/accept", s.AcceptFriendRequest)
	friends.POST("/reject", s.RejectFriendRequest)
	friends.GET("/requests", s.ListFriendRequests)
	friends.GET("/search/:query", s.SearchPlayers)
	friends.DELETE("/:username", s.RemoveFriend)

	return router, nil
}
