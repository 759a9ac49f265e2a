package app

import (
	"net/http"

	"example/portfolio-api/auth"

	"github.com/gin-gonic/gin"
)

// Health is a public liveness check. The engine state is informational.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"engine_ready": s.bot.IsEngineReady(),
		"database":     db != nil,
		"games":        s.games.Count(),
	})
}

// Me returns the verified admin identity.
func Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sub":    claims.Subject,
		"email":  claims.Email,
		"scopes": claims.Scopes,
	})
}
