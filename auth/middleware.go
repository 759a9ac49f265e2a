package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	RequireScopes []string
	DisableAuth   bool
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.DisableAuth {
			claims := &Claims{
				Subject: "local-dev",
				Issuer:  "local",
				Scopes:  cfg.RequireScopes,
				Raw:     map[string]any{"sub": "local-dev"},
			}
			c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
			c.Next()
			return
		}

		if verifier == nil {
			respond(c, http.StatusServiceUnavailable, "auth not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn().Str("path", c.Request.URL.Path).Msg("auth failure: missing Authorization header")
			respond(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		token, ok := extractBearerToken(authHeader)
		if !ok {
			log.Warn().Str("path", c.Request.URL.Path).Msg("auth failure: malformed Authorization header")
			respond(c, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("auth failure: token invalid")
			respond(c, http.StatusUnauthorized, "invalid token")
			return
		}

		if !hasScopes(claims.Scopes, cfg.RequireScopes) {
			log.Warn().Str("sub", claims.Subject).Strs("need", cfg.RequireScopes).Msg("auth failure: missing scopes")
			respond(c, http.StatusForbidden, "insufficient scope")
			return
		}

		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func hasScopes(granted, required []string) bool {
	available := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		available[s] = struct{}{}
	}
	for _, scope := range required {
		if _, ok := available[scope]; !ok {
			return false
		}
	}
	return true
}

func respond(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": message,
	})
}
