// Package logging builds the process logger from LOG_STYLE and LOG_LEVEL.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"example/portfolio-api/app/config"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a logger for cfg and installs it as the zerolog/log global.
func New(cfg config.LogConfig) zerolog.Logger {
	l := NewWithWriter(cfg, os.Stderr)
	log.Logger = l
	return l
}

// NewWithWriter is New without the global side effect.
func NewWithWriter(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if strings.EqualFold(cfg.Style, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// AccessLog is a gin middleware writing one line per request.
func AccessLog(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}
