package app

import (
	"context"
	"net/http"
	"time"

	"example/portfolio-api/app/bot"
	"example/portfolio-api/app/config"
	"example/portfolio-api/app/engine"
	"example/portfolio-api/app/games"
	"example/portfolio-api/app/notify"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server holds what the handlers share.
type Server struct {
	cfg   *config.Config
	bot   *bot.Orchestrator
	games *games.Manager
	queue notify.Queue
	// friends defaults to the Postgres store
	friends FriendStore
	log     zerolog.Logger
	now     func() time.Time
}

func NewServer(cfg *config.Config, orch *bot.Orchestrator, mgr *games.Manager, queue notify.Queue, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		bot:     orch,
		games:   mgr,
		queue:   queue,
		friends: pgFriends{},
		log:     log,
		now:     time.Now,
	}
}

// Bootstrap opens the engine, the database and the notification queue and
// builds a Server around them. The returned func releases all of it.
// Neither a missing engine nor a missing database is fatal.
func Bootstrap(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Server, func(), error) {
	if err := InitDB(ctx, cfg.DB); err != nil {
		return nil, nil, err
	}

	session, err := engine.OpenAndWait(ctx, cfg.Engine, log.With().Str("component", "engine").Logger())
	if err != nil {
		log.Warn().Err(err).Msg("engine not ready at startup, heuristic fallback in use")
	}
	orch := bot.New(session, cfg.Engine, bot.WithLogger(log.With().Str("component", "bot").Logger()))

	factory := games.SharedFactory(orch)
	if cfg.Games.PerGameEngine {
		factory = games.PerGameFactory(cfg.Engine, log.With().Str("component", "engine").Logger())
	}
	mgr := games.NewManager(factory, cfg.Games, games.WithLogger(log.With().Str("component", "games").Logger()))

	queue := notify.OpenQueue(ctx, cfg.QueueURL, log.With().Str("component", "notify").Logger())

	s := NewServer(cfg, orch, mgr, queue, log)
	cleanup := func() {
		mgr.Shutdown()
		if err := orch.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("engine shutdown")
		}
		if err := CloseDB(); err != nil {
			log.Warn().Err(err).Msg("db close")
		}
	}
	return s, cleanup, nil
}

// Games exposes the manager so the caller can run its janitor.
func (s *Server) Games() *games.Manager {
	return s.games
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
