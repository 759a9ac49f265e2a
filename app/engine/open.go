package engine

import (
	"context"
	"errors"

	"example/portfolio-api/app/config"

	"github.com/rs/zerolog"
)

// BuiltinPath selects the in-process Stub instead of an external binary.
const BuiltinPath = "builtin"

// Open starts a session for cfg. It never fails: a missing or broken binary
// yields a session that is permanently unavailable, so callers fall back.
func Open(cfg config.EngineConfig, log zerolog.Logger) *Session {
	opts := []Option{WithTimeout(cfg.Timeout), WithLogger(log)}

	switch cfg.Path {
	case "":
		log.Warn().Msg("ENGINE_PATH not set, engine disabled")
		return Unavailable(errors.New("no engine configured"), opts...)
	case BuiltinPath:
		return NewSession(NewStub(), opts...)
	}

	conn, err := StartProcess(cfg.Path)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Path).Msg("failed to start engine")
		return Unavailable(err, opts...)
	}
	log.Info().Str("path", cfg.Path).Msg("engine process started")
	return NewSession(conn, opts...)
}

// OpenAndWait is Open followed by a bounded wait for the handshake. The
// session is returned even when the wait fails.
func OpenAndWait(ctx context.Context, cfg config.EngineConfig, log zerolog.Logger) (*Session, error) {
	s := Open(cfg, log)
	if cfg.HandshakeTimeout <= 0 {
		return s, s.WaitReady(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	return s, s.WaitReady(ctx)
}
