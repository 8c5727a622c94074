package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/errors"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
)

// OpenBackend builds the backend selected by cfg.Backend.
func OpenBackend(ctx context.Context, cfg config.HistoryConfig, logger *zerolog.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.HistoryBackendFile:
		logger.Info().Str(logFieldBackend, cfg.Backend).Str(logFieldPath, cfg.Path).Msg("using file history")
		return NewFileBackend(cfg.Path), nil
	case config.HistoryBackendSQLite:
		logger.Info().Str(logFieldBackend, cfg.Backend).Str(logFieldPath, cfg.Path).Msg("using sqlite history")
		return OpenSQLite(ctx, cfg.Path)
	case config.HistoryBackendPostgres:
		logger.Info().Str(logFieldBackend, cfg.Backend).Msg("using postgres history")
		return OpenPostgres(ctx, cfg.PostgresDSN, logger)
	case config.HistoryBackendRedis:
		logger.Info().Str(logFieldBackend, cfg.Backend).Msg("using redis history")
		return OpenRedis(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownBackend, cfg.Backend)
	}
}
