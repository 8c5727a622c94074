package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
)

// Log writes notifications to the application log.
type Log struct {
	logger *zerolog.Logger
}

func NewLog(logger *zerolog.Logger) *Log {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Log{logger: logger}
}

func (l *Log) Name() string { return config.NotifierLog }

func (l *Log) Notify(_ context.Context, req domain.EmitRequest) error {
	l.logger.Info().
		Str(logKeyMatch, Headline(req)).
		Str("clip", req.ClipURL).
		Str("source_url", req.SourceURL).
		Str("permalink", req.Permalink).
		Bool("degraded", !req.HasClip()).
		Msg("GOAL")

	return nil
}
