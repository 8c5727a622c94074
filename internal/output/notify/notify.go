// Package notify delivers emitted goals to the configured transports.
//
// Every transport receives the same EmitRequest. Delivery failures are logged
// and counted per transport; they never affect the other transports or the
// pipeline's dedup decision.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
	"github.com/lueurxax/goal-clip-bot/internal/platform/observability"
)

const (
	statusOK    = "ok"
	statusError = "error"

	logKeyTransport = "transport"
	logKeyMatch     = "match"
)

var errUnknownTransport = errors.New("unknown notification transport")

// Transport delivers one notification.
type Transport interface {
	Name() string
	Notify(ctx context.Context, req domain.EmitRequest) error
}

// Multi fans a notification out to every transport.
type Multi struct {
	transports []Transport
	logger     *zerolog.Logger
}

func NewMulti(logger *zerolog.Logger, transports ...Transport) *Multi {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Multi{transports: transports, logger: logger}
}

// New builds the transports named in cfg.Transports.
func New(cfg config.NotifyConfig, teams []config.Team, logger *zerolog.Logger) (*Multi, error) {
	directory := NewTeamDirectory(teams)
	transports := make([]Transport, 0, len(cfg.Transports))

	for _, name := range cfg.Transports {
		switch name {
		case config.NotifierLog:
			transports = append(transports, NewLog(logger))
		case config.NotifierTelegram:
			tg, err := NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
			if err != nil {
				return nil, err
			}

			transports = append(transports, tg)
		case config.NotifierDiscord:
			transports = append(transports, NewDiscord(DiscordOptions{
				WebhookURL: cfg.DiscordWebhookURL,
				Username:   cfg.DiscordUsername,
				AvatarURL:  cfg.DiscordAvatarURL,
				Teams:      directory,
			}))
		default:
			return nil, fmt.Errorf("%w: %q", errUnknownTransport, name)
		}
	}

	return NewMulti(logger, transports...), nil
}

// Transports returns the configured transport names.
func (m *Multi) Transports() []string {
	names := make([]string, len(m.transports))
	for i, t := range m.transports {
		names[i] = t.Name()
	}

	return names
}

// Notify delivers req to every transport and joins their errors.
func (m *Multi) Notify(ctx context.Context, req domain.EmitRequest) error {
	var errs []error

	for _, t := range m.transports {
		if err := t.Notify(ctx, req); err != nil {
			observability.NotificationsSent.WithLabelValues(t.Name(), statusError).Inc()
			m.logger.Error().Err(err).Str(logKeyTransport, t.Name()).Str(logKeyMatch, Headline(req)).Msg("notification failed")

			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))

			continue
		}

		observability.NotificationsSent.WithLabelValues(t.Name(), statusOK).Inc()
	}

	return errors.Join(errs...)
}
