package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
	"github.com/lueurxax/goal-clip-bot/internal/platform/htmlutils"
)

const (
	clipLinkText    = "▶ Watch the goal"
	sourceLinkText  = "Source"
	threadLinkText  = "Thread"
	noClipText      = "Clip not available yet"
	headlineMaxSize = 512
)

// telegramSender is the part of tgbotapi.BotAPI used for delivery.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts an HTML message to one chat. The clip link is placed first so
// Telegram renders its preview.
type Telegram struct {
	api    telegramSender
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return newTelegramWithSender(api, chatID), nil
}

func newTelegramWithSender(api telegramSender, chatID int64) *Telegram {
	return &Telegram{api: api, chatID: chatID}
}

func (t *Telegram) Name() string { return config.NotifierTelegram }

func (t *Telegram) Notify(ctx context.Context, req domain.EmitRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, telegramText(req))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = !req.HasClip()

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

func telegramText(req domain.EmitRequest) string {
	lines := []string{"⚽ " + htmlutils.Bold(htmlutils.Truncate(Headline(req), headlineMaxSize))}

	if req.HasClip() {
		lines = append(lines, htmlutils.Link(req.ClipURL, clipLinkText))
	} else {
		lines = append(lines, "<i>"+noClipText+"</i>")
	}

	var refs []string

	if req.SourceURL != "" && req.SourceURL != req.ClipURL {
		refs = append(refs, htmlutils.Link(req.SourceURL, sourceLinkText))
	}

	if req.Permalink != "" {
		refs = append(refs, htmlutils.Link(req.Permalink, threadLinkText))
	}

	if len(refs) > 0 {
		lines = append(lines, strings.Join(refs, " · "))
	}

	return strings.Join(lines, "\n")
}
