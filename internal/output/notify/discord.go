package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
)

const (
	defaultDiscordTimeout = 15 * time.Second
	defaultRetryAfter     = time.Second
	maxRetryAfter         = 30 * time.Second
	maxErrorBody          = 1024
)

// DiscordOptions configures the webhook transport.
type DiscordOptions struct {
	WebhookURL string
	Username   string
	AvatarURL  string
	Teams      TeamDirectory

	HTTPClient *http.Client
	Now        func() time.Time
}

// Discord posts an embed coloured by the scoring team, then the bare clip URL
// so clients inline the video.
type Discord struct {
	opts   DiscordOptions
	client *http.Client
	now    func() time.Time
}

func NewDiscord(opts DiscordOptions) *Discord {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultDiscordTimeout}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Discord{opts: opts, client: client, now: now}
}

func (d *Discord) Name() string { return config.NotifierDiscord }

type discordPayload struct {
	Content   string         `json:"content,omitempty"`
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url,omitempty"`
	Color       int               `json:"color"`
	Timestamp   string            `json:"timestamp,omitempty"`
	Thumbnail   *discordThumbnail `json:"thumbnail,omitempty"`
}

type discordThumbnail struct {
	URL string `json:"url"`
}

func (d *Discord) Notify(ctx context.Context, req domain.EmitRequest) error {
	if err := d.post(ctx, d.embedPayload(req)); err != nil {
		return fmt.Errorf("post discord embed: %w", err)
	}

	if !req.HasClip() {
		return nil
	}

	if err := d.post(ctx, discordPayload{
		Content:   req.ClipURL,
		Username:  d.opts.Username,
		AvatarURL: d.opts.AvatarURL,
	}); err != nil {
		return fmt.Errorf("post discord clip: %w", err)
	}

	return nil
}

func (d *Discord) embedPayload(req domain.EmitRequest) discordPayload {
	team := req.ScoringTeam
	if team == "" {
		team = req.HomeTeam
	}

	var links []string

	if req.SourceURL != "" {
		links = append(links, req.SourceURL)
	}

	if req.Permalink != "" {
		links = append(links, req.Permalink)
	}

	embed := discordEmbed{
		Title:       "**" + Headline(req) + "**",
		Description: strings.Join(links, "\n"),
		URL:         req.ClipURL,
		Color:       d.opts.Teams.Color(team),
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}

	if badge := d.opts.Teams.Badge(team); badge != "" {
		embed.Thumbnail = &discordThumbnail{URL: badge}
	}

	return discordPayload{
		Username:  d.opts.Username,
		AvatarURL: d.opts.AvatarURL,
		Embeds:    []discordEmbed{embed},
	}
}

// post sends one webhook payload. A 429 is retried once after Retry-After.
func (d *Discord) post(ctx context.Context, payload discordPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	wait, err := d.send(ctx, body)
	if err == nil || wait == 0 {
		return err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	_, err = d.send(ctx, body)

	return err
}

// send returns a positive wait when the webhook was rate limited.
func (d *Discord) send(ctx context.Context, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.opts.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return retryAfter(resp.Header.Get("Retry-After")), coreerrors.ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort error detail

		return 0, fmt.Errorf("%w: %d %s", coreerrors.ErrHTTPStatusNotOK, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return 0, nil
}

// retryAfter parses a Retry-After value in (possibly fractional) seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}

	wait := time.Duration(secs * float64(time.Second))
	if wait > maxRetryAfter {
		return maxRetryAfter
	}

	return wait
}
