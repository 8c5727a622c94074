package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "goal-clip-bot/1.0"
	maxFeedBytes     = 4 * 1024 * 1024
	pollBurst        = 2
	pollEvery        = 2 * time.Second

	acceptFeed = "application/atom+xml, application/rss+xml, application/xml, text/xml, */*"
	acceptJSON = "application/json"
)

// Options configures the HTTP side of a feed source.
type Options struct {
	UserAgent string
	Timeout   time.Duration

	// HTTPClient replaces the default client. Used by tests.
	HTTPClient *http.Client
}

type getter struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

func newGetter(opts Options) *getter {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &getter{
		client:    client,
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(rate.Every(pollEvery), pollBurst),
	}
}

func (g *getter) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("feed rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("fetch feed: %w", coreerrors.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch feed: %w: %d", coreerrors.ErrHTTPStatusNotOK, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	return body, nil
}
