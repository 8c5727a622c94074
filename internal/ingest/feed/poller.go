// Package feed polls the primary and fallback subreddit feeds and submits
// their posts to the event pipeline as CandidatePosts.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
	"github.com/lueurxax/goal-clip-bot/internal/platform/observability"
	"github.com/lueurxax/goal-clip-bot/internal/platform/worker"
)

const logKeySource = "source"

// Source yields the current candidate posts of one feed.
type Source interface {
	Name() domain.Source
	Fetch(ctx context.Context) ([]domain.CandidatePost, error)
}

// Sink receives candidate posts.
type Sink interface {
	Submit(post domain.CandidatePost) (domain.EventState, error)
}

type scheduled struct {
	source   Source
	interval time.Duration
}

// Poller runs every source on its own interval.
type Poller struct {
	sources []scheduled
	sink    Sink
	logger  *zerolog.Logger
}

func NewPoller(sink Sink, logger *zerolog.Logger) *Poller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Poller{sink: sink, logger: logger}
}

// NewPollerFromConfig wires the primary Atom source and, when enabled, the
// fallback JSON listing.
func NewPollerFromConfig(cfg config.FeedConfig, sink Sink, logger *zerolog.Logger) *Poller {
	opts := Options{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout}

	p := NewPoller(sink, logger)
	p.Add(NewAtomSource(cfg.PrimaryURL, domain.SourcePrimary, opts), cfg.PrimaryInterval)

	if cfg.FallbackEnabled && cfg.FallbackURL != "" {
		p.Add(NewListingSource(cfg.FallbackURL, domain.SourceFallback, opts), cfg.FallbackInterval)
	}

	return p
}

// Add registers a source polled every interval.
func (p *Poller) Add(source Source, interval time.Duration) {
	p.sources = append(p.sources, scheduled{source: source, interval: interval})
}

// Tasks returns one ticker task per source, for worker.TickerLoop.
func (p *Poller) Tasks() []worker.TickerTask {
	tasks := make([]worker.TickerTask, 0, len(p.sources))

	for _, s := range p.sources {
		source := s.source

		tasks = append(tasks, worker.TickerTask{
			Name:       "poll-" + string(source.Name()),
			Interval:   s.interval,
			RunOnStart: true,
			Run: func(ctx context.Context) {
				n, err := p.Poll(ctx, source)
				if err != nil {
					p.logger.Warn().Err(err).Str(logKeySource, string(source.Name())).Msg("feed poll failed")

					return
				}

				p.logger.Debug().Str(logKeySource, string(source.Name())).Int("accepted", n).Msg("feed polled")
			},
		})
	}

	return tasks
}

// Poll fetches one source and submits its posts oldest first. It returns how
// many posts entered resolution.
func (p *Poller) Poll(ctx context.Context, source Source) (int, error) {
	posts, err := source.Fetch(ctx)
	if err != nil {
		observability.FeedPollErrors.WithLabelValues(string(source.Name())).Inc()

		return 0, fmt.Errorf("poll %s feed: %w", source.Name(), err)
	}

	return p.SubmitAll(posts)
}

// SubmitAll submits posts oldest first.
func (p *Poller) SubmitAll(posts []domain.CandidatePost) (int, error) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.Before(posts[j].CreatedAt)
	})

	accepted := 0

	for _, post := range posts {
		state, err := p.sink.Submit(post)
		if err != nil {
			return accepted, fmt.Errorf("submit post: %w", err)
		}

		if state == domain.StateResolving {
			accepted++
		}
	}

	return accepted, nil
}

// PollAll polls every source once. A failing source does not stop the others.
func (p *Poller) PollAll(ctx context.Context) (int, error) {
	var (
		total int
		errs  []error
	)

	for _, s := range p.sources {
		n, err := p.Poll(ctx, s.source)
		total += n

		if err != nil {
			p.logger.Warn().Err(err).Str(logKeySource, string(s.source.Name())).Msg("feed poll failed")

			errs = append(errs, err)
		}
	}

	return total, errors.Join(errs...)
}
