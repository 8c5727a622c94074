// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Run mode: feed pollers, event pipeline, history maintenance and the
//     health server, until the context is canceled
//   - Check mode: one poll of every feed, drain the pipeline, exit
//   - Replay mode: push the last N hours of the fallback listing through the
//     pipeline with duplicate suppression bypassed, logging instead of notifying
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/clips"
	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
	"github.com/lueurxax/goal-clip-bot/internal/ingest/feed"
	"github.com/lueurxax/goal-clip-bot/internal/output/notify"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
	"github.com/lueurxax/goal-clip-bot/internal/platform/observability"
	"github.com/lueurxax/goal-clip-bot/internal/platform/worker"
	"github.com/lueurxax/goal-clip-bot/internal/process/dedup"
	"github.com/lueurxax/goal-clip-bot/internal/process/normalize"
	"github.com/lueurxax/goal-clip-bot/internal/process/pipeline"
	"github.com/lueurxax/goal-clip-bot/internal/storage"
)

const (
	maintenanceTaskName = "history-maintenance"
	maintenanceTimeout  = 30 * time.Second
	logFieldPruned      = "pruned"
	logFieldAccepted    = "accepted"
	logFieldHours       = "hours"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg        *config.Config
	logger     *zerolog.Logger
	teams      []config.Team
	normalizer *normalize.Normalizer
	history    *storage.HistoryStore
	resolver   *clips.Resolver
	notifier   *notify.Multi
	now        func() time.Time
}

// New loads the team table, opens the history backend and builds the shared
// components. A history store that cannot be read is not fatal: the store is
// marked unavailable and its failure policy applies until it recovers.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	normCfg := cfg.NormalizerCfg()

	teams, err := config.LoadTeams(normCfg.TeamsFile)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}

	backend, err := storage.OpenBackend(ctx, cfg.HistoryCfg(), logger)
	if err != nil {
		return nil, fmt.Errorf("open history backend: %w", err)
	}

	history := storage.NewHistoryStore(backend, cfg.HistoryFailurePolicy, logger)

	records, err := history.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Str("policy", cfg.HistoryFailurePolicy).Msg("history store unavailable at startup")
	} else {
		logger.Info().Int("records", len(records)).Msg("history loaded")
	}

	notifier, err := notify.New(cfg.NotifyCfg(), teams, logger)
	if err != nil {
		_ = history.Close() //nolint:errcheck // already failing

		return nil, fmt.Errorf("build notifiers: %w", err)
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		teams:      teams,
		normalizer: newNormalizer(normCfg, teams),
		history:    history,
		resolver:   newResolver(cfg.ResolverCfg(), logger),
		notifier:   notifier,
		now:        time.Now,
	}, nil
}

func newNormalizer(cfg config.NormalizerConfig, teams []config.Team) *normalize.Normalizer {
	var opts []normalize.Option
	if cfg.RequireGoalSignal {
		opts = append(opts, normalize.WithGoalSignal(cfg.GoalKeywords))
	}

	return normalize.New(normalize.NewTeamIndex(teams), cfg.ExcludedTerms, opts...)
}

func newResolver(cfg config.ResolverConfig, logger *zerolog.Logger) *clips.Resolver {
	fetcher := clips.NewFetcher(clips.FetcherOptions{
		RPS:       cfg.FetchRPS,
		Timeout:   cfg.FetchTimeout,
		SSRFGuard: cfg.SSRFGuard,
	})

	return clips.NewResolver(fetcher, cfg, logger)
}

// Close releases the history backend.
func (a *App) Close() error {
	if err := a.history.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}

	return nil
}

func (a *App) newPipeline(cfg config.PipelineConfig, notifier pipeline.Notifier, history pipeline.History, dedupOpts ...dedup.Option) *pipeline.Pipeline {
	suppressor := dedup.New(a.history, cfg.DedupWindow, a.logger, dedupOpts...)

	return pipeline.New(a.normalizer, suppressor, a.resolver, history, notifier, cfg, a.logger)
}

// Run polls the feeds until ctx is canceled. In-flight events are abandoned
// on shutdown.
func (a *App) Run(ctx context.Context) error {
	p := a.newPipeline(a.cfg.PipelineCfg(), a.notifier, a.history)
	defer p.Close()

	poller := feed.NewPollerFromConfig(a.cfg.FeedCfg(), p, a.logger)

	go func() {
		if err := a.startHealthServer(ctx, poller); err != nil {
			a.logger.Error().Err(err).Msg("health check server error")
		}
	}()

	tasks := append(poller.Tasks(), a.maintenanceTask())

	a.logger.Info().
		Strs("notifiers", a.notifier.Transports()).
		Dur("dedup_window", a.cfg.DedupWindow).
		Msg("goal bot running")

	if err := worker.TickerLoop(ctx, worker.TickerConfig{
		Name:   "goal-bot",
		Tasks:  tasks,
		Logger: a.logger,
	}); err != nil {
		return fmt.Errorf("run loop: %w", err)
	}

	return nil
}

func (a *App) startHealthServer(ctx context.Context, poller *feed.Poller) error {
	srv := observability.NewServer(a.cfg.HealthPort, a.ready, poller.PollAll, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

func (a *App) ready(context.Context) error {
	if !a.history.Available() {
		return coreerrors.ErrHistoryStoreUnavailable
	}

	return nil
}

func (a *App) maintenanceTask() worker.TickerTask {
	histCfg := a.cfg.HistoryCfg()

	return worker.TickerTask{
		Name:     maintenanceTaskName,
		Interval: histCfg.PruneInterval,
		Run: func(ctx context.Context) {
			a.maintainHistory(ctx, histCfg.Retention)
		},
	}
}

// maintainHistory probes an unavailable store and prunes expired records.
func (a *App) maintainHistory(ctx context.Context, retention time.Duration) {
	err := worker.RunWithTimeout(ctx, maintenanceTimeout, func(ctx context.Context) error {
		if err := a.history.Recover(ctx); err != nil {
			return err
		}

		pruned, err := a.history.Prune(ctx, a.now(), retention)
		if err != nil {
			return err
		}

		a.logger.Debug().Int(logFieldPruned, pruned).Int("keys", a.history.Len()).Msg("history pruned")

		return nil
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("history maintenance failed")
	}
}

// Check polls every feed once and waits for the accepted events to finish.
func (a *App) Check(ctx context.Context) error {
	p := a.newPipeline(a.cfg.PipelineCfg(), a.notifier, a.history)
	defer p.Close()

	poller := feed.NewPollerFromConfig(a.cfg.FeedCfg(), p, a.logger)

	accepted, pollErr := poller.PollAll(ctx)

	a.logger.Info().Int(logFieldAccepted, accepted).Msg("check poll done, draining pipeline")

	if err := p.Wait(ctx); err != nil {
		return errors.Join(pollErr, err)
	}

	if pollErr != nil {
		return fmt.Errorf("check: %w", pollErr)
	}

	return nil
}

// Replay pushes the fallback listing of the last hours through the pipeline
// with duplicate suppression bypassed. Emissions are logged, not delivered,
// and nothing is written to the history store.
func (a *App) Replay(ctx context.Context, hours int) error {
	if hours <= 0 {
		return fmt.Errorf("%w: replay hours must be positive", coreerrors.ErrInvalidInput)
	}

	feedCfg := a.cfg.FeedCfg()
	source := feed.NewListingSource(feedCfg.FallbackURL, domain.SourceFallback, feed.Options{
		UserAgent: feedCfg.UserAgent,
		Timeout:   feedCfg.Timeout,
	})

	since := a.now().Add(-time.Duration(hours) * time.Hour)

	posts, err := source.FetchSince(ctx, since)
	if err != nil {
		return fmt.Errorf("replay fetch: %w", err)
	}

	a.logger.Info().Int(logFieldHours, hours).Int("posts", len(posts)).Msg("replaying fallback listing")

	cfg := a.cfg.PipelineCfg()
	cfg.PostMaxAge = 0

	p := a.newPipeline(cfg, notify.NewMulti(a.logger, notify.NewLog(a.logger)), discardHistory{}, dedup.WithHistoryBypass())
	defer p.Close()

	accepted, err := feed.NewPoller(p, a.logger).SubmitAll(posts)
	if err != nil {
		return fmt.Errorf("replay submit: %w", err)
	}

	if err := p.Wait(ctx); err != nil {
		return err
	}

	a.logger.Info().Int(logFieldAccepted, accepted).Msg("replay finished")

	return nil
}

// discardHistory drops emission records during replays.
type discardHistory struct{}

func (discardHistory) Record(context.Context, domain.DedupKey, string, time.Time) error {
	return nil
}
