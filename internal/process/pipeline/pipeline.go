// Package pipeline runs the per-event state machine: a candidate post is
// gated on its link host, normalized, checked for duplicates, resolved to a clip with delayed retries
// and finally emitted and recorded.
//
// Submit is synchronous up to the RESOLVING state, so the feed pollers learn
// straight away whether a post was filtered or suppressed. Resolution runs on
// a bounded worker pool with a per-host cap; retries are timers that re-enter
// the pool and never block other events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/clips"
	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
	"github.com/lueurxax/goal-clip-bot/internal/platform/observability"
	"github.com/lueurxax/goal-clip-bot/internal/platform/worker"
	"github.com/lueurxax/goal-clip-bot/internal/process/dedup"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("pipeline closed")

	errResolvePanic = errors.New("resolution panicked")
)

type Normalizer interface {
	Parse(post domain.CandidatePost) (domain.MatchEvent, error)
}

type Suppressor interface {
	Claim(event domain.MatchEvent, now time.Time) (*dedup.Claim, error)
}

type Resolver interface {
	Admits(sourceURL, mediaURL string) bool
	NewAttempt(sourceURL, mediaURL string) *domain.ResolutionAttempt
	Attempt(ctx context.Context, a *domain.ResolutionAttempt) clips.Outcome
}

type History interface {
	Record(ctx context.Context, key domain.DedupKey, url string, now time.Time) error
}

type Notifier interface {
	Notify(ctx context.Context, req domain.EmitRequest) error
}

// Result reports the terminal state of one submitted event.
type Result struct {
	Event    domain.MatchEvent
	State    domain.EventState
	ClipURL  string
	Attempts int
	Err      error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers a callback invoked once per event that reached
// RESOLVING, when it becomes terminal.
func WithObserver(fn func(Result)) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

type task struct {
	event   domain.MatchEvent
	post    domain.CandidatePost
	attempt *domain.ResolutionAttempt
	claim   *dedup.Claim
	timer   *time.Timer

	finished atomic.Bool
}

type Pipeline struct {
	normalizer Normalizer
	suppressor Suppressor
	resolver   Resolver
	history    History
	notifier   Notifier
	cfg        config.PipelineConfig
	logger     *zerolog.Logger
	observer   func(Result)
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	workers chan struct{}
	hostsMu sync.Mutex
	hosts   map[string]chan struct{}

	mu      sync.Mutex
	closed  bool
	waiting map[string]*task
	wg      sync.WaitGroup
}

func New(
	normalizer Normalizer,
	suppressor Suppressor,
	resolver Resolver,
	history History,
	notifier Notifier,
	cfg config.PipelineConfig,
	logger *zerolog.Logger,
	opts ...Option,
) *Pipeline {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	if cfg.PerHost <= 0 {
		cfg.PerHost = DefaultPerHost
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pipeline{
		normalizer: normalizer,
		suppressor: suppressor,
		resolver:   resolver,
		history:    history,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		workers:    make(chan struct{}, cfg.Workers),
		hosts:      make(map[string]chan struct{}),
		waiting:    make(map[string]*task),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Submit runs a post through filtering, normalization and the duplicate
// check. Accepted events are handed to the resolver pool and Submit returns
// StateResolving; the terminal state is reported to the observer.
func (p *Pipeline) Submit(post domain.CandidatePost) (domain.EventState, error) {
	observability.PostsIngested.WithLabelValues(string(post.Source)).Inc()

	now := p.now()
	logger := p.logger.With().Str(LogFieldURL, post.URL).Str(LogFieldSource, string(post.Source)).Logger()

	if p.cfg.PostMaxAge > 0 && !post.CreatedAt.IsZero() && now.Sub(post.CreatedAt) > p.cfg.PostMaxAge {
		logger.Debug().Time("created_at", post.CreatedAt).Msg("post too old")

		return p.settle(domain.StateFilteredOut), nil
	}

	// Only clip-host links may claim a dedup key.
	if !p.resolver.Admits(post.URL, post.MediaURL) {
		logger.Debug().Str("title", post.Title).Msg("link host is not a clip host")

		return p.settle(domain.StateFilteredOut), nil
	}

	event, err := p.normalizer.Parse(post)
	if err != nil {
		logger.Debug().Err(err).Str("title", post.Title).Msg("post filtered out")

		return p.settle(domain.StateFilteredOut), nil
	}

	event.ObservedAt = now

	claim, err := p.suppressor.Claim(event, now)
	if err != nil {
		if !errors.Is(err, coreerrors.ErrDuplicate) {
			return p.settle(domain.StateDuplicate), fmt.Errorf("claim %s: %w", event.Key(), err)
		}

		return p.settle(domain.StateDuplicate), nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		claim.Release()

		return domain.StateDropped, ErrClosed
	}

	p.wg.Add(1)
	p.mu.Unlock()

	observability.EventsInFlight.Inc()

	t := &task{
		event:   event,
		post:    post,
		attempt: p.resolver.NewAttempt(event.SourceURL, event.MediaURL),
		claim:   claim,
	}

	p.taskLogger(t).Info().Str("title", post.Title).Msg("goal accepted, resolving clip")

	go p.resolve(t)

	return domain.StateResolving, nil
}

// Wait blocks until every accepted event is terminal or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for pipeline: %w", ctx.Err())
	}
}

// Close abandons pending retries and in-flight resolutions and waits for
// running goroutines to release their claims. Nothing is persisted for
// abandoned events.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	p.cancel()

	var stopped []*task

	for id, t := range p.waiting {
		if t.timer.Stop() {
			stopped = append(stopped, t)
		}

		delete(p.waiting, id)
	}
	p.mu.Unlock()

	for _, t := range stopped {
		p.abandon(t)
	}

	p.wg.Wait()
}

// resolve runs one attempt and hands the task to emit, schedule or fail.
// A panic anywhere along the way abandons the task so its claim is released.
func (p *Pipeline) resolve(t *task) {
	defer worker.RecoverPanicAnd(p.logger, "resolve clip", func() {
		p.finish(t, domain.StateDropped, "", errResolvePanic)
	})

	out, ok := p.attempt(t)
	if !ok || p.ctx.Err() != nil {
		p.abandon(t)

		return
	}

	switch out.Kind {
	case clips.Resolved:
		p.emit(t, out.ClipURL, nil)
	case clips.Pending:
		p.schedule(t, out.RetryAfter)
	default:
		p.fail(t, out)
	}
}

// attempt runs one resolution while holding a worker slot and a host slot.
func (p *Pipeline) attempt(t *task) (clips.Outcome, bool) {
	if !p.acquire(p.workers) {
		return clips.Outcome{}, false
	}
	defer func() { <-p.workers }()

	hostSlots := p.hostSlots(t.attempt.Host)
	if !p.acquire(hostSlots) {
		return clips.Outcome{}, false
	}
	defer func() { <-hostSlots }()

	return p.resolver.Attempt(p.ctx, t.attempt), true
}

func (p *Pipeline) acquire(slots chan struct{}) bool {
	select {
	case slots <- struct{}{}:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *Pipeline) hostSlots(host string) chan struct{} {
	if host == "" {
		host = unknownHostSemaphores
	}

	p.hostsMu.Lock()
	defer p.hostsMu.Unlock()

	slots, ok := p.hosts[host]
	if !ok {
		slots = make(chan struct{}, p.cfg.PerHost)
		p.hosts[host] = slots
	}

	return slots
}

func (p *Pipeline) schedule(t *task, delay time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.abandon(t)

		return
	}

	p.taskLogger(t).Debug().Dur(LogFieldRetryIn, delay).Msg("retry scheduled")

	p.waiting[t.attempt.ID] = t
	t.timer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		_, ok := p.waiting[t.attempt.ID]
		delete(p.waiting, t.attempt.ID)
		p.mu.Unlock()

		// Close removed the task but could not stop the timer in time.
		if !ok {
			p.abandon(t)

			return
		}

		p.resolve(t)
	})
	p.mu.Unlock()
}

func (p *Pipeline) fail(t *task, out clips.Outcome) {
	logger := p.taskLogger(t).With().Str(LogFieldReason, string(out.Reason)).Logger()
	logger.Warn().Err(out.Err).Str(LogFieldState, string(domain.StateFailed)).Msg("clip resolution failed")

	if p.cfg.DegradedOnExhaustion() {
		p.emit(t, "", out.Err)

		return
	}

	p.finish(t, domain.StateDropped, "", out.Err)
}

// emit notifies the transports and records the emission before the claim is
// released, so a concurrent duplicate sees either the claim or the record.
func (p *Pipeline) emit(t *task, clipURL string, cause error) {
	state := domain.StateEmitted
	if clipURL == "" {
		state = domain.StateEmittedWithoutClip
	}

	req := domain.EmitRequest{
		HomeTeam:    t.event.HomeTeam,
		AwayTeam:    t.event.AwayTeam,
		Score:       t.event.Score,
		ScoringTeam: t.event.ScoringTeam(),
		Minute:      t.event.Minute,
		Scorer:      t.event.Scorer,
		Title:       t.event.RawTitle,
		ClipURL:     clipURL,
		SourceURL:   t.event.SourceURL,
		Permalink:   t.post.Permalink,
	}

	logger := p.taskLogger(t)

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), DefaultNotifyTimeout)
	if err := p.notifier.Notify(notifyCtx, req); err != nil {
		logger.Warn().Err(err).Msg("notification delivery reported an error")
	}

	cancel()

	now := p.now()

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), DefaultRecordTimeout)
	if err := p.history.Record(recordCtx, t.event.Key(), t.event.SourceURL, now); err != nil {
		logger.Error().Err(err).Msg("failed to record emission")
	}

	cancel()

	if !t.post.CreatedAt.IsZero() {
		observability.TimeToEmitSeconds.Observe(now.Sub(t.post.CreatedAt).Seconds())
	}

	p.finish(t, state, clipURL, cause)
}

// abandon ends an event without emission or history write.
func (p *Pipeline) abandon(t *task) {
	p.taskLogger(t).Debug().Msg("resolution abandoned")
	p.finish(t, domain.StateDropped, "", context.Canceled)
}

// finish makes the task terminal. Only the first call has any effect.
func (p *Pipeline) finish(t *task, state domain.EventState, clipURL string, err error) {
	if !t.finished.CompareAndSwap(false, true) {
		return
	}

	defer p.wg.Done()

	t.claim.Release()

	observability.EventsInFlight.Dec()
	p.settle(state)

	logger := p.taskLogger(t)
	if state == domain.StateDropped {
		logger.Info().Err(err).Str(LogFieldState, string(state)).Msg("event dropped")
	} else {
		logger.Info().Str(LogFieldState, string(state)).Str(LogFieldClip, clipURL).Msg("goal emitted")
	}

	if p.observer != nil {
		p.observer(Result{
			Event:    t.event,
			State:    state,
			ClipURL:  clipURL,
			Attempts: t.attempt.Count,
			Err:      err,
		})
	}
}

func (p *Pipeline) settle(state domain.EventState) domain.EventState {
	observability.PipelineOutcomes.WithLabelValues(string(state)).Inc()

	return state
}

func (p *Pipeline) taskLogger(t *task) *zerolog.Logger {
	logger := p.logger.With().
		Str(LogFieldEventID, t.attempt.ID).
		Str(LogFieldDedupKey, t.event.Key().String()).
		Str(LogFieldURL, t.event.SourceURL).
		Int(LogFieldAttempts, t.attempt.Count).
		Logger()

	return &logger
}
