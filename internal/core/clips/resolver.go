// Package clips resolves the outer link of a goal post into a direct playable
// video link. Each supported host family is a Strategy; the Resolver picks one
// by host, runs a single attempt and reports a typed Outcome. Retry timing is
// left to the caller, which re-submits after Outcome.RetryAfter.
package clips

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
	"github.com/lueurxax/goal-clip-bot/internal/platform/observability"
)

const (
	logKeyURL      = "url"
	logKeyStrategy = "strategy"
	logKeyAttempt  = "attempt"

	resultResolved = "resolved"
	resultPending  = "pending"
	resultFailed   = "failed"
)

// Kind classifies a resolution outcome.
type Kind int

const (
	Resolved Kind = iota
	Pending
	Failed
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return resultResolved
	case Pending:
		return resultPending
	default:
		return resultFailed
	}
}

// Reason explains a Failed outcome.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonUnsupportedHost     Reason = "UNSUPPORTED_HOST"
	ReasonExtractionExhausted Reason = "EXTRACTION_EXHAUSTED"
)

// Outcome is the result of one resolution attempt.
type Outcome struct {
	Kind       Kind
	ClipURL    string
	Strategy   string
	Reason     Reason
	Err        error
	RetryAfter time.Duration
}

// Resolver dispatches URLs to host strategies.
type Resolver struct {
	client     Client
	strategies []Strategy
	direct     Strategy
	cfg        config.ResolverConfig
	now        func() time.Time
	logger     *zerolog.Logger
}

// NewResolver builds a resolver over the strategies enabled in cfg.Hosts.
func NewResolver(client Client, cfg config.ResolverConfig, logger *zerolog.Logger) *Resolver {
	return NewResolverWithStrategies(client, cfg, Strategies(cfg.Hosts), logger)
}

// NewResolverWithStrategies builds a resolver over an explicit strategy list.
func NewResolverWithStrategies(client Client, cfg config.ResolverConfig, strategies []Strategy, logger *zerolog.Logger) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	r := &Resolver{
		client:     client,
		strategies: strategies,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}

	for _, s := range strategies {
		if s.Name() == StrategyDirect {
			r.direct = s
		}
	}

	return r
}

// NewAttempt starts the retry state for a source link.
func (r *Resolver) NewAttempt(sourceURL, mediaURL string) *domain.ResolutionAttempt {
	return &domain.ResolutionAttempt{
		ID:        uuid.NewString(),
		SourceURL: sourceURL,
		MediaURL:  mediaURL,
		Host:      hostOf(normalizeURL(sourceURL)),
	}
}

// Supports reports whether some enabled strategy would handle the link.
func (r *Resolver) Supports(sourceURL, mediaURL string) bool {
	_, _, ok := r.selectStrategy(sourceURL, mediaURL)

	return ok
}

// Admits reports whether a post linking to sourceURL belongs in the pipeline:
// an enabled strategy handles it, or its host is one of the configured clip
// domains. Clip domains without a strategy fail at resolution time.
func (r *Resolver) Admits(sourceURL, mediaURL string) bool {
	if r.Supports(sourceURL, mediaURL) {
		return true
	}

	u, err := url.Parse(normalizeURL(sourceURL))
	if err != nil || u.Hostname() == "" {
		return false
	}

	return matchesDomain(u.Hostname(), r.cfg.ClipDomains)
}

// Attempt runs one extraction for a and updates its counter, last error and
// next retry time. Unsupported hosts fail without consuming an attempt.
func (r *Resolver) Attempt(ctx context.Context, a *domain.ResolutionAttempt) Outcome {
	strategy, target, ok := r.selectStrategy(a.SourceURL, a.MediaURL)
	if !ok {
		err := fmt.Errorf("%s: %w", a.SourceURL, coreerrors.ErrUnsupportedHost)
		a.LastError = err

		observability.ResolutionAttempts.WithLabelValues("none", resultFailed).Inc()

		return Outcome{Kind: Failed, Reason: ReasonUnsupportedHost, Err: err}
	}

	a.Count++
	a.Host = target.URL.Hostname()

	logger := r.logger.With().
		Str(logKeyURL, a.SourceURL).
		Str(logKeyStrategy, strategy.Name()).
		Int(logKeyAttempt, a.Count).
		Logger()

	start := r.now()
	link, err := strategy.Extract(ctx, r.client, target)

	observability.ResolutionDuration.WithLabelValues(strategy.Name()).Observe(r.now().Sub(start).Seconds())

	if err == nil && link != "" {
		a.LastError = nil
		a.NextRetryAt = time.Time{}

		observability.ResolutionAttempts.WithLabelValues(strategy.Name(), resultResolved).Inc()
		logger.Debug().Str("clip", link).Msg("clip resolved")

		return Outcome{Kind: Resolved, ClipURL: link, Strategy: strategy.Name()}
	}

	if err == nil {
		err = coreerrors.ErrNoClipFound
	}

	err = fmt.Errorf("%w: %w", coreerrors.ErrTransientExtraction, err)
	a.LastError = err

	if a.Count >= r.cfg.MaxAttempts {
		observability.ResolutionAttempts.WithLabelValues(strategy.Name(), resultFailed).Inc()
		logger.Error().Err(err).Msg("clip resolution exhausted")

		return Outcome{
			Kind:     Failed,
			Strategy: strategy.Name(),
			Reason:   ReasonExtractionExhausted,
			Err:      fmt.Errorf("%w after %d attempts: %w", coreerrors.ErrExtractionExhausted, a.Count, err),
		}
	}

	delay := r.Backoff(a.Count)
	a.NextRetryAt = r.now().Add(delay)

	observability.ResolutionAttempts.WithLabelValues(strategy.Name(), resultPending).Inc()
	logger.Warn().Err(err).Dur("retry_in", delay).Msg("clip resolution failed, will retry")

	return Outcome{Kind: Pending, Strategy: strategy.Name(), Err: err, RetryAfter: delay}
}

// Backoff returns the delay before attempt number completed+1.
func (r *Resolver) Backoff(completed int) time.Duration {
	delay := r.cfg.RetryDelay
	if r.cfg.RetryBackoff != config.BackoffExponential || completed <= 1 {
		return delay
	}

	for i := 1; i < completed; i++ {
		delay *= 2

		if r.cfg.RetryMaxDelay > 0 && delay >= r.cfg.RetryMaxDelay {
			return r.cfg.RetryMaxDelay
		}
	}

	return delay
}

func (r *Resolver) selectStrategy(sourceURL, mediaURL string) (Strategy, Target, bool) {
	u, err := url.Parse(normalizeURL(sourceURL))
	if err != nil || u.Hostname() == "" {
		return nil, Target{}, false
	}

	target := Target{URL: u, MediaURL: mediaURL}

	for _, s := range r.strategies {
		if s.Matches(u) {
			return s, target, true
		}
	}

	if mediaURL != "" && r.direct != nil {
		return r.direct, target, true
	}

	return nil, Target{}, false
}

// matchesDomain reports whether host contains one of the domains on label
// boundaries: "imgur" matches i.imgur.com, "cdn-cf-east.streamable" matches
// cdn-cf-east.streamable.com, and neither matches notimgur.com.
func matchesDomain(host string, domains []string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")

	for _, d := range domains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d == "" {
			continue
		}

		if host == d || strings.HasPrefix(host, d+".") || strings.HasSuffix(host, "."+d) || strings.Contains(host, "."+d+".") {
			return true
		}
	}

	return false
}

// normalizeURL adds a missing https scheme.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}

	return raw
}
