package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
)

const (
	defaultWindow = 30 * time.Second

	logKeyDedupKey = "dedup_key"
	logKeyURL      = "url"
	logKeyReason   = "reason"
	logKeyHolder   = "held_by"
)

// Reason says why an event was suppressed.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonRecent           Reason = "recent"
	ReasonInFlight         Reason = "in_flight"
	ReasonURL              Reason = "url"
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// History is the part of the history store the suppressor reads.
type History interface {
	WasRecentlyEmitted(key domain.DedupKey, window time.Duration, now time.Time) (bool, error)
	HasURL(url string) bool
}

// Suppressor decides whether a MatchEvent repeats one already emitted inside
// the window or one still being resolved. Check and claim happen under a
// single lock, and a claim is held until the emission is recorded, so two
// concurrent events with the same key can never both pass.
type Suppressor struct {
	mu       sync.Mutex
	history  History
	window   time.Duration
	inflight map[domain.DedupKey]string
	urls     map[string]struct{}
	bypass   bool
	logger   *zerolog.Logger
}

// Option configures a Suppressor.
type Option func(*Suppressor)

// WithHistoryBypass ignores the history store and the URL guard. In-flight
// claims still apply. Used by replay runs.
func WithHistoryBypass() Option {
	return func(s *Suppressor) { s.bypass = true }
}

func New(history History, window time.Duration, logger *zerolog.Logger, opts ...Option) *Suppressor {
	if window <= 0 {
		window = defaultWindow
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	s := &Suppressor{
		history:  history,
		window:   window,
		inflight: make(map[domain.DedupKey]string),
		urls:     make(map[string]struct{}),
		logger:   logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Window returns the suppression window.
func (s *Suppressor) Window() time.Duration {
	return s.window
}

// IsDuplicate reports whether event would be suppressed at now, without
// claiming it. The error is non-nil only when the history store is
// unavailable under a fail_open policy.
func (s *Suppressor) IsDuplicate(event domain.MatchEvent, now time.Time) (bool, Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.check(event, now)
}

// Claim checks event and, when it is new, marks its key in flight. Suppressed
// events return an error wrapping ErrDuplicate. The caller must Release the
// claim once the event reaches a terminal state, after any history write.
func (s *Suppressor) Claim(event domain.MatchEvent, now time.Time) (*Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dup, reason, err := s.check(event, now)
	if dup {
		logger := s.logger.With().
			Str(logKeyDedupKey, event.Key().String()).
			Str(logKeyURL, event.SourceURL).
			Str(logKeyReason, string(reason)).
			Logger()

		if err != nil {
			logger.Error().Err(err).Msg("history store unavailable, suppressing event")

			return nil, fmt.Errorf("%w (%s): %w", coreerrors.ErrDuplicate, reason, err)
		}

		logger.Info().Msg("duplicate suppressed")

		return nil, fmt.Errorf("%w (%s)", coreerrors.ErrDuplicate, reason)
	}

	key := event.Key()
	s.inflight[key] = event.SourceURL

	if event.SourceURL != "" {
		s.urls[event.SourceURL] = struct{}{}
	}

	return &Claim{s: s, key: key, url: event.SourceURL}, nil
}

// InFlight returns the number of held claims.
func (s *Suppressor) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.inflight)
}

func (s *Suppressor) check(event domain.MatchEvent, now time.Time) (bool, Reason, error) {
	key := event.Key()

	if holder, ok := s.inflight[key]; ok {
		s.logger.Debug().Str(logKeyDedupKey, key.String()).Str(logKeyHolder, holder).Msg("key in flight")

		return true, ReasonInFlight, nil
	}

	if _, ok := s.urls[event.SourceURL]; ok && event.SourceURL != "" {
		return true, ReasonInFlight, nil
	}

	if s.bypass {
		return false, ReasonNone, nil
	}

	if event.SourceURL != "" && s.history.HasURL(event.SourceURL) {
		return true, ReasonURL, nil
	}

	recent, err := s.history.WasRecentlyEmitted(key, s.window, now)
	if err != nil {
		return true, ReasonStoreUnavailable, err
	}

	if recent {
		return true, ReasonRecent, nil
	}

	return false, ReasonNone, nil
}

// Claim is an in-flight reservation of a DedupKey.
type Claim struct {
	s    *Suppressor
	key  domain.DedupKey
	url  string
	once sync.Once
}

// Key returns the claimed key.
func (c *Claim) Key() domain.DedupKey {
	return c.key
}

// Release frees the key. Safe to call more than once.
func (c *Claim) Release() {
	c.once.Do(func() {
		c.s.mu.Lock()
		defer c.s.mu.Unlock()

		delete(c.s.inflight, c.key)
		delete(c.s.urls, c.url)
	})
}
