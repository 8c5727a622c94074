package dedup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
)

const window = 30 * time.Second

var (
	t0          = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	errStoreOff = errors.New("store offline")
)

type fakeHistory struct {
	mu      sync.Mutex
	emitted map[domain.DedupKey]time.Time
	urls    map[string]bool
	err     error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{emitted: map[domain.DedupKey]time.Time{}, urls: map[string]bool{}}
}

func (f *fakeHistory) WasRecentlyEmitted(key domain.DedupKey, w time.Duration, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return true, f.err
	}

	at, ok := f.emitted[key]

	return ok && now.Sub(at) <= w, nil
}

func (f *fakeHistory) HasURL(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.urls[url]
}

func (f *fakeHistory) record(e domain.MatchEvent, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.emitted[e.Key()] = at
	f.urls[e.SourceURL] = true
}

func event(home, away string, h, a int, url string) domain.MatchEvent {
	return domain.MatchEvent{HomeTeam: home, AwayTeam: away, Score: domain.Score{Home: h, Away: a}, SourceURL: url}
}

func TestSuppressor_Window(t *testing.T) {
	history := newFakeHistory()
	s := New(history, window, nil)

	first := event("Arsenal", "Chelsea", 1, 0, "https://streamff.co/v/a")

	claim, err := s.Claim(first, t0)
	require.NoError(t, err)
	history.record(first, t0)
	claim.Release()

	tests := []struct {
		name   string
		event  domain.MatchEvent
		at     time.Duration
		want   bool
		reason Reason
	}{
		{name: "same key 10s later", event: event("Arsenal", "Chelsea", 1, 0, "https://streamin.me/v/b"), at: 10 * time.Second, want: true, reason: ReasonRecent},
		{name: "reversed order", event: event("Chelsea", "Arsenal", 0, 1, "https://streamin.me/v/b"), at: 10 * time.Second, want: true, reason: ReasonRecent},
		{name: "same key at window edge", event: event("Arsenal", "Chelsea", 1, 0, "https://streamin.me/v/b"), at: window, want: true, reason: ReasonRecent},
		{name: "same key 40s later", event: event("Arsenal", "Chelsea", 1, 0, "https://streamin.me/v/b"), at: 40 * time.Second, want: false},
		{name: "new score 40s later", event: event("Arsenal", "Chelsea", 2, 0, "https://streamin.me/v/c"), at: 40 * time.Second, want: false},
		{name: "same url much later", event: event("Arsenal", "Chelsea", 1, 0, "https://streamff.co/v/a"), at: time.Hour, want: true, reason: ReasonURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup, reason, err := s.IsDuplicate(tt.event, t0.Add(tt.at))
			require.NoError(t, err)
			assert.Equal(t, tt.want, dup)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestSuppressor_InFlight(t *testing.T) {
	s := New(newFakeHistory(), window, nil)

	claim, err := s.Claim(event("Arsenal", "Chelsea", 1, 0, "https://streamff.co/v/a"), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.InFlight())

	_, err = s.Claim(event("Chelsea", "Arsenal", 0, 1, "https://dubz.link/v/b"), t0.Add(time.Second))
	require.ErrorIs(t, err, coreerrors.ErrDuplicate)

	_, err = s.Claim(event("Everton", "Fulham", 1, 0, "https://streamff.co/v/a"), t0.Add(time.Second))
	require.ErrorIs(t, err, coreerrors.ErrDuplicate, "same source url while in flight")

	claim.Release()
	claim.Release()
	assert.Zero(t, s.InFlight())

	_, err = s.Claim(event("Chelsea", "Arsenal", 0, 1, "https://dubz.link/v/b"), t0.Add(2*time.Second))
	require.NoError(t, err, "released without a history write, so the key is free again")
}

func TestSuppressor_ConcurrentClaims(t *testing.T) {
	s := New(newFakeHistory(), window, nil)

	const workers = 32

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)

	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			<-start

			src := domain.SourcePrimary
			if i%2 == 1 {
				src = domain.SourceFallback
			}

			e := event("Arsenal", "Chelsea", 1, 0, "https://streamff.co/v/"+string(src))
			if _, err := s.Claim(e, t0); err == nil {
				winners.Add(1)
			}
		}(i)
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestSuppressor_StoreUnavailable(t *testing.T) {
	history := newFakeHistory()
	history.err = errStoreOff

	s := New(history, window, nil)

	_, err := s.Claim(event("Arsenal", "Chelsea", 1, 0, "https://streamff.co/v/a"), t0)
	require.ErrorIs(t, err, coreerrors.ErrDuplicate)
	require.ErrorIs(t, err, errStoreOff)

	dup, reason, err := s.IsDuplicate(event("Arsenal", "Chelsea", 1, 0, "https://streamff.co/v/a"), t0)
	require.Error(t, err)
	assert.True(t, dup)
	assert.Equal(t, ReasonStoreUnavailable, reason)
}

func TestSuppressor_HistoryBypass(t *testing.T) {
	history := newFakeHistory()
	e := event("Arsenal", "Chelsea", 1, 0, "https://streamff.co/v/a")
	history.record(e, t0)

	s := New(history, window, nil, WithHistoryBypass())

	claim, err := s.Claim(e, t0.Add(time.Second))
	require.NoError(t, err)

	_, err = s.Claim(e, t0.Add(time.Second))
	require.ErrorIs(t, err, coreerrors.ErrDuplicate)

	claim.Release()
}

func TestNew_DefaultWindow(t *testing.T) {
	assert.Equal(t, defaultWindow, New(newFakeHistory(), 0, nil).Window())
}
