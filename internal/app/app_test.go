package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func testConfig(t *testing.T, fallbackURL string) *config.Config {
	t.Helper()

	return &config.Config{
		AppEnv:                "test",
		DedupWindow:           30 * time.Second,
		MaxResolutionAttempts: 2,
		RetryDelay:            10 * time.Millisecond,
		RetryBackoff:          config.BackoffFixed,
		RetryMaxDelay:         time.Second,
		ExhaustedPolicy:       config.ExhaustedDrop,
		PostMaxAge:            5 * time.Minute,
		HistoryBackend:        config.HistoryBackendFile,
		HistoryPath:           filepath.Join(t.TempDir(), "history.json"),
		HistoryRetention:      24 * time.Hour,
		HistoryPruneInterval:  time.Minute,
		HistoryFailurePolicy:  config.FailClosed,
		FallbackFeedEnabled:   true,
		FallbackFeedURL:       fallbackURL,
		FeedTimeout:           5 * time.Second,
		ResolverWorkers:       2,
		ResolverPerHost:       2,
		FetchTimeout:          5 * time.Second,
		FetchRPS:              100,
		HostDirectEnabled:     true,
		Notifiers:             []string{config.NotifierLog},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, out *syncBuffer) *App {
	t.Helper()

	logger := zerolog.New(out)

	a, err := New(context.Background(), cfg, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func TestReplay_BypassesHistoryAndLogsEmission(t *testing.T) {
	mux := http.NewServeMux()

	var srvURL string

	mux.HandleFunc("/new.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, `{"data":{"after":"","children":[
			{"data":{"title":"Arsenal [1] - 0 Chelsea - Saka 12'","url":"https://v.redd.it/xyz",
			"created_utc":%d,"secure_media":{"reddit_video":{"fallback_url":"%s/clip.mp4?source=fallback"}}}}
		]}}`, time.Now().Add(-2*time.Hour).Unix(), srvURL)
	})
	mux.HandleFunc("/clip.mp4", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	srvURL = srv.URL

	out := &syncBuffer{}
	a := newTestApp(t, testConfig(t, srv.URL+"/new.json"), out)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, a.Replay(ctx, 3))

	logs := out.String()
	assert.Contains(t, logs, `"message":"GOAL"`)
	assert.Contains(t, logs, srv.URL+"/clip.mp4")
	assert.Zero(t, a.history.Len(), "replay never records emissions")

	// A second replay is not suppressed.
	require.NoError(t, a.Replay(ctx, 3))
	assert.Equal(t, 2, strings.Count(out.String(), `"message":"GOAL"`))
}

func TestReplay_RejectsNonPositiveHours(t *testing.T) {
	a := newTestApp(t, testConfig(t, "http://127.0.0.1:1/new.json"), &syncBuffer{})

	err := a.Replay(context.Background(), 0)
	require.ErrorIs(t, err, coreerrors.ErrInvalidInput)
}

func TestMaintainHistory_Prunes(t *testing.T) {
	a := newTestApp(t, testConfig(t, "http://127.0.0.1:1/new.json"), &syncBuffer{})

	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	old := domain.NewDedupKey("Arsenal", "Chelsea", domain.Score{Home: 1})
	recent := domain.NewDedupKey("Everton", "Fulham", domain.Score{Away: 1})

	require.NoError(t, a.history.Record(context.Background(), old, "https://streamff.co/v/a", now.Add(-25*time.Hour)))
	require.NoError(t, a.history.Record(context.Background(), recent, "https://streamff.co/v/b", now.Add(-time.Hour)))

	a.maintainHistory(context.Background(), 24*time.Hour)

	assert.Equal(t, 1, a.history.Len())
	assert.True(t, a.history.HasURL("https://streamff.co/v/b"))
	assert.NoError(t, a.ready(context.Background()))
}

func TestNew_RejectsBadTeamsFile(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/new.json")
	cfg.TeamsFile = filepath.Join(t.TempDir(), "missing.yaml")

	logger := zerolog.Nop()

	_, err := New(context.Background(), cfg, &logger)
	require.Error(t, err)
}
