package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test environment variable keys.
const (
	testEnvHistoryBackend = "HISTORY_BACKEND"
	testEnvNotifiers      = "NOTIFIERS"
	testEnvDedupWindow    = "DEDUP_WINDOW"
	testEnvPostgresDSN    = "POSTGRES_DSN"
)

// Test values.
const (
	testPostgresDSN   = "postgres://localhost/test"
	testDefaultEnv    = "local"
	testDefaultWindow = 30 * time.Second
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()

	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "APP_ENV", testEnvDedupWindow, "MAX_RESOLUTION_ATTEMPTS", "RETRY_DELAY",
		"EXHAUSTED_POLICY", testEnvHistoryBackend, "HISTORY_FAILURE_POLICY", testEnvNotifiers, "EXCLUDED_TERMS", "CLIP_DOMAINS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testDefaultEnv, cfg.AppEnv)
	assert.Equal(t, testDefaultWindow, cfg.DedupWindow)
	assert.Equal(t, 5, cfg.MaxResolutionAttempts)
	assert.Equal(t, 10*time.Second, cfg.RetryDelay)
	assert.Equal(t, ExhaustedDegraded, cfg.ExhaustedPolicy)
	assert.Equal(t, HistoryBackendFile, cfg.HistoryBackend)
	assert.Equal(t, FailClosed, cfg.HistoryFailurePolicy)
	assert.Equal(t, []string{NotifierLog}, cfg.Notifiers)
	assert.Contains(t, cfg.ExcludedTerms, "test")
	assert.True(t, cfg.ResolverCfg().Hosts.Streamff)
	assert.Contains(t, cfg.ResolverCfg().ClipDomains, "imgur")
	assert.True(t, cfg.PipelineCfg().DegradedOnExhaustion())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv(testEnvDedupWindow, "45s")
	t.Setenv(testEnvHistoryBackend, HistoryBackendPostgres)
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv(testEnvNotifiers, " Log , ")
	t.Setenv("HOST_DUBZ_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.PipelineCfg().DedupWindow)
	assert.Equal(t, testPostgresDSN, cfg.HistoryCfg().PostgresDSN)
	assert.Equal(t, []string{NotifierLog}, cfg.NotifyCfg().Transports)
	assert.False(t, cfg.ResolverCfg().Hosts.Dubz)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv(testEnvDedupWindow, "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DedupWindow:           time.Second,
			MaxResolutionAttempts: 3,
			RetryDelay:            time.Second,
			RetryBackoff:          BackoffFixed,
			ExhaustedPolicy:       ExhaustedDrop,
			HistoryBackend:        HistoryBackendFile,
			HistoryPath:           "history.json",
			HistoryFailurePolicy:  FailClosed,
			ResolverWorkers:       1,
			ResolverPerHost:       1,
			Notifiers:             []string{NotifierLog},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero window", mutate: func(c *Config) { c.DedupWindow = 0 }, wantErr: true},
		{name: "zero attempts", mutate: func(c *Config) { c.MaxResolutionAttempts = 0 }, wantErr: true},
		{name: "unknown backoff", mutate: func(c *Config) { c.RetryBackoff = "linear" }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.ExhaustedPolicy = "retry" }, wantErr: true},
		{name: "unknown failure policy", mutate: func(c *Config) { c.HistoryFailurePolicy = "maybe" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.HistoryBackend = "mongo" }, wantErr: true},
		{name: "redis without url", mutate: func(c *Config) { c.HistoryBackend = HistoryBackendRedis }, wantErr: true},
		{name: "telegram without token", mutate: func(c *Config) { c.Notifiers = []string{NotifierTelegram} }, wantErr: true},
		{name: "discord with webhook", mutate: func(c *Config) {
			c.Notifiers = []string{NotifierDiscord}
			c.DiscordWebhookURL = "https://discord.example/api/webhooks/1/x"
		}},
		{name: "unknown notifier", mutate: func(c *Config) { c.Notifiers = []string{"sms"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, errInvalidConfig)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestLoadTeams_Default(t *testing.T) {
	teams, err := LoadTeams("")
	require.NoError(t, err)
	require.NotEmpty(t, teams)

	var newcastle *Team

	for i := range teams {
		if teams[i].Name == "Newcastle United" {
			newcastle = &teams[i]
		}
	}

	require.NotNil(t, newcastle)
	assert.Contains(t, newcastle.Exclude, "Newcastle Jets")
	assert.Equal(t, 0x241F20, newcastle.ColorValue())
}

func TestLoadTeams_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teams.yaml")
	require.NoError(t, os.WriteFile(path, []byte("teams:\n  - name: Celtic\n    aliases: [The Bhoys]\n"), 0o600))

	teams, err := LoadTeams(path)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, []string{"Celtic", "The Bhoys"}, teams[0].Aliases)
	assert.Equal(t, 0, teams[0].ColorValue())
}

func TestParseTeams_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: "teams: []\n"},
		{name: "missing name", data: "teams:\n  - aliases: [X]\n"},
		{name: "shared alias", data: "teams:\n  - name: A\n    aliases: [City]\n  - name: B\n    aliases: [city]\n"},
		{name: "key separator in name", data: "teams:\n  - name: \"Arsenal|Women\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTeams([]byte(tt.data))
			require.ErrorIs(t, err, errInvalidConfig)
		})
	}
}
