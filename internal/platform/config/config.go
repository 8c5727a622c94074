package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Retry backoff modes.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Exhausted resolution policies.
const (
	ExhaustedDrop     = "drop"
	ExhaustedDegraded = "degraded"
)

// History backends.
const (
	HistoryBackendFile     = "file"
	HistoryBackendSQLite   = "sqlite"
	HistoryBackendPostgres = "postgres"
	HistoryBackendRedis    = "redis"
)

// History failure policies.
const (
	FailClosed = "fail_closed"
	FailOpen   = "fail_open"
)

// Notifier names.
const (
	NotifierLog      = "log"
	NotifierTelegram = "telegram"
	NotifierDiscord  = "discord"
)

var errInvalidConfig = errors.New("invalid config")

type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"local"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	HealthPort int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Pipeline
	DedupWindow           time.Duration `env:"DEDUP_WINDOW" envDefault:"30s"`
	MaxResolutionAttempts int           `env:"MAX_RESOLUTION_ATTEMPTS" envDefault:"5"`
	RetryDelay            time.Duration `env:"RETRY_DELAY" envDefault:"10s"`
	RetryBackoff          string        `env:"RETRY_BACKOFF" envDefault:"fixed"`
	RetryMaxDelay         time.Duration `env:"RETRY_MAX_DELAY" envDefault:"2m"`
	ExhaustedPolicy       string        `env:"EXHAUSTED_POLICY" envDefault:"degraded"`
	PostMaxAge            time.Duration `env:"POST_MAX_AGE" envDefault:"5m"`

	// History
	HistoryBackend       string        `env:"HISTORY_BACKEND" envDefault:"file"`
	HistoryPath          string        `env:"HISTORY_PATH" envDefault:"./data/history.json"`
	HistoryRetention     time.Duration `env:"HISTORY_RETENTION" envDefault:"24h"`
	HistoryPruneInterval time.Duration `env:"HISTORY_PRUNE_INTERVAL" envDefault:"10m"`
	HistoryFailurePolicy string        `env:"HISTORY_FAILURE_POLICY" envDefault:"fail_closed"`
	PostgresDSN          string        `env:"POSTGRES_DSN"`
	RedisURL             string        `env:"REDIS_URL"`
	RedisKeyPrefix       string        `env:"REDIS_KEY_PREFIX" envDefault:"goalbot"`

	// Feeds
	PrimaryFeedURL       string        `env:"PRIMARY_FEED_URL" envDefault:"https://www.reddit.com/r/soccer/new/.rss"`
	PrimaryPollInterval  time.Duration `env:"PRIMARY_POLL_INTERVAL" envDefault:"30s"`
	FallbackFeedEnabled  bool          `env:"FALLBACK_FEED_ENABLED" envDefault:"true"`
	FallbackFeedURL      string        `env:"FALLBACK_FEED_URL" envDefault:"https://www.reddit.com/r/soccer/new.json?limit=100"`
	FallbackPollInterval time.Duration `env:"FALLBACK_POLL_INTERVAL" envDefault:"60s"`
	FeedUserAgent        string        `env:"FEED_USER_AGENT" envDefault:"goal-clip-bot/1.0"`
	FeedTimeout          time.Duration `env:"FEED_TIMEOUT" envDefault:"20s"`

	// Normalizer
	TeamsFile         string   `env:"TEAMS_FILE"`
	ExcludedTerms     []string `env:"EXCLUDED_TERMS" envSeparator:"," envDefault:"test,match thread,post match,pre match,lineup"`
	RequireGoalSignal bool     `env:"REQUIRE_GOAL_SIGNAL" envDefault:"false"`
	GoalKeywords      []string `env:"GOAL_KEYWORDS" envSeparator:"," envDefault:"goal,score,scores,scored,scoring,strike,finish,tap in,header,penalty,free kick,volley,⚽"`

	// Resolver
	ResolverWorkers       int           `env:"RESOLVER_WORKERS" envDefault:"4"`
	ResolverPerHost       int           `env:"RESOLVER_PER_HOST" envDefault:"2"`
	FetchTimeout          time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`
	FetchRPS              float64       `env:"FETCH_RPS" envDefault:"5"`
	FetchSSRFGuard        bool          `env:"FETCH_SSRF_GUARD" envDefault:"true"`
	HostDirectEnabled     bool          `env:"HOST_DIRECT_ENABLED" envDefault:"true"`
	HostStreamffEnabled   bool          `env:"HOST_STREAMFF_ENABLED" envDefault:"true"`
	HostStreaminEnabled   bool          `env:"HOST_STREAMIN_ENABLED" envDefault:"true"`
	HostDubzEnabled       bool          `env:"HOST_DUBZ_ENABLED" envDefault:"true"`
	HostStreamableEnabled bool          `env:"HOST_STREAMABLE_ENABLED" envDefault:"true"`
	HostMirrorsEnabled    bool          `env:"HOST_MIRRORS_ENABLED" envDefault:"true"`
	ClipDomains           []string      `env:"CLIP_DOMAINS" envSeparator:"," envDefault:"streamja,streamye,streamff,streamable,dubz,streamin,streamgg,clippituser,matrix,juststream,streamwo,streambug,streamvi,streamsh,gfycat,imgur"`

	// Notifiers
	Notifiers         []string `env:"NOTIFIERS" envSeparator:"," envDefault:"log"`
	TelegramBotToken  string   `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID    int64    `env:"TELEGRAM_CHAT_ID"`
	DiscordWebhookURL string   `env:"DISCORD_WEBHOOK_URL"`
	DiscordUsername   string   `env:"DISCORD_USERNAME" envDefault:"Goal Bot"`
	DiscordAvatarURL  string   `env:"DISCORD_AVATAR_URL"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	normalizeLists(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func normalizeLists(cfg *Config) {
	cfg.ExcludedTerms = trimNonEmpty(cfg.ExcludedTerms)
	cfg.Notifiers = trimNonEmpty(cfg.Notifiers)
	cfg.ClipDomains = trimNonEmpty(cfg.ClipDomains)
	cfg.GoalKeywords = trimNonEmpty(cfg.GoalKeywords)

	for i, n := range cfg.Notifiers {
		cfg.Notifiers[i] = strings.ToLower(n)
	}
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}

	return out
}

// Validate checks enum values and required cross-field settings.
func (c *Config) Validate() error {
	if c.DedupWindow <= 0 {
		return fmt.Errorf("%w: DEDUP_WINDOW must be positive", errInvalidConfig)
	}

	if c.MaxResolutionAttempts <= 0 {
		return fmt.Errorf("%w: MAX_RESOLUTION_ATTEMPTS must be positive", errInvalidConfig)
	}

	if c.RetryDelay <= 0 {
		return fmt.Errorf("%w: RETRY_DELAY must be positive", errInvalidConfig)
	}

	if c.ResolverWorkers <= 0 || c.ResolverPerHost <= 0 {
		return fmt.Errorf("%w: RESOLVER_WORKERS and RESOLVER_PER_HOST must be positive", errInvalidConfig)
	}

	if err := oneOf("RETRY_BACKOFF", c.RetryBackoff, BackoffFixed, BackoffExponential); err != nil {
		return err
	}

	if err := oneOf("EXHAUSTED_POLICY", c.ExhaustedPolicy, ExhaustedDrop, ExhaustedDegraded); err != nil {
		return err
	}

	if err := oneOf("HISTORY_FAILURE_POLICY", c.HistoryFailurePolicy, FailClosed, FailOpen); err != nil {
		return err
	}

	if err := c.validateHistoryBackend(); err != nil {
		return err
	}

	return c.validateNotifiers()
}

func (c *Config) validateHistoryBackend() error {
	switch c.HistoryBackend {
	case HistoryBackendFile, HistoryBackendSQLite:
		if c.HistoryPath == "" {
			return fmt.Errorf("%w: HISTORY_PATH is required for %s backend", errInvalidConfig, c.HistoryBackend)
		}
	case HistoryBackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required for postgres backend", errInvalidConfig)
		}
	case HistoryBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL is required for redis backend", errInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: HISTORY_BACKEND %q", errInvalidConfig, c.HistoryBackend)
	}

	return nil
}

func (c *Config) validateNotifiers() error {
	for _, n := range c.Notifiers {
		switch n {
		case NotifierLog:
		case NotifierTelegram:
			if c.TelegramBotToken == "" || c.TelegramChatID == 0 {
				return fmt.Errorf("%w: telegram notifier needs TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID", errInvalidConfig)
			}
		case NotifierDiscord:
			if c.DiscordWebhookURL == "" {
				return fmt.Errorf("%w: discord notifier needs DISCORD_WEBHOOK_URL", errInvalidConfig)
			}
		default:
			return fmt.Errorf("%w: NOTIFIERS contains unknown %q", errInvalidConfig, n)
		}
	}

	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}

	return fmt.Errorf("%w: %s=%q, want one of %s", errInvalidConfig, key, value, strings.Join(allowed, "|"))
}
