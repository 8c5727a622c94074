package config

import "time"

// PipelineConfig holds event pipeline settings.
type PipelineConfig struct {
	DedupWindow     time.Duration
	PostMaxAge      time.Duration
	ExhaustedPolicy string
	Workers         int
	PerHost         int
}

// DegradedOnExhaustion reports whether exhausted events are emitted without a clip.
func (p PipelineConfig) DegradedOnExhaustion() bool {
	return p.ExhaustedPolicy == ExhaustedDegraded
}

// HistoryConfig holds history store settings.
type HistoryConfig struct {
	Backend        string
	Path           string
	Retention      time.Duration
	PruneInterval  time.Duration
	FailurePolicy  string
	PostgresDSN    string
	RedisURL       string
	RedisKeyPrefix string
}

// ResolverConfig holds video resolver settings.
type ResolverConfig struct {
	MaxAttempts   int
	RetryDelay    time.Duration
	RetryBackoff  string
	RetryMaxDelay time.Duration
	FetchTimeout  time.Duration
	FetchRPS      float64
	SSRFGuard     bool
	Hosts         HostToggles
	ClipDomains   []string
}

// HostToggles enables or disables individual host strategies.
type HostToggles struct {
	Direct     bool
	Streamff   bool
	Streamin   bool
	Dubz       bool
	Streamable bool
	Mirrors    bool
}

// FeedConfig holds feed poller settings.
type FeedConfig struct {
	PrimaryURL       string
	PrimaryInterval  time.Duration
	FallbackEnabled  bool
	FallbackURL      string
	FallbackInterval time.Duration
	UserAgent        string
	Timeout          time.Duration
}

// NormalizerConfig holds score normalizer settings.
type NormalizerConfig struct {
	TeamsFile         string
	ExcludedTerms     []string
	RequireGoalSignal bool
	GoalKeywords      []string
}

// NotifyConfig holds notification transport settings.
type NotifyConfig struct {
	Transports        []string
	TelegramBotToken  string
	TelegramChatID    int64
	DiscordWebhookURL string
	DiscordUsername   string
	DiscordAvatarURL  string
}

// PipelineCfg returns the pipeline configuration.
func (c *Config) PipelineCfg() PipelineConfig {
	return PipelineConfig{
		DedupWindow:     c.DedupWindow,
		PostMaxAge:      c.PostMaxAge,
		ExhaustedPolicy: c.ExhaustedPolicy,
		Workers:         c.ResolverWorkers,
		PerHost:         c.ResolverPerHost,
	}
}

// HistoryCfg returns the history store configuration.
func (c *Config) HistoryCfg() HistoryConfig {
	return HistoryConfig{
		Backend:        c.HistoryBackend,
		Path:           c.HistoryPath,
		Retention:      c.HistoryRetention,
		PruneInterval:  c.HistoryPruneInterval,
		FailurePolicy:  c.HistoryFailurePolicy,
		PostgresDSN:    c.PostgresDSN,
		RedisURL:       c.RedisURL,
		RedisKeyPrefix: c.RedisKeyPrefix,
	}
}

// ResolverCfg returns the video resolver configuration.
func (c *Config) ResolverCfg() ResolverConfig {
	return ResolverConfig{
		MaxAttempts:   c.MaxResolutionAttempts,
		RetryDelay:    c.RetryDelay,
		RetryBackoff:  c.RetryBackoff,
		RetryMaxDelay: c.RetryMaxDelay,
		FetchTimeout:  c.FetchTimeout,
		FetchRPS:      c.FetchRPS,
		SSRFGuard:     c.FetchSSRFGuard,
		Hosts: HostToggles{
			Direct:     c.HostDirectEnabled,
			Streamff:   c.HostStreamffEnabled,
			Streamin:   c.HostStreaminEnabled,
			Dubz:       c.HostDubzEnabled,
			Streamable: c.HostStreamableEnabled,
			Mirrors:    c.HostMirrorsEnabled,
		},
		ClipDomains: c.ClipDomains,
	}
}

// FeedCfg returns the feed poller configuration.
func (c *Config) FeedCfg() FeedConfig {
	return FeedConfig{
		PrimaryURL:       c.PrimaryFeedURL,
		PrimaryInterval:  c.PrimaryPollInterval,
		FallbackEnabled:  c.FallbackFeedEnabled,
		FallbackURL:      c.FallbackFeedURL,
		FallbackInterval: c.FallbackPollInterval,
		UserAgent:        c.FeedUserAgent,
		Timeout:          c.FeedTimeout,
	}
}

// NormalizerCfg returns the score normalizer configuration.
func (c *Config) NormalizerCfg() NormalizerConfig {
	return NormalizerConfig{
		TeamsFile:         c.TeamsFile,
		ExcludedTerms:     c.ExcludedTerms,
		RequireGoalSignal: c.RequireGoalSignal,
		GoalKeywords:      c.GoalKeywords,
	}
}

// NotifyCfg returns the notification configuration.
func (c *Config) NotifyCfg() NotifyConfig {
	return NotifyConfig{
		Transports:        c.Notifiers,
		TelegramBotToken:  c.TelegramBotToken,
		TelegramChatID:    c.TelegramChatID,
		DiscordWebhookURL: c.DiscordWebhookURL,
		DiscordUsername:   c.DiscordUsername,
		DiscordAvatarURL:  c.DiscordAvatarURL,
	}
}
