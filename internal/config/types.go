package config

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Config holds every option the service reads at startup.
type Config struct {
	Server    ServerConfig            `koanf:"server"`
	Cache     CacheConfig             `koanf:"cache"`
	Sources   map[string]SourceConfig `koanf:"sources"`
	Scheduler SchedulerConfig         `koanf:"scheduler"`
	Notify    NotifyConfig            `koanf:"notify"`
}

// ServerConfig collects the bootstrap knobs for the admin HTTP surface.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CacheConfig describes the durable file store and the optional fast store.
type CacheConfig struct {
	Directory           string           `koanf:"directory"`
	TTLSeconds          int              `koanf:"ttlSeconds"`
	AggregateTTLSeconds int              `koanf:"aggregateTtlSeconds"`
	Redis               RedisCacheConfig `koanf:"redis"`
}

// RedisCacheConfig points the fast store at a redis-protocol server. An empty
// address disables the fast store entirely.
type RedisCacheConfig struct {
	Address  string `koanf:"address"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// SourceConfig describes one external loan data provider.
type SourceConfig struct {
	Enabled        bool   `koanf:"enabled"`
	APIKey         string `koanf:"apiKey"`
	BaseEndpoint   string `koanf:"baseEndpoint"`
	DailyLimit     int    `koanf:"dailyLimit"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
}

// Timeout returns the per-request timeout for the source, defaulting when the
// configured value is missing or nonsensical.
func (s SourceConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 12 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// SchedulerConfig carries one cron entry per named job.
type SchedulerConfig struct {
	DailyRefresh      JobConfig `koanf:"dailyRefresh"`
	GovernmentRefresh JobConfig `koanf:"governmentRefresh"`
	CacheCleanup      JobConfig `koanf:"cacheCleanup"`
	MarketRefresh     JobConfig `koanf:"marketRefresh"`
	HealthCheck       JobConfig `koanf:"healthCheck"`
}

// JobConfig enables a job and sets its cron schedule.
type JobConfig struct {
	Enabled  *bool  `koanf:"enabled"`
	Schedule string `koanf:"schedule"`
}

// IsEnabled treats a missing flag as enabled so the default jobs run without
// explicit opt-in.
func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// NotifyConfig points the scheduler's notification sink at a webhook. An empty
// URL disables notifications.
type NotifyConfig struct {
	WebhookURL     string `koanf:"webhookUrl"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
}

// Timeout bounds the webhook POST.
func (n NotifyConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// DefaultConfig returns the baseline the loader layers files and env on top of.
func DefaultConfig() Config {
	enabled := true
	disabled := false
	return Config{
		Server: ServerConfig{
			Listen:  ListenConfig{Address: "0.0.0.0", Port: 8080},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		},
		Cache: CacheConfig{
			Directory:           "cache",
			TTLSeconds:          24 * 60 * 60,
			AggregateTTLSeconds: 60 * 60,
		},
		Sources: map[string]SourceConfig{
			"govindia": {
				Enabled:      true,
				BaseEndpoint: "https://api.data.gov.in/resource",
				DailyLimit:   500,
			},
			"sba": {
				Enabled:      true,
				BaseEndpoint: "https://api.sba.gov/loans",
				DailyLimit:   1000,
			},
			"rapid": {
				Enabled:      false,
				BaseEndpoint: "https://loan-marketplace.p.rapidapi.com",
				DailyLimit:   100,
			},
			"market": {
				Enabled:      false,
				BaseEndpoint: "https://api.stlouisfed.org/fred",
				DailyLimit:   100,
			},
		},
		Scheduler: SchedulerConfig{
			DailyRefresh:      JobConfig{Enabled: &enabled, Schedule: "0 2 * * *"},
			GovernmentRefresh: JobConfig{Enabled: &disabled, Schedule: "0 * * * *"},
			CacheCleanup:      JobConfig{Enabled: &enabled, Schedule: "0 3 * * 0"},
			MarketRefresh:     JobConfig{Enabled: &disabled, Schedule: "*/30 * * * *"},
			HealthCheck:       JobConfig{Enabled: &enabled, Schedule: "*/15 * * * *"},
		},
		Notify: NotifyConfig{},
	}
}

// Validate rejects configurations the runtime cannot act on.
func (c Config) Validate() error {
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.Server.Listen.Port)
	}
	if c.Cache.Directory == "" {
		return errors.New("config: cache directory required")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("config: cache ttlSeconds must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Cache.AggregateTTLSeconds <= 0 {
		return fmt.Errorf("config: cache aggregateTtlSeconds must be positive, got %d", c.Cache.AggregateTTLSeconds)
	}
	for _, name := range c.SourceNames() {
		src := c.Sources[name]
		if src.Enabled && src.BaseEndpoint == "" {
			return fmt.Errorf("config: source %s enabled without a baseEndpoint", name)
		}
		if src.DailyLimit < 0 {
			return fmt.Errorf("config: source %s dailyLimit must not be negative", name)
		}
	}
	return nil
}

// SourceNames returns the configured source names in stable order.
func (c Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
