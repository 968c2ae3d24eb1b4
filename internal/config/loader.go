package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"cache.ttlseconds":                     "cache.ttlSeconds",
			"cache.aggregatettlseconds":            "cache.aggregateTtlSeconds",
			"notify.webhookurl":                    "notify.webhookUrl",
			"notify.timeoutseconds":                "notify.timeoutSeconds",
			"scheduler.dailyrefresh.enabled":       "scheduler.dailyRefresh.enabled",
			"scheduler.dailyrefresh.schedule":      "scheduler.dailyRefresh.schedule",
			"scheduler.governmentrefresh.enabled":  "scheduler.governmentRefresh.enabled",
			"scheduler.governmentrefresh.schedule": "scheduler.governmentRefresh.schedule",
			"scheduler.cachecleanup.enabled":       "scheduler.cacheCleanup.enabled",
			"scheduler.cachecleanup.schedule":      "scheduler.cacheCleanup.schedule",
			"scheduler.marketrefresh.enabled":      "scheduler.marketRefresh.enabled",
			"scheduler.marketrefresh.schedule":     "scheduler.marketRefresh.schedule",
			"scheduler.healthcheck.enabled":        "scheduler.healthCheck.enabled",
			"scheduler.healthcheck.schedule":       "scheduler.healthCheck.schedule",
		}
		for _, name := range defaultCfg.SourceNames() {
			canonical["sources."+name+".apikey"] = "sources." + name + ".apiKey"
			canonical["sources."+name+".baseendpoint"] = "sources." + name + ".baseEndpoint"
			canonical["sources."+name+".dailylimit"] = "sources." + name + ".dailyLimit"
			canonical["sources."+name+".timeoutseconds"] = "sources." + name + ".timeoutSeconds"
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (CACHE__TTLSECONDS -> cache.ttlSeconds).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension on %s", path)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	sources := make(map[string]any, len(cfg.Sources))
	for name, src := range cfg.Sources {
		sources[name] = map[string]any{
			"enabled":        src.Enabled,
			"apiKey":         src.APIKey,
			"baseEndpoint":   src.BaseEndpoint,
			"dailyLimit":     src.DailyLimit,
			"timeoutSeconds": src.TimeoutSeconds,
		}
	}
	jobToMap := func(j JobConfig) map[string]any {
		out := map[string]any{"schedule": j.Schedule}
		if j.Enabled != nil {
			out["enabled"] = *j.Enabled
		}
		return out
	}
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
		},
		"cache": map[string]any{
			"directory":           cfg.Cache.Directory,
			"ttlSeconds":          cfg.Cache.TTLSeconds,
			"aggregateTtlSeconds": cfg.Cache.AggregateTTLSeconds,
			"redis": map[string]any{
				"address":  cfg.Cache.Redis.Address,
				"username": cfg.Cache.Redis.Username,
				"password": cfg.Cache.Redis.Password,
				"db":       cfg.Cache.Redis.DB,
			},
		},
		"sources": sources,
		"scheduler": map[string]any{
			"dailyRefresh":      jobToMap(cfg.Scheduler.DailyRefresh),
			"governmentRefresh": jobToMap(cfg.Scheduler.GovernmentRefresh),
			"cacheCleanup":      jobToMap(cfg.Scheduler.CacheCleanup),
			"marketRefresh":     jobToMap(cfg.Scheduler.MarketRefresh),
			"healthCheck":       jobToMap(cfg.Scheduler.HealthCheck),
		},
		"notify": map[string]any{
			"webhookUrl":     cfg.Notify.WebhookURL,
			"timeoutSeconds": cfg.Notify.TimeoutSeconds,
		},
	}
}
