package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/l0p7/loanfeed/internal/cache"
	"github.com/l0p7/loanfeed/internal/config"
	"github.com/l0p7/loanfeed/internal/source"
)

// Canonical job names, also the path segments of the manual trigger endpoint.
const (
	JobDailyRefresh      = "dailyRefresh"
	JobGovernmentRefresh = "governmentRefresh"
	JobCacheCleanup      = "cacheCleanup"
	JobMarketRefresh     = "marketRefresh"
	JobHealthCheck       = "healthCheck"
)

// healthTTL keeps health snapshots short-lived; a stale snapshot is worse
// than none.
const healthTTL = 15 * time.Minute

// healthSnapshotName is the cache source label for health-check results.
const healthSnapshotName = "health-check"

// HealthSnapshot is what the health job persists for the status endpoint.
type HealthSnapshot struct {
	Cache     cache.Stats                    `json:"cache"`
	Sources   map[string]source.SourceHealth `json:"sources"`
	CheckedAt time.Time                      `json:"checkedAt"`
}

// RegisterJobs attaches the standard job set using the configured schedules.
func RegisterJobs(s *Scheduler, cfg config.SchedulerConfig, agg *source.Aggregator, store *cache.Store) error {
	jobs := []struct {
		name   string
		cfg    config.JobConfig
		notify bool
		run    runner
	}{
		{JobDailyRefresh, cfg.DailyRefresh, true, dailyRefresh(agg)},
		{JobGovernmentRefresh, cfg.GovernmentRefresh, false, sourceRefresh(agg, "govindia")},
		{JobCacheCleanup, cfg.CacheCleanup, false, cacheCleanup(store)},
		{JobMarketRefresh, cfg.MarketRefresh, false, marketRefresh(agg)},
		{JobHealthCheck, cfg.HealthCheck, false, healthCheck(agg, store)},
	}
	for _, j := range jobs {
		if err := s.Register(j.name, j.cfg.Schedule, j.cfg.IsEnabled(), j.notify, j.run); err != nil {
			return err
		}
	}
	return nil
}

// ApplySchedules pushes a reloaded configuration's cron expressions onto the
// live scheduler. Unknown jobs in the registry are left alone.
func ApplySchedules(s *Scheduler, cfg config.SchedulerConfig) {
	updates := map[string]string{
		JobDailyRefresh:      cfg.DailyRefresh.Schedule,
		JobGovernmentRefresh: cfg.GovernmentRefresh.Schedule,
		JobCacheCleanup:      cfg.CacheCleanup.Schedule,
		JobMarketRefresh:     cfg.MarketRefresh.Schedule,
		JobHealthCheck:       cfg.HealthCheck.Schedule,
	}
	for _, status := range s.GetStatus() {
		schedule, ok := updates[status.Name]
		if !ok || schedule == "" || schedule == status.Schedule {
			continue
		}
		if err := s.UpdateSchedule(status.Name, schedule); err != nil {
			s.logger.Warn("schedule update rejected",
				"job", status.Name, "schedule", schedule, "error", err)
		}
	}
}

// dailyRefresh forces a full aggregation. An empty result or partial source
// failures downgrade the run to a warning rather than an error: the cached
// data set is still usable.
func dailyRefresh(agg *source.Aggregator) runner {
	return func(ctx context.Context) outcome {
		result, err := agg.FetchAll(ctx, true)
		if err != nil {
			return failure(err)
		}
		if len(result.Loans) == 0 {
			return warning("refresh produced no loan records")
		}
		if len(result.Errors) > 0 {
			return warning("%d loans aggregated, %d of %d sources failed",
				len(result.Loans), len(result.Errors), result.Sources.TotalEnabled)
		}
		return success("%d loans aggregated from %d sources",
			len(result.Loans), result.Sources.TotalEnabled)
	}
}

// sourceRefresh re-pulls a single source outside the full aggregation cycle.
func sourceRefresh(agg *source.Aggregator, name string) runner {
	return func(ctx context.Context) outcome {
		loans, err := agg.RefreshSource(ctx, name)
		if err != nil {
			return warning("%s refresh failed, %d fallback records cached: %v", name, len(loans), err)
		}
		return success("%d records refreshed from %s", len(loans), name)
	}
}

func cacheCleanup(store *cache.Store) runner {
	return func(ctx context.Context) outcome {
		removed, err := store.Cleanup(ctx)
		if err != nil {
			return failure(err)
		}
		return success("%d expired entries removed", removed)
	}
}

func marketRefresh(agg *source.Aggregator) runner {
	return func(ctx context.Context) outcome {
		raw := agg.RefreshMarket(ctx)
		if raw == nil {
			return warning("market data unavailable")
		}
		return success("market data refreshed, %d bytes", len(raw))
	}
}

// healthCheck probes every enabled source and snapshots cache stats; the
// snapshot is cached so the status endpoint reads it without re-probing.
func healthCheck(agg *source.Aggregator, store *cache.Store) runner {
	return func(ctx context.Context) outcome {
		snapshot := HealthSnapshot{
			Cache:     store.GetStats(ctx),
			Sources:   agg.ProbeSources(ctx),
			CheckedAt: time.Now().UTC(),
		}
		store.Set(ctx, healthSnapshotName, nil, snapshot, healthTTL)

		unhealthy := 0
		for _, h := range snapshot.Sources {
			if !h.Healthy {
				unhealthy++
			}
		}
		if unhealthy > 0 {
			return warning("%d of %d sources unreachable", unhealthy, len(snapshot.Sources))
		}
		if !snapshot.Cache.DurableAvailable {
			return warning("durable cache backend unavailable")
		}
		return success("%d sources healthy, %d cache entries",
			len(snapshot.Sources), snapshot.Cache.TotalEntries)
	}
}

// LatestHealth reads the cached health snapshot, if one is fresh.
func LatestHealth(ctx context.Context, store *cache.Store) (HealthSnapshot, bool) {
	raw, ok := store.Get(ctx, healthSnapshotName, nil)
	if !ok {
		return HealthSnapshot{}, false
	}
	var snapshot HealthSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return HealthSnapshot{}, false
	}
	return snapshot, true
}
