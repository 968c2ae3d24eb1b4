package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/l0p7/loanfeed/internal/cache"
	"github.com/l0p7/loanfeed/internal/config"
	"github.com/l0p7/loanfeed/internal/metrics"
)

// aggregateTTL keeps the merged entry fresher than the per-source entries so
// a transient source failure heals on the next cycle instead of sticking for
// a full day.
const defaultAggregateTTL = time.Hour

// aggregateName is the cache source label for the merged result.
const aggregateName = "aggregate"

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// fetchFunc pulls and normalizes one source's records.
type fetchFunc func(ctx context.Context, cfg config.SourceConfig) ([]Loan, error)

// Aggregator pulls loan records from every enabled source, normalizes them
// into the canonical shape, deduplicates, and writes the merged result
// through the cache store.
type Aggregator struct {
	sources map[string]config.SourceConfig
	order   []string
	quotas  map[string]*quota
	runners map[string]fetchFunc
	country map[string]string

	store   *cache.Store
	client  httpDoer
	logger  *slog.Logger
	metrics *metrics.Recorder
	aggTTL  time.Duration
}

// Options wires the Aggregator's collaborators. Client defaults to a plain
// http.Client; per-request deadlines come from each source's configured
// timeout.
type Options struct {
	Sources      map[string]config.SourceConfig
	Store        *cache.Store
	Client       httpDoer
	Logger       *slog.Logger
	Metrics      *metrics.Recorder
	AggregateTTL time.Duration
}

// New constructs an Aggregator over the configured sources.
func New(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	aggTTL := opts.AggregateTTL
	if aggTTL <= 0 {
		aggTTL = defaultAggregateTTL
	}

	a := &Aggregator{
		sources: make(map[string]config.SourceConfig, len(opts.Sources)),
		quotas:  make(map[string]*quota, len(opts.Sources)),
		store:   opts.Store,
		client:  client,
		logger:  logger.With(slog.String("agent", "aggregator")),
		metrics: opts.Metrics,
		aggTTL:  aggTTL,
	}

	a.runners = map[string]fetchFunc{
		"govindia": a.fetchGovIndia,
		"sba":      a.fetchSBA,
		"rapid":    a.fetchRapid,
	}

	now := time.Now()
	cfg := config.Config{Sources: opts.Sources}
	for _, name := range cfg.SourceNames() {
		src := opts.Sources[name]
		a.sources[name] = src
		a.quotas[name] = newQuota(src.DailyLimit, now)
		// Market data is fetched through its own path, not aggregated; a
		// source without a registered fetcher cannot be aggregated either.
		if name == marketName {
			continue
		}
		if _, ok := a.runners[name]; !ok {
			logger.Warn("no fetcher registered for configured source", slog.String("source", name))
			continue
		}
		a.order = append(a.order, name)
	}
	a.country = map[string]string{
		"India":  "govindia",
		"USA":    "sba",
		"Global": "rapid",
	}
	return a
}

// SourceNames lists the aggregated sources in stable order.
func (a *Aggregator) SourceNames() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// CanMakeRequest reports whether the source still has daily budget, consuming
// one unit when it does.
func (a *Aggregator) CanMakeRequest(name string, now time.Time) bool {
	q, ok := a.quotas[name]
	if !ok {
		return false
	}
	return q.allow(now)
}

// QuotaSnapshot reports per-source usage for status endpoints.
func (a *Aggregator) QuotaSnapshot() map[string]QuotaStatus {
	out := make(map[string]QuotaStatus, len(a.quotas))
	for name, q := range a.quotas {
		used, limit, resetAt := q.snapshot()
		out[name] = QuotaStatus{Used: used, Limit: limit, ResetAt: resetAt}
	}
	return out
}

// QuotaStatus is the externally visible slice of a source's rate budget.
type QuotaStatus struct {
	Used    int       `json:"used"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"resetAt"`
}

type sourceOutcome struct {
	name  string
	loans []Loan
	err   error
}

// fetchSource runs one source end to end: enable gate, quota gate, network
// fetch, normalization, and static fallback on total failure. A non-nil error
// is reported alongside the fallback records, never instead of them.
func (a *Aggregator) fetchSource(ctx context.Context, name string, force bool) ([]Loan, error) {
	cfg, ok := a.sources[name]
	if !ok {
		return nil, fmt.Errorf("source: unknown source %q", name)
	}
	runner, ok := a.runners[name]
	if !ok {
		return nil, fmt.Errorf("source: no fetcher registered for %q", name)
	}
	logger := a.logger.With(slog.String("source", name))

	if !cfg.Enabled {
		logger.Debug("source disabled, skipping")
		a.metrics.ObserveFetch(name, metrics.FetchSkipped, 0)
		return nil, nil
	}

	params := map[string]string{"op": "loans"}
	if !force && a.store != nil {
		if raw, ok := a.store.Get(ctx, name, params); ok {
			var loans []Loan
			if err := json.Unmarshal(raw, &loans); err == nil {
				logger.Debug("serving source from cache", slog.Int("loans", len(loans)))
				return loans, nil
			}
			logger.Warn("cached source payload unreadable, refetching")
		}
	}

	if !a.quotas[name].allow(time.Now()) {
		logger.Warn("daily request limit exhausted, skipping fetch")
		a.metrics.ObserveFetch(name, metrics.FetchSkipped, 0)
		return nil, nil
	}

	start := time.Now()
	loans, err := runner(ctx, cfg)
	if err != nil {
		fallback := fallbackLoans(name)
		logger.Error("source fetch failed, serving static fallback",
			slog.Any("error", err), slog.Int("fallback_loans", len(fallback)))
		a.metrics.ObserveFetch(name, metrics.FetchFallback, time.Since(start))
		return fallback, err
	}

	a.metrics.ObserveFetch(name, metrics.FetchOK, time.Since(start))
	if a.store != nil {
		a.store.Set(ctx, name, params, loans, 0)
	}
	return loans, nil
}

// FetchAll aggregates every enabled source. Unless force is set, a fresh
// cached aggregate short-circuits the network entirely. Per-source failures
// are isolated: they surface in Result.Errors while the other sources'
// records are returned.
func (a *Aggregator) FetchAll(ctx context.Context, force bool) (Result, error) {
	if !force && a.store != nil {
		if raw, ok := a.store.Get(ctx, aggregateName, nil); ok {
			var cached Result
			if err := json.Unmarshal(raw, &cached); err == nil {
				a.logger.Debug("serving aggregate from cache", slog.Int("loans", len(cached.Loans)))
				return cached, nil
			}
			a.logger.Warn("cached aggregate unreadable, refetching")
		}
	}

	outcomes := make([]sourceOutcome, len(a.order))
	var wg sync.WaitGroup
	for i, name := range a.order {
		if !a.sources[name].Enabled {
			outcomes[i] = sourceOutcome{name: name}
			continue
		}
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = sourceOutcome{name: name, err: fmt.Errorf("source: %s panicked: %v", name, r)}
				}
			}()
			loans, err := a.fetchSource(ctx, name, force)
			outcomes[i] = sourceOutcome{name: name, loans: loans, err: err}
		}(i, name)
	}

	var market json.RawMessage
	wg.Add(1)
	go func() {
		defer wg.Done()
		market = a.FetchMarketData(ctx)
	}()
	wg.Wait()

	result := Result{
		Market:    market,
		Sources:   SourceSummary{PerSource: make(map[string]int, len(a.order))},
		FetchedAt: time.Now().UTC(),
	}
	var merged []Loan
	for _, out := range outcomes {
		if a.sources[out.name].Enabled {
			result.Sources.TotalEnabled++
		}
		result.Sources.PerSource[out.name] = len(out.loans)
		a.metrics.SetSourceRecords(out.name, len(out.loans))
		merged = append(merged, out.loans...)
		if out.err != nil {
			result.Errors = append(result.Errors, SourceError{Source: out.name, Error: out.err.Error()})
		}
	}
	result.Loans = dedupe(merged)

	if a.store != nil {
		a.store.Set(ctx, aggregateName, nil, result, a.aggTTL)
	}
	a.logger.Info("aggregation complete",
		slog.Int("loans", len(result.Loans)),
		slog.Int("sources_enabled", result.Sources.TotalEnabled),
		slog.Int("errors", len(result.Errors)))
	return result, nil
}

// RefreshSource forces a refetch of one source, bypassing its cached entry.
func (a *Aggregator) RefreshSource(ctx context.Context, name string) ([]Loan, error) {
	return a.fetchSource(ctx, name, true)
}

// FetchByCountry returns loans for one country, dispatching to the matching
// source. "All" aggregates everything; an unknown country yields an empty
// list rather than an error.
func (a *Aggregator) FetchByCountry(ctx context.Context, country string) ([]Loan, error) {
	if country == "All" {
		result, err := a.FetchAll(ctx, false)
		if err != nil {
			return nil, err
		}
		return result.Loans, nil
	}
	name, ok := a.country[country]
	if !ok {
		a.logger.Debug("no source for country", slog.String("country", country))
		return []Loan{}, nil
	}
	loans, _ := a.fetchSource(ctx, name, false)
	if loans == nil {
		loans = []Loan{}
	}
	return loans, nil
}
