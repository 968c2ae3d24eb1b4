package source

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/l0p7/loanfeed/internal/metrics"
)

// marketName is the config key and cache label for the market-data feed.
const marketName = "market"

// FetchMarketData pulls the benchmark-rate feed. The payload is passed
// through untouched; every failure path returns nil rather than an error so
// market data can never break an aggregation.
func (a *Aggregator) FetchMarketData(ctx context.Context) json.RawMessage {
	return a.fetchMarket(ctx, false)
}

// RefreshMarket refetches the benchmark-rate feed even when a cached copy is
// still fresh.
func (a *Aggregator) RefreshMarket(ctx context.Context) json.RawMessage {
	return a.fetchMarket(ctx, true)
}

func (a *Aggregator) fetchMarket(ctx context.Context, force bool) json.RawMessage {
	cfg, ok := a.sources[marketName]
	if !ok || !cfg.Enabled {
		return nil
	}
	logger := a.logger.With(slog.String("source", marketName))

	if !force && a.store != nil {
		if raw, ok := a.store.Get(ctx, marketName, nil); ok {
			return raw
		}
	}

	if !a.quotas[marketName].allow(time.Now()) {
		logger.Warn("daily request limit exhausted, skipping market fetch")
		a.metrics.ObserveFetch(marketName, metrics.FetchSkipped, 0)
		return nil
	}

	url := cfg.BaseEndpoint + "/series/observations?series_id=DPRIME&file_type=json"
	if cfg.APIKey != "" {
		url += "&api_key=" + cfg.APIKey
	}

	start := time.Now()
	payload, err := a.getRaw(ctx, cfg.Timeout(), url, nil)
	if err != nil {
		logger.Warn("market data fetch failed", slog.Any("error", err))
		a.metrics.ObserveFetch(marketName, metrics.FetchError, time.Since(start))
		return nil
	}
	if !json.Valid(payload) {
		logger.Warn("market data response is not valid json")
		a.metrics.ObserveFetch(marketName, metrics.FetchError, time.Since(start))
		return nil
	}
	a.metrics.ObserveFetch(marketName, metrics.FetchOK, time.Since(start))

	if a.store != nil {
		a.store.Set(ctx, marketName, nil, json.RawMessage(payload), a.aggTTL)
	}
	return payload
}
