package source

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// probeTimeout bounds each reachability check; a probe is advisory and must
// never hold up the health job.
const probeTimeout = 5 * time.Second

// SourceHealth is the result of one reachability probe.
type SourceHealth struct {
	Healthy    bool   `json:"healthy"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProbeSources checks each enabled source's base endpoint. Any response below
// 500 counts as healthy; an auth rejection still proves the host is up.
func (a *Aggregator) ProbeSources(ctx context.Context) map[string]SourceHealth {
	out := make(map[string]SourceHealth, len(a.order))
	for _, name := range a.order {
		cfg := a.sources[name]
		if !cfg.Enabled {
			continue
		}
		out[name] = a.probe(ctx, name, cfg.BaseEndpoint)
	}
	return out
}

func (a *Aggregator) probe(ctx context.Context, name, endpoint string) SourceHealth {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return SourceHealth{Error: err.Error()}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("health probe failed", slog.String("source", name), slog.Any("error", err))
		return SourceHealth{Error: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	return SourceHealth{
		Healthy:    resp.StatusCode < 500,
		StatusCode: resp.StatusCode,
	}
}
