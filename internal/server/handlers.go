package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/l0p7/loanfeed/internal/cache"
	"github.com/l0p7/loanfeed/internal/metrics"
	"github.com/l0p7/loanfeed/internal/scheduler"
	"github.com/l0p7/loanfeed/internal/source"
)

// Handler serves the admin API over the aggregation runtime.
type Handler struct {
	agg     *source.Aggregator
	store   *cache.Store
	sched   *scheduler.Scheduler
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// HandlerOptions wires the admin surface's collaborators. Metrics and Logger
// may be nil.
type HandlerOptions struct {
	Aggregator *source.Aggregator
	Store      *cache.Store
	Scheduler  *scheduler.Scheduler
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
}

// NewHandler builds the routed admin API.
func NewHandler(opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		agg:     opts.Aggregator,
		store:   opts.Store,
		sched:   opts.Scheduler,
		metrics: opts.Metrics,
		logger:  logger.With(slog.String("agent", "admin_api")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /loans", h.loans)
	mux.HandleFunc("GET /market", h.market)
	mux.HandleFunc("GET /status", h.status)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("POST /jobs/{name}/trigger", h.trigger)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}
	return mux
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("response encoding failed", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// countryLoans is the reduced payload for per-country queries.
type countryLoans struct {
	Country string        `json:"country"`
	Count   int           `json:"count"`
	Loans   []source.Loan `json:"loans"`
}

// loans serves the aggregate, or one country's slice of it. The refresh flag
// bypasses the cached aggregate.
func (h *Handler) loans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	country := query.Get("country")
	refresh := query.Get("refresh") == "true" || query.Get("refresh") == "1"

	if country == "" || country == "All" {
		result, err := h.agg.FetchAll(r.Context(), refresh)
		if err != nil {
			h.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, result)
		return
	}

	loans, err := h.agg.FetchByCountry(r.Context(), country)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, countryLoans{Country: country, Count: len(loans), Loans: loans})
}

// market passes the benchmark-rate payload through untouched.
func (h *Handler) market(w http.ResponseWriter, r *http.Request) {
	raw := h.agg.FetchMarketData(r.Context())
	if raw == nil {
		h.writeError(w, http.StatusServiceUnavailable, "market data unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

type statusResponse struct {
	SchedulerRunning bool                          `json:"schedulerRunning"`
	Jobs             []scheduler.JobStatus         `json:"jobs"`
	Quotas           map[string]source.QuotaStatus `json:"quotas"`
	Cache            cache.Stats                   `json:"cache"`
	Health           *scheduler.HealthSnapshot     `json:"health,omitempty"`
}

// status is the one-stop operational view: job history, quota budgets, cache
// stats, and the latest health snapshot when one is fresh.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		SchedulerRunning: h.sched.Running(),
		Jobs:             h.sched.GetStatus(),
		Quotas:           h.agg.QuotaSnapshot(),
		Cache:            h.store.GetStats(r.Context()),
	}
	if snapshot, ok := scheduler.LatestHealth(r.Context(), h.store); ok {
		resp.Health = &snapshot
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// healthz reports liveness. Losing the durable cache backend means the
// service cannot do its job, so that flips the probe to failing.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	stats := h.store.GetStats(r.Context())
	if !stats.DurableAvailable {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded", "cache": stats,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "cache": stats})
}

// trigger runs one named job immediately and reports its terminal status.
func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	status, err := h.sched.TriggerJob(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrNotRunning):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.writeJSON(w, http.StatusOK, map[string]any{"job": status})
	}
}
