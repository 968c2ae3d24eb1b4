package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/l0p7/loanfeed/internal/metrics"
)

// DefaultTTL applies when a caller doesn't override the expiry.
const DefaultTTL = 24 * time.Hour

// Store composes the durable backend with an optional fast one using a fixed
// strategy: reads try fast first then durable, writes always hit durable and
// opportunistically hit fast, deletes hit both. Backend failures degrade to a
// miss or a partial write and are logged; they never reach callers.
type Store struct {
	durable    Backend
	fast       Backend
	defaultTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

// Options wires the Store's collaborators. Fast may be nil; Logger and
// Metrics may be nil.
type Options struct {
	Durable    Backend
	Fast       Backend
	DefaultTTL time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// New builds a Store around the configured backends.
func New(opts Options) *Store {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		durable:    opts.Durable,
		fast:       opts.Fast,
		defaultTTL: ttl,
		logger:     logger.With(slog.String("agent", "cache_store")),
		metrics:    opts.Metrics,
	}
}

// SourceStats splits a source's entries by validity.
type SourceStats struct {
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
}

// Stats is the read-only introspection snapshot served to health checks.
type Stats struct {
	DurableAvailable bool                   `json:"durableAvailable"`
	FastConfigured   bool                   `json:"fastConfigured"`
	FastAvailable    bool                   `json:"fastAvailable"`
	TotalEntries     int                    `json:"totalEntries"`
	Sources          map[string]SourceStats `json:"sources"`
}

// Get returns the cached payload for (source, params), or nil and false on a
// miss. Stale durable entries are evicted as a side effect of the lookup.
func (s *Store) Get(ctx context.Context, source string, params map[string]string) (json.RawMessage, bool) {
	key := Key(source, params)
	start := time.Now()

	if s.fast != nil {
		entry, ok, err := s.fast.Lookup(ctx, key)
		if err != nil {
			s.logger.Warn("fast store lookup failed", slog.String("key", key), slog.Any("error", err))
		} else if ok && entry.Valid(time.Now()) {
			s.metrics.ObserveCache(source, metrics.CacheOperationGet, metrics.CacheHit, time.Since(start))
			return entry.Value, true
		}
	}

	entry, ok, err := s.durable.Lookup(ctx, key)
	if err != nil {
		s.logger.Warn("durable store lookup failed", slog.String("key", key), slog.Any("error", err))
	}
	if !ok || err != nil {
		s.metrics.ObserveCache(source, metrics.CacheOperationGet, metrics.CacheMiss, time.Since(start))
		return nil, false
	}
	s.metrics.ObserveCache(source, metrics.CacheOperationGet, metrics.CacheHit, time.Since(start))
	return entry.Value, true
}

// Set caches value under (source, params). A non-positive ttl selects the
// store default. The durable write is authoritative; a fast-store failure
// leaves a partial write, which the read path tolerates.
func (s *Store) Set(ctx context.Context, source string, params map[string]string, value any, ttl time.Duration) {
	key := Key(source, params)
	start := time.Now()
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("cache value marshal failed", slog.String("key", key), slog.Any("error", err))
		s.metrics.ObserveCache(source, metrics.CacheOperationSet, metrics.CacheError, time.Since(start))
		return
	}

	now := time.Now().UTC()
	entry := Entry{
		Value:     payload,
		Source:    source,
		Params:    params,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	outcome := metrics.CacheStored
	if err := s.durable.Store(ctx, key, entry); err != nil {
		s.logger.Error("durable store write failed", slog.String("key", key), slog.Any("error", err))
		outcome = metrics.CacheError
	}
	if s.fast != nil {
		if err := s.fast.Store(ctx, key, entry); err != nil {
			s.logger.Warn("fast store write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	s.metrics.ObserveCache(source, metrics.CacheOperationSet, outcome, time.Since(start))
}

// Clear removes one entry from both backends.
func (s *Store) Clear(ctx context.Context, source string, params map[string]string) {
	key := Key(source, params)
	if err := s.durable.Delete(ctx, key); err != nil {
		s.logger.Warn("durable store delete failed", slog.String("key", key), slog.Any("error", err))
	}
	if s.fast != nil {
		if err := s.fast.Delete(ctx, key); err != nil {
			s.logger.Warn("fast store delete failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// ClearAll removes every entry in this service's namespace from both backends.
func (s *Store) ClearAll(ctx context.Context) {
	if err := s.durable.DeletePrefix(ctx, Namespace); err != nil {
		s.logger.Warn("durable store clear failed", slog.Any("error", err))
	}
	if s.fast != nil {
		if err := s.fast.DeletePrefix(ctx, Namespace); err != nil {
			s.logger.Warn("fast store clear failed", slog.Any("error", err))
		}
	}
}

// Cleanup sweeps the durable backend, deleting expired and unparseable
// entries, and returns the number removed. The fast backend expires entries
// server-side and needs no sweep.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	sweeper, ok := s.durable.(Sweeper)
	if !ok {
		return 0, nil
	}
	removed, err := sweeper.Sweep(ctx, time.Now())
	if err != nil {
		return removed, fmt.Errorf("cache: cleanup: %w", err)
	}
	return removed, nil
}

// GetStats reports backend availability and per-source entry counts. Partial
// backend unavailability shows up in the flags rather than as an error.
func (s *Store) GetStats(ctx context.Context) Stats {
	stats := Stats{
		FastConfigured: s.fast != nil,
		Sources:        make(map[string]SourceStats),
	}
	stats.DurableAvailable = s.durable.Ping(ctx) == nil
	if s.fast != nil {
		stats.FastAvailable = s.fast.Ping(ctx) == nil
	}

	lister, ok := s.durable.(Lister)
	if !ok {
		return stats
	}
	entries, err := lister.Entries(ctx, Namespace)
	if err != nil {
		s.logger.Warn("cache stats listing failed", slog.Any("error", err))
		return stats
	}
	now := time.Now()
	for _, entry := range entries {
		stats.TotalEntries++
		per := stats.Sources[entry.Source]
		if entry.Valid(now) {
			per.Valid++
		} else {
			per.Expired++
		}
		stats.Sources[entry.Source] = per
	}
	return stats
}

// Close releases both backends.
func (s *Store) Close(ctx context.Context) error {
	var firstErr error
	if err := s.durable.Close(ctx); err != nil {
		firstErr = err
	}
	if s.fast != nil {
		if err := s.fast.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
