package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l0p7/loanfeed/internal/cache"
	"github.com/l0p7/loanfeed/internal/config"
	"github.com/l0p7/loanfeed/internal/logging"
	"github.com/l0p7/loanfeed/internal/metrics"
	"github.com/l0p7/loanfeed/internal/notify"
	"github.com/l0p7/loanfeed/internal/scheduler"
	"github.com/l0p7/loanfeed/internal/server"
	"github.com/l0p7/loanfeed/internal/source"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to service configuration file")
		envPrefix  = flag.String("env-prefix", "LOANFEED", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	store, err := buildCacheStore(logger, metricsRecorder, cfg.Cache)
	if err != nil {
		logger.Error("cache store setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	aggregator := source.New(source.Options{
		Sources:      cfg.Sources,
		Store:        store,
		Logger:       logger,
		Metrics:      metricsRecorder,
		AggregateTTL: time.Duration(cfg.Cache.AggregateTTLSeconds) * time.Second,
	})

	sink := notify.NewWebhook(cfg.Notify, logger)
	sched := scheduler.New(scheduler.Options{
		Sink:    sink,
		Logger:  logger,
		Metrics: metricsRecorder,
	})
	if err := scheduler.RegisterJobs(sched, cfg.Scheduler, aggregator, store); err != nil {
		logger.Error("job registration failed", slog.Any("error", err))
		os.Exit(1)
	}
	sched.Start(ctx)
	defer sched.Stop()

	if *configFile != "" {
		watcher, err := loader.Watch(ctx, *configFile, func(updated config.Config) {
			scheduler.ApplySchedules(sched, updated.Scheduler)
		}, func(err error) {
			logger.Error("config watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	handler := server.NewHandler(server.HandlerOptions{
		Aggregator: aggregator,
		Store:      store,
		Scheduler:  sched,
		Metrics:    metricsRecorder,
		Logger:     logger,
	})

	srv, err := server.New(cfg, logger, handler)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("service shutdown complete")
}

// buildCacheStore assembles the two-tier store. A missing or unreachable fast
// backend degrades to file-only operation instead of failing startup.
func buildCacheStore(logger *slog.Logger, recorder *metrics.Recorder, cfg config.CacheConfig) (*cache.Store, error) {
	factoryLogger := logger.With(slog.String("agent", "cache_factory"))

	durable, err := cache.NewFile(cfg.Directory)
	if err != nil {
		return nil, err
	}
	factoryLogger.Info("using file cache backend", slog.String("directory", cfg.Directory))

	var fast cache.Backend
	if cfg.Redis.Address != "" {
		fast, err = cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			factoryLogger.Error("redis cache initialization failed", slog.Any("error", err))
			factoryLogger.Info("continuing with file cache only")
			fast = nil
		} else {
			factoryLogger.Info("using redis fast cache", slog.String("address", cfg.Redis.Address))
		}
	}

	return cache.New(cache.Options{
		Durable:    durable,
		Fast:       fast,
		DefaultTTL: time.Duration(cfg.TTLSeconds) * time.Second,
		Logger:     logger,
		Metrics:    recorder,
	}), nil
}
