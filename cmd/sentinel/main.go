package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-sentinel/internal/api"
	"github.com/miradorstack/mirador-sentinel/internal/cache"
	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/engine"
	"github.com/miradorstack/mirador-sentinel/internal/metrics"
	"github.com/miradorstack/mirador-sentinel/internal/monitor"
	"github.com/miradorstack/mirador-sentinel/internal/notify"
	"github.com/miradorstack/mirador-sentinel/internal/probe"
	"github.com/miradorstack/mirador-sentinel/internal/repo"
	"github.com/miradorstack/mirador-sentinel/internal/tracker"
	"github.com/miradorstack/mirador-sentinel/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-sentinel",
		slog.String("address", cfg.Server.Address),
		slog.Int("services", len(cfg.Services)))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, baselines will query directly", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	promClient := repo.NewPromClient(
		cfg.Clients.Prometheus.BaseURL,
		cfg.Clients.Prometheus.QueryPath,
		cfg.Clients.Prometheus.Timeout,
		cacheProvider,
		cfg.Cache.BaselineTTL,
	)

	checker := probe.NewChecker(cfg.Monitor.CheckTimeout)
	evaluator := engine.NewSLOEvaluator(promClient, logger)
	detector := engine.NewAnomalyDetector(promClient, cfg.Monitor.AnomalyThreshold, logger)
	incidents := tracker.New(cfg.Monitor.ResolvedRetention)

	var sinks []notify.Sink
	if cfg.Notifiers.PagerDuty.Enabled {
		sinks = append(sinks, notify.NewPagerDutySink(
			cfg.Notifiers.PagerDuty.Endpoint,
			cfg.Notifiers.PagerDuty.RoutingKey,
			cfg.Notifiers.PagerDuty.Timeout,
		))
	}
	if cfg.Notifiers.Slack.Enabled {
		sinks = append(sinks, notify.NewSlackSink(
			cfg.Notifiers.Slack.WebhookURL,
			cfg.Notifiers.Slack.Timeout,
		))
	}
	if len(sinks) == 0 {
		logger.Warn("no notification sinks enabled, incidents will only be logged")
	}
	dispatcher := notify.NewDispatcher(logger, sinks...)

	loop := monitor.New(
		cfg.Monitor,
		cfg.Services,
		checker,
		evaluator,
		detector,
		incidents,
		dispatcher,
		logger,
	)

	server := api.NewServer(cfg.Server, incidents, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Wait for the in-flight pass to finish before exiting.
	select {
	case <-loopDone:
	case <-time.After(cfg.Server.GracefulTimeout):
		logger.Warn("monitor loop did not stop within graceful timeout")
	}

	logger.Info("mirador-sentinel stopped")
}
