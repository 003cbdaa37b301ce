package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"bakerypos/internal/bootstrap"
	"bakerypos/internal/cache"
	"bakerypos/internal/config"
	"bakerypos/internal/httpapi"
	"bakerypos/internal/logger"
	"bakerypos/internal/metrics"
	"bakerypos/internal/money"
	"bakerypos/internal/sequencer"
	"bakerypos/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "bakerypos",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if err := run(cfg, log); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	location, err := cfg.Location()
	if err != nil {
		return err
	}

	closers := make([]func() error, 0, 2)
	repo, closeRepo, err := bootstrap.OpenRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeRepo)

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "bakerypos")
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn(ctx, "redis unavailable, reports are not cached", err)
			_ = redisCache.Close()
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info(ctx, "cache: redis")
		}
	} else {
		log.Info(ctx, "cache: noop")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	posMetrics := metrics.New(reg)

	seq := sequencer.New(repo, sequencer.Options{
		RetentionDays: cfg.RetentionDays,
		Location:      location,
		Logger:        log,
		Metrics:       posMetrics,
	})
	svc := service.New(repo, seq, service.Options{
		Cache:     reportCache,
		CacheTTL:  cfg.ReportCacheTTL,
		Location:  location,
		Converter: money.NewConverter(cfg.DisplayCurrency, cfg.DisplayRate),
		Logger:    log,
		Metrics:   posMetrics,
	})
	api := httpapi.New(svc, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        log,
		Metrics:       posMetrics,
		Gatherer:      reg,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info(log.WithField(context.Background(), "addr", cfg.Address()), "bakery till listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-sig:
	case runErr = <-serverErr:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	runErr = multierr.Append(runErr, server.Shutdown(shutdownCtx))
	for _, closeFn := range closers {
		runErr = multierr.Append(runErr, closeFn())
	}

	log.Info(context.Background(), "server stopped")
	return runErr
}

func validateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.AllowedOrigin == "*" && cfg.BindAddr != "127.0.0.1" && cfg.BindAddr != "localhost" {
		return fmt.Errorf("POS_ALLOWED_ORIGIN must not be * when listening on %s", cfg.BindAddr)
	}
	return nil
}
