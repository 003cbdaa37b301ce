package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"

	"bakerypos/internal/bootstrap"
	"bakerypos/internal/cache"
	"bakerypos/internal/config"
	"bakerypos/internal/logger"
	"bakerypos/internal/service"
)

func main() {
	yes := flag.Bool("yes", false, "confirm deletion of every item, sale, invoice and counter")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "bakerypos-resetdb",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})

	if err := run(cfg, log, *yes); err != nil {
		log.Fatalf("reset failed: %v", err)
	}
}

func run(cfg config.Config, log *logger.Logger, confirmed bool) (err error) {
	if !confirmed {
		return fmt.Errorf("refusing to wipe %s data without -yes", cfg.DBDriver)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	location, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, closeRepo, err := bootstrap.OpenRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeRepo())
	}()

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "bakerypos")
		defer func() {
			err = multierr.Append(err, redisCache.Close())
		}()
		reportCache = redisCache
	}

	svc := service.New(repo, nil, service.Options{Cache: reportCache, Location: location, Logger: log})
	return svc.Reset(ctx)
}
