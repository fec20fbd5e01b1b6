package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/invoiceflow/invoiceflow/internal/cache"
	"github.com/invoiceflow/invoiceflow/internal/config"
	"github.com/invoiceflow/invoiceflow/internal/database"
	"github.com/invoiceflow/invoiceflow/internal/reaper"
	"github.com/invoiceflow/invoiceflow/internal/storage"
	"github.com/invoiceflow/invoiceflow/internal/store"
)

const sweepLockKey = "reaper:sweep:lock"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	objects := storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket)
	sweeper := reaper.New(store.NewDocumentStore(db), store.NewWorkflowStore(db), objects)

	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Reaper.LockTTL)
		defer cancel()

		// One replica sweeps at a time; the lock expires on its own if a
		// replica dies mid-sweep.
		lock := cache.NewLock(rdb, sweepLockKey, cfg.Reaper.LockTTL)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			slog.Error("sweep lock failed", "error", err)
			return
		}
		if !ok {
			slog.Info("sweep already running elsewhere, skipping")
			return
		}
		defer lock.Release(context.Background())

		report, err := sweeper.Sweep(ctx)
		if err != nil {
			slog.Error("sweep failed", "error", err)
			return
		}
		slog.Info("sweep complete", "deleted", report.Deleted, "failed", report.Failed)
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Reaper.Schedule, sweep); err != nil {
		slog.Error("invalid reaper schedule", "schedule", cfg.Reaper.Schedule, "error", err)
		os.Exit(1)
	}

	slog.Info("starting reaper", "schedule", cfg.Reaper.Schedule)
	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("stopping reaper")
	<-c.Stop().Done()
}
