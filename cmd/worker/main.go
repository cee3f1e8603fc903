package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron"

	"contentgen/internal/app"
	"contentgen/internal/infra"
	"contentgen/internal/scheduler"
)

const tickTimeout = time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_ = container.Close(context.Background())
		logger.Fatal().Err(err).Msg("worker: failed to build application")
	}

	tick := func() {
		tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
		defer cancel()
		logReport(logger, container.Scheduler.CheckAndTrigger(tickCtx))
	}

	c := cron.NewWithLocation(cfg.Location())
	if err := c.AddFunc(cfg.Scheduler.Cron, tick); err != nil {
		_ = container.Close(context.Background())
		logger.Fatal().Err(err).Str("cron", cfg.Scheduler.Cron).Msg("worker: invalid SCHEDULER_CRON")
	}
	if cfg.Scheduler.RunOnStart {
		tick()
	}
	c.Start()
	logger.Info().Str("cron", cfg.Scheduler.Cron).Int("concurrency", cfg.Scheduler.Concurrency).Msg("worker: started")

	<-ctx.Done()
	c.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.RunTimeout+30*time.Second)
	defer cancel()
	if err := container.Close(drainCtx); err != nil {
		logger.Error().Err(err).Msg("worker: shutdown incomplete")
	}
	logger.Info().Msg("worker: stopped")
}

func logReport(logger infra.Logger, report scheduler.Report) {
	evt := logger.Info()
	if len(report.Errors) > 0 {
		evt = logger.Warn().Strs("errors", report.Errors)
	}
	evt.Int("triggered", report.Triggered).
		Int("skipped", report.Skipped).
		Strs("slot_ids", report.SlotIDs).
		Strs("reconciled", report.Reconciled).
		Msg("worker: scheduler tick")
}
