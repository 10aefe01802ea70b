// Package main provides the manual trigger-now CLI (spec §4.G): fetch every
// active source once, feed the results through the same item persistence and
// per-user processing path the continuously-running worker uses, then exit.
// Useful for backfills and for confirming a newly-registered source works
// before waiting for its next scheduled poll.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	pgRepo "feedmesh/internal/infra/adapter/persistence/postgres"
	"feedmesh/internal/infra/db"
	"feedmesh/internal/infra/fetcher"
	workerPkg "feedmesh/internal/infra/worker"
	"feedmesh/internal/domain/scheduler"
	"feedmesh/internal/usecase/pipeline"

	pkgconfig "feedmesh/pkg/config"
)

func main() {
	logger := initLogger()

	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()

	database := db.Open()
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	sourceRepo := pgRepo.NewSourceRepo(database)
	credRepo := pgRepo.NewCredentialRepo(database)
	itemRepo := pgRepo.NewItemRepo(database)
	aggregatorRepo := pgRepo.NewAggregatorRepo(database)
	preferencesRepo := pgRepo.NewPreferencesRepo(database)

	fetchCfg, err := fetcher.LoadFetchConfigFromEnv()
	if err != nil {
		logger.Error("invalid fetch configuration", slog.Any("error", err))
		os.Exit(1)
	}
	rssFetcher := fetcher.NewRSSFetcher(fetchCfg)
	imapFetcher := fetcher.NewIMAPFetcher(fetchCfg)

	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.SweepPeriod = pkgconfig.GetEnvDuration("PIPELINE_SWEEP_PERIOD", pipelineCfg.SweepPeriod)
	pipelineSvc := pipeline.New(itemRepo, aggregatorRepo, preferencesRepo, pipelineCfg)

	schedCfg := scheduler.DefaultConfig()
	sched := scheduler.New(sourceRepo, credRepo, rssFetcher, imapFetcher, schedCfg, pipelineSvc.OnFetched)

	ctx := context.Background()
	if err := pipelineSvc.LoadPersistedState(ctx); err != nil {
		logger.Error("failed to load persisted aggregator state", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("trigger-now starting")
	start := time.Now()
	if err := pipelineSvc.TriggerNow(ctx, sched); err != nil {
		workerMetrics.RecordTriggerRun("failure")
		logger.Error("trigger-now failed", slog.Any("error", err))
		os.Exit(1)
	}
	workerMetrics.RecordTriggerRun("success")
	workerMetrics.RecordTriggerDuration(time.Since(start).Seconds())
	workerMetrics.RecordTriggerLastSuccess()
	logger.Info("trigger-now completed", slog.Duration("elapsed", time.Since(start)))
}

func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}
