package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	pgRepo "feedmesh/internal/infra/adapter/persistence/postgres"
	"feedmesh/internal/infra/db"
	"feedmesh/internal/infra/fetcher"
	"feedmesh/internal/infra/notifier"
	workerPkg "feedmesh/internal/infra/worker"
	"feedmesh/internal/domain/scheduler"
	"feedmesh/internal/usecase/notify"
	"feedmesh/internal/usecase/pipeline"

	pkgconfig "feedmesh/pkg/config"
)

// waitForMigrations blocks until the sources table is queryable, or exits the
// process once cfg.MigrationWaitAttempts probes have failed.
func waitForMigrations(logger *slog.Logger, database *sql.DB, attempts int) {
	const probe = "SELECT 1 FROM sources LIMIT 1"
	for i := 0; i < attempts; i++ {
		if _, err := database.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

func main() {
	logger := initLogger()

	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.Int("notify_max_concurrent", workerConfig.NotifyMaxConcurrent),
		slog.Int("health_port", workerConfig.HealthPort))

	database := db.Open()
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	waitForMigrations(logger, database, workerConfig.MigrationWaitAttempts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifyService := buildNotifyService(logger, workerConfig)

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

	pipelineCfg := loadPipelineConfigFromEnv()
	pipelineSvc := pipeline.New(itemRepo, aggregatorRepo, preferencesRepo, pipelineCfg)

	schedCfg := loadSchedulerConfigFromEnv()
	sched := scheduler.New(sourceRepo, credRepo, rssFetcher, imapFetcher, schedCfg, pipelineSvc.OnFetched)

	if err := pipelineSvc.LoadPersistedState(ctx); err != nil {
		logger.Error("failed to load persisted aggregator state", slog.Any("error", err))
		os.Exit(1)
	}

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	startMetricsServer(ctx, logger, notifyService)

	go func() {
		notifyService.Run(ctx, pipelineSvc.Digests)
	}()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.Duration("scheduler_tick_period", schedCfg.TickPeriod),
		slog.Duration("pipeline_sweep_period", pipelineCfg.SweepPeriod))

	if err := pipelineSvc.Run(ctx, sched); err != nil {
		logger.Error("pipeline run stopped with error", slog.Any("error", err))
	}

	logger.Info("worker shutting down, draining in-flight notifications")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := notifyService.Shutdown(shutdownCtx); err != nil {
		logger.Error("notify service shutdown did not complete cleanly", slog.Any("error", err))
	}
}

// initLogger initializes and returns a structured logger based on environment configuration.
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

// buildNotifyService wires the digest consumer out of whichever channels are
// enabled via environment configuration.
func buildNotifyService(logger *slog.Logger, cfg *workerPkg.WorkerConfig) notify.Service {
	var channels []notify.Channel

	discordConfig := loadDiscordConfig(logger)
	if discordConfig.Enabled {
		channels = append(channels, notify.NewDiscordChannel(discordConfig))
		logger.Info("Discord channel initialized", slog.String("status", "enabled"))
	} else {
		logger.Info("Discord channel disabled")
	}

	slackConfig := loadSlackConfig(logger)
	if slackConfig.Enabled {
		channels = append(channels, notify.NewSlackChannel(slackConfig))
		logger.Info("Slack channel initialized", slog.String("status", "enabled"))
	} else {
		logger.Info("Slack channel disabled")
	}

	svc := notify.NewService(channels, cfg.NotifyMaxConcurrent)
	logger.Info("notification service initialized",
		slog.Int("channels", len(channels)),
		slog.Int("max_concurrent", cfg.NotifyMaxConcurrent))
	return svc
}

// loadSchedulerConfigFromEnv loads scheduler.Config from environment
// variables, falling back to scheduler.DefaultConfig for anything unset.
// scheduler.Config deliberately has no env-loading method of its own (the
// domain layer doesn't import a config package); the cmd layer owns that.
func loadSchedulerConfigFromEnv() scheduler.Config {
	def := scheduler.DefaultConfig()
	return scheduler.Config{
		TickPeriod:           pkgconfig.GetEnvDuration("SCHEDULER_TICK_PERIOD", def.TickPeriod),
		BatchSize:            pkgconfig.GetEnvInt("SCHEDULER_BATCH_SIZE", def.BatchSize),
		MaxConcurrentFetches: pkgconfig.GetEnvInt("SCHEDULER_MAX_CONCURRENT_FETCHES", def.MaxConcurrentFetches),
		AttemptTimeout:       pkgconfig.GetEnvDuration("SCHEDULER_ATTEMPT_TIMEOUT", def.AttemptTimeout),
		ShutdownGrace:        pkgconfig.GetEnvDuration("SCHEDULER_SHUTDOWN_GRACE", def.ShutdownGrace),
	}
}

// loadPipelineConfigFromEnv loads pipeline.Config from environment
// variables, falling back to pipeline.DefaultConfig for anything unset.
func loadPipelineConfigFromEnv() pipeline.Config {
	def := pipeline.DefaultConfig()
	return pipeline.Config{
		SweepPeriod: pkgconfig.GetEnvDuration("PIPELINE_SWEEP_PERIOD", def.SweepPeriod),
		DefaultKind: def.DefaultKind,
	}
}

// loadDiscordConfig loads Discord configuration from environment variables.
//
// Environment variables:
//   - DISCORD_ENABLED: Boolean flag to enable Discord notifications (default: false)
//   - DISCORD_WEBHOOK_URL: Discord webhook URL (required if enabled)
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	enabled := os.Getenv("DISCORD_ENABLED") == "true"
	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")

	if !enabled {
		return notifier.DiscordConfig{Enabled: false}
	}

	if webhookURL == "" {
		logger.Warn("Discord webhook URL is empty, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("Invalid Discord webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.DiscordConfig{Enabled: false}
	}

	if u.Scheme != "https" {
		logger.Warn("Discord webhook URL must use HTTPS, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}

	if u.Host != "discord.com" {
		logger.Warn("Invalid Discord webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.DiscordConfig{Enabled: false}
	}

	if !strings.HasPrefix(u.Path, "/api/webhooks/") {
		logger.Warn("Invalid Discord webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.DiscordConfig{Enabled: false}
	}

	return notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// loadSlackConfig loads Slack configuration from environment variables.
//
// Environment variables:
//   - SLACK_ENABLED: Boolean flag to enable Slack notifications (default: false)
//   - SLACK_WEBHOOK_URL: Slack webhook URL (required if enabled)
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	enabled := os.Getenv("SLACK_ENABLED") == "true"
	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")

	if !enabled {
		return notifier.SlackConfig{Enabled: false}
	}

	if webhookURL == "" {
		logger.Warn("Slack webhook URL is empty, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("Invalid Slack webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.SlackConfig{Enabled: false}
	}

	if u.Scheme != "https" {
		logger.Warn("Slack webhook URL must use HTTPS, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}

	if u.Host != "hooks.slack.com" {
		logger.Warn("Invalid Slack webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.SlackConfig{Enabled: false}
	}

	if !strings.HasPrefix(u.Path, "/services/") {
		logger.Warn("Invalid Slack webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.SlackConfig{Enabled: false}
	}

	return notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}
