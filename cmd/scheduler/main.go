package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tg-control-bot/internal/adapters/repo"
	"tg-control-bot/internal/infra/config"
	"tg-control-bot/internal/infra/db"
	applog "tg-control-bot/internal/infra/log"
	"tg-control-bot/internal/infra/metrics"
	"tg-control-bot/internal/infra/queue"
	scheduleusecase "tg-control-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	deliveryQueue, err := queue.NewFromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать очередь доставки")
	}

	scheduleService := scheduleusecase.NewService(repoAdapter, repoAdapter, repoAdapter, deliveryQueue, repoAdapter, cfg.AdminIDs, cfg.Schedule.Grace, cfg.Schedule.BatchLimit)

	sweep := func() {
		fired, missed, err := scheduleService.SweepDue(ctx, time.Now().UTC())
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: обход расписания завершился с ошибками")
		}
		if fired > 0 || missed > 0 {
			logger.Info().Int("fired", fired).Int("missed", missed).Msg("scheduler: обход расписания")
		}
	}

	logger.Info().Dur("interval", cfg.Schedule.SweepInterval).Msg("scheduler: запуск")
	sweep()

	ticker := time.NewTicker(cfg.Schedule.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
