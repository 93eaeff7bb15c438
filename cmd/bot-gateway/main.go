package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-control-bot/internal/adapters/bot"
	"tg-control-bot/internal/adapters/repo"
	"tg-control-bot/internal/adapters/session"
	"tg-control-bot/internal/adapters/telegram"
	"tg-control-bot/internal/infra/cache"
	"tg-control-bot/internal/infra/config"
	"tg-control-bot/internal/infra/db"
	httpinfra "tg-control-bot/internal/infra/http"
	applog "tg-control-bot/internal/infra/log"
	"tg-control-bot/internal/infra/metrics"
	"tg-control-bot/internal/infra/queue"
	"tg-control-bot/internal/usecase/composer"
	"tg-control-bot/internal/usecase/delivery"
	"tg-control-bot/internal/usecase/registry"
	"tg-control-bot/internal/usecase/reply"
	"tg-control-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: нет подключения к БД")
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("gateway: не удалось подготовить схему БД")
	}

	repoAdapter := repo.NewPostgres(pool)

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("gateway: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	cacheAdapter := cache.NewRedis(redisClient)

	deliveryQueue, err := queue.NewFromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: не удалось инициализировать очередь доставки")
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("gateway: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: не удалось создать бота")
	}
	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("gateway: некорректный адрес вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("gateway: не удалось зарегистрировать вебхук")
		}
		logger.Info().Str("url", cfg.Telegram.WebhookURL).Msg("gateway: вебхук зарегистрирован")
	}

	gateway := telegram.NewGateway(cfg.Telegram.Token, cfg.Delivery.RatePerSec, logger)
	sessions := session.NewMemoryStore()

	registryService := registry.NewService(repoAdapter, repoAdapter, gateway, repoAdapter)
	composerService := composer.NewService(sessions, repoAdapter, repoAdapter, repoAdapter, repoAdapter, deliveryQueue, repoAdapter, cfg.Limits.MaxPostBlocks, cfg.Limits.PreviewBlocks)
	scheduleService := schedule.NewService(repoAdapter, repoAdapter, repoAdapter, deliveryQueue, repoAdapter, cfg.AdminIDs, cfg.Schedule.Grace, cfg.Schedule.BatchLimit)
	deliveryService := delivery.NewService(repoAdapter, repoAdapter, gateway, repoAdapter, cfg.Delivery.MaxAttempts, cfg.Delivery.RetryBase)
	replyService := reply.NewService(sessions, repoAdapter, repoAdapter, deliveryService, repoAdapter)

	h := bot.NewHandler(botAPI, logger, registryService, composerService, scheduleService, replyService, repoAdapter, repoAdapter, cacheAdapter, cfg.AdminIDs)

	srv := httpinfra.NewServer(logger)
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("gateway: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("gateway: ошибка остановки HTTP сервера")
	}
}
