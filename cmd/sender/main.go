package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tg-control-bot/internal/adapters/bot"
	"tg-control-bot/internal/adapters/repo"
	"tg-control-bot/internal/adapters/telegram"
	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/config"
	"tg-control-bot/internal/infra/db"
	applog "tg-control-bot/internal/infra/log"
	"tg-control-bot/internal/infra/metrics"
	"tg-control-bot/internal/infra/queue"
	deliveryusecase "tg-control-bot/internal/usecase/delivery"
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
		logger.Fatal().Err(err).Msg("sender: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	deliveryQueue, err := queue.NewFromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sender: не удалось инициализировать очередь доставки")
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("sender: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("sender: не удалось создать бота")
	}

	gateway := telegram.NewGateway(cfg.Telegram.Token, cfg.Delivery.RatePerSec, logger)
	deliveryService := deliveryusecase.NewService(repoAdapter, repoAdapter, gateway, repoAdapter, cfg.Delivery.MaxAttempts, cfg.Delivery.RetryBase)

	worker := &jobWorker{
		log:         logger,
		queue:       deliveryQueue,
		channels:    repoAdapter,
		statuses:    repoAdapter,
		service:     deliveryService,
		notifier:    bot.NewNotifier(botAPI, logger),
		maxAttempts: cfg.Delivery.MaxAttempts,
	}

	logger.Info().Msg("sender: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("sender: остановлен")
}

type jobWorker struct {
	log         zerolog.Logger
	queue       domain.DeliveryQueue
	channels    domain.ChannelRepo
	statuses    domain.DeliveryJobStatusRepo
	service     *deliveryusecase.Service
	notifier    *bot.Notifier
	maxAttempts int
}

type jobOutcome int

const (
	jobOutcomeCompleted jobOutcome = iota
	jobOutcomeRetry
)

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("sender: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}

		jobLog := w.log.With().
			Str("job_id", job.ID).
			Int64("post", job.PostID).
			Str("cause", string(job.Cause)).
			Logger()

		if job.ID == "" || job.PostID == 0 {
			jobLog.Error().Msg("sender: получена задача без идентификаторов, подтверждаем и пропускаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("sender: не удалось подтвердить пустую задачу")
			}
			continue
		}

		completed, attempt, err := w.statuses.EnsureDeliveryJob(job.ID)
		if err != nil {
			jobLog.Error().Err(err).Msg("sender: не удалось зарегистрировать задачу")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("sender: не удалось вернуть задачу в очередь")
			}
			time.Sleep(time.Second)
			continue
		}

		jobLog = jobLog.With().Int("attempt", attempt).Logger()

		if completed {
			jobLog.Info().Msg("sender: задача уже обработана, подтверждаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("sender: не удалось подтвердить ранее обработанную задачу")
			}
			continue
		}

		outcome := w.handleJob(ctx, job, jobLog)

		if outcome == jobOutcomeRetry && attempt < w.maxAttempts {
			jobLog.Warn().Msg("sender: задача завершилась ошибкой, повторим позже")
			if err := ack(false); err != nil {
				jobLog.Error().Err(err).Msg("sender: не удалось вернуть задачу после ошибки")
			}
			continue
		}

		if outcome == jobOutcomeRetry {
			jobLog.Error().Msg("sender: достигнут предел попыток, помечаем задачу как завершённую")
			w.abandonJob(ctx, job, jobLog)
		}

		if err := w.statuses.MarkDeliveryJobDone(job.ID); err != nil {
			jobLog.Error().Err(err).Msg("sender: не удалось пометить задачу обработанной")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("sender: не удалось вернуть задачу после ошибки статуса")
			}
			time.Sleep(time.Second)
			continue
		}

		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("sender: не удалось подтвердить задачу")
		}
	}
}

// handleJob доставляет пост и уведомляет автора об итоге. Ошибка Deliver
// означает сбой инфраструктуры, тогда доставленный префикс уже сохранён и
// повтор задачи продолжит с первого неотправленного блока.
func (w *jobWorker) handleJob(ctx context.Context, job domain.DeliveryJob, jobLog zerolog.Logger) jobOutcome {
	post, err := w.service.Deliver(ctx, job.PostID)
	if err != nil {
		jobLog.Error().Err(err).Msg("sender: доставка прервана")
		return jobOutcomeRetry
	}

	jobLog.Info().
		Str("status", string(post.Status)).
		Int("delivered", len(post.DeliveredIDs)).
		Int("blocks", len(post.Blocks)).
		Msg("sender: доставка завершена")

	w.notifyAuthor(job, post, jobLog)
	return jobOutcomeCompleted
}

// abandonJob фиксирует исчерпание повторов: пост помечается проваленным с
// сохранением доставленного префикса, автор получает уведомление об итоге.
func (w *jobWorker) abandonJob(ctx context.Context, job domain.DeliveryJob, jobLog zerolog.Logger) {
	post, err := w.service.Abandon(ctx, job.PostID, "попытки доставки исчерпаны")
	if err != nil {
		jobLog.Error().Err(err).Msg("sender: не удалось пометить пост после исчерпания попыток")
		return
	}
	w.notifyAuthor(job, post, jobLog)
}

func (w *jobWorker) notifyAuthor(job domain.DeliveryJob, post domain.Post, jobLog zerolog.Logger) {
	channel, err := w.channels.GetChannel(post.ChannelID)
	if err != nil {
		jobLog.Warn().Err(err).Int64("channel", post.ChannelID).Msg("sender: канал для уведомления не найден")
		channel = domain.Channel{}
	}
	w.notifier.NotifyDeliveryOutcome(job.NotifyChatID, post, channel)
}
