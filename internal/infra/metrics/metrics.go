package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PostsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posts_sent_total",
		Help: "Количество полностью доставленных постов",
	})
	PostsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posts_failed_total",
		Help: "Количество постов, доставка которых прервана",
	})
	BlocksDeliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blocks_delivered_total",
		Help: "Количество доставленных блоков контента",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	PostDeliverSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "post_deliver_seconds",
		Help:    "Время доставки поста",
		Buckets: prometheus.DefBuckets,
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 65, 70, 75, 80, 85, 90, 95, 100, 105, 110, 115, 120, 125, 130, 135, 140, 145, 150, 155, 160, 165, 170, 175, 180, 185, 190, 195, 200, 250, 300, 350, 400, 450, 500, 550, 600},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	ScheduleFiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_fired_total",
		Help: "Количество сработавших записей расписания",
	})
	ScheduleMissedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_missed_total",
		Help: "Количество записей расписания, пропущенных сверх окна",
	})
	ScheduleCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_cancelled_total",
		Help: "Количество отменённых записей расписания",
	})

	RepliesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replies_sent_total",
		Help: "Количество отправленных ответов на сообщения каналов",
	})

	PostsSentByChannel = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_sent_by_channel_total",
		Help: "Количество доставленных постов по каналам",
	}, []string{"channel_id"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PostsSentTotal,
		PostsFailedTotal,
		BlocksDeliveredTotal,
		BotSendErrors,
		PostDeliverSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
		ScheduleFiredTotal,
		ScheduleMissedTotal,
		ScheduleCancelledTotal,
		RepliesSentTotal,
		PostsSentByChannel,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncPostSent увеличивает счётчики доставленных постов.
func IncPostSent(channelID int64) {
	PostsSentTotal.Inc()
	PostsSentByChannel.WithLabelValues(strconv.FormatInt(channelID, 10)).Inc()
}

// IncPostFailed увеличивает счётчик прерванных доставок.
func IncPostFailed() {
	PostsFailedTotal.Inc()
}

// IncScheduleFired увеличивает счётчик сработавших записей расписания.
func IncScheduleFired() {
	ScheduleFiredTotal.Inc()
}

// IncScheduleMissed увеличивает счётчик пропущенных записей расписания.
func IncScheduleMissed() {
	ScheduleMissedTotal.Inc()
}

// IncScheduleCancelled увеличивает счётчик отменённых записей расписания.
func IncScheduleCancelled() {
	ScheduleCancelledTotal.Inc()
}

// IncReplySent увеличивает счётчик отправленных ответов.
func IncReplySent() {
	RepliesSentTotal.Inc()
}
