package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	AdminIDs []int64 `envconfig:"ADMIN_IDS"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Delivery string `envconfig:"DELIVERY_QUEUE_KEY" default:"delivery_jobs"`
	} `envconfig:""`

	Schedule struct {
		SweepInterval time.Duration `envconfig:"SCHEDULE_SWEEP_INTERVAL" default:"30s"`
		Grace         time.Duration `envconfig:"SCHEDULE_GRACE" default:"5m"`
		BatchLimit    int           `envconfig:"SCHEDULE_BATCH_LIMIT" default:"100"`
	} `envconfig:""`

	Delivery struct {
		MaxAttempts int           `envconfig:"DELIVERY_MAX_ATTEMPTS" default:"5"`
		RetryBase   time.Duration `envconfig:"DELIVERY_RETRY_BASE" default:"500ms"`
		RatePerSec  int           `envconfig:"DELIVERY_RATE_PER_SEC" default:"25"`
	} `envconfig:""`

	Limits struct {
		PreviewBlocks int `envconfig:"PREVIEW_BLOCKS" default:"3"`
		MaxPostBlocks int `envconfig:"MAX_POST_BLOCKS" default:"10"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
