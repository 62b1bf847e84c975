package container

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// DelivererConfig configures the delivery worker, read from the environment.
type DelivererConfig struct {
	LogFormat      string `env:"LOG_FORMAT"       envDefault:"console"                  validate:"oneof=json console"`
	RedisAddr      string `env:"REDIS_ADDR"       envDefault:"localhost:6379"           validate:"required"`
	BotToken       string `env:"BOT_TOKEN,required"                                     validate:"required"`
	TelegramAPIURL string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org" validate:"url"`
	StorageChannel string `env:"STORAGE_CHANNEL,required"                               validate:"required"`
	MetricsAddr    string `env:"METRICS_ADDR"     envDefault:":9091"`
}

// LoadDelivererConfig parses and validates the environment.
func LoadDelivererConfig() (*DelivererConfig, error) {
	cfg, err := env.ParseAs[DelivererConfig]()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if err = validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return &cfg, nil
}

func (c *DelivererConfig) LogEncoding() string { return c.LogFormat }

func (c *DelivererConfig) RedisAddress() string { return c.RedisAddr }
