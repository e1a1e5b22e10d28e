package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is centralized process configuration. Keep infra values here and pass
// typed config into builders.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"strata"`
	HTTPPort    string `env:"HTTP_PORT" env-default:"8080"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	EnableOutboxRelay bool          `env:"ENABLE_OUTBOX_RELAY" env-default:"true"`
	RelayPollInterval time.Duration `env:"RELAY_POLL_INTERVAL" env-default:"2s"`
	RelayBatchSize    int           `env:"RELAY_BATCH_SIZE" env-default:"100"`
	IdempotencyTTL    time.Duration `env:"IDEMPOTENCY_TTL" env-default:"168h"`
}

// Load reads process configuration from the environment, with an optional
// local .env file for development.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
