package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Quipu"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"quipu"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Bot struct {
		// DefaultTimezone is the IANA zone assumed for users and new rules.
		DefaultTimezone string `envconfig:"BOT_TIMEZONE" default:"America/Bogota"`

		// DefaultCurrency tags entries whose text names no currency.
		DefaultCurrency string `envconfig:"BOT_CURRENCY" default:"COP"`

		// ConfirmThreshold is the confidence at which drafts commit without
		// asking the user.
		ConfirmThreshold float64 `envconfig:"BOT_CONFIRM_THRESHOLD" default:"0.55"`

		// PendingTTL is how long an open question stays answerable.
		PendingTTL time.Duration `envconfig:"BOT_PENDING_TTL" default:"20m"`

		// MaxInputChars rejects longer messages before extraction.
		MaxInputChars int `envconfig:"BOT_MAX_INPUT_CHARS" default:"500"`

		ListLimit int `envconfig:"BOT_LIST_LIMIT" default:"10"`
	}

	Classifier struct {
		APIKey   string        `envconfig:"GEMINI_API_KEY"`
		Model    string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
		Timeout  time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"8s"`
		CacheTTL time.Duration `envconfig:"CLASSIFIER_CACHE_TTL" default:"10m"`
	}

	Telegram struct {
		Token string `envconfig:"TELEGRAM_BOT_TOKEN"`
	}

	Scheduler struct {
		// Interval is how often the generator and dispatcher tick.
		Interval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1m"`

		// DispatchBatch caps how many reminders one tick claims at a time.
		DispatchBatch int `envconfig:"SCHEDULER_DISPATCH_BATCH" default:"50"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
