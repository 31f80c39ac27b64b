package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath    string     `env:"DB_PATH" envDefault:"data/globetrotter.db"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	PublicURL string     `env:"PUBLIC_URL" envDefault:"http://localhost:5173"`

	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`

	// RelayURL selects the cross-process broadcast relay: redis://... or
	// nats://... Empty keeps delivery in-process.
	RelayURL    string `env:"RELAY_URL"`
	RelayPrefix string `env:"RELAY_PREFIX" envDefault:"globetrotter"`

	SeedCatalog bool `env:"SEED_CATALOG" envDefault:"true"`

	DefaultQuestions int `env:"DEFAULT_QUESTIONS" envDefault:"5"`
	MaxQuestions     int `env:"MAX_QUESTIONS" envDefault:"20"`

	MailboxSize   int           `env:"MAILBOX_SIZE" envDefault:"32"`
	IdleTTL       time.Duration `env:"IDLE_TTL" envDefault:"30m"`
	FinishedTTL   time.Duration `env:"FINISHED_TTL" envDefault:"10m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if c.DefaultQuestions < 1 || c.DefaultQuestions > c.MaxQuestions {
		return fmt.Errorf("DEFAULT_QUESTIONS must be between 1 and MAX_QUESTIONS (%d), got %d", c.MaxQuestions, c.DefaultQuestions)
	}
	if c.MailboxSize < 1 {
		return fmt.Errorf("MAILBOX_SIZE must be positive, got %d", c.MailboxSize)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	return nil
}
