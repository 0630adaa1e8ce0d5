package main

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/gisa-chat/server/internal/agent/model"
	"github.com/gisa-chat/server/internal/core"
	pkgpostgres "github.com/gisa-chat/server/pkg/postgres"
	pkgredis "github.com/gisa-chat/server/pkg/redis"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// AppConfig defines all configurable parameters of the assistant,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis    pkgredis.Config
	Postgres pkgpostgres.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Router      model.RouterConfig
	Embedding   model.EmbeddingConfig
	Vector      model.VectorConfig
	Data        model.DataConfig
	Turn        model.TurnConfig
	Suggestions model.SuggestionConfig
	Server      model.ServerConfig
}

func loadConfig(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logx.Warn().Err(err).Str("file", envFile).Msg("Could not load env file")
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if _, err := cfg.turnTTL(); err != nil {
		return nil, err
	}
	if _, err := cfg.turnTimeout(); err != nil {
		return nil, err
	}
	switch cfg.Data.Source {
	case "csv", "postgres":
	default:
		return nil, fmt.Errorf("invalid DATA_SOURCE %q: want csv or postgres", cfg.Data.Source)
	}
	return &cfg, nil
}

func (c *AppConfig) env() core.Environment {
	return core.ParseEnvironment(c.Environment)
}

func (c *AppConfig) turnTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Turn.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid TURN_TTL %q: %w", c.Turn.TTL, err)
	}
	return d, nil
}

func (c *AppConfig) turnTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.TurnTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid TURN_TIMEOUT %q: %w", c.Server.TurnTimeout, err)
	}
	return d, nil
}
