package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort             string        `env:"HTTP_PORT" envDefault:"8080"`
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	SessionMax           int           `env:"SESSION_MAX" envDefault:"10000"`
	ProviderTimeout      time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"45s"`
	GeminiModel          string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiBaseURL        string        `env:"GEMINI_BASE_URL"`
	RateLimitMax         int           `env:"RATE_LIMIT_MAX" envDefault:"30"`
	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RedisAddr            string        `env:"REDIS_ADDR"`
	RedisPassword        string        `env:"REDIS_PASSWORD"`
	RedisDB              int           `env:"REDIS_DB" envDefault:"0"`
}

var (
	ErrInvalidSessionTTL      = errors.New("SESSION_TTL must be positive")
	ErrInvalidProviderTimeout = errors.New("PROVIDER_TIMEOUT must be positive")
)

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza valores que dejarían al motor sin expiración o sin timeout.
func (c *Config) Validate() error {
	if c.SessionTTL <= 0 {
		return ErrInvalidSessionTTL
	}
	if c.ProviderTimeout <= 0 {
		return ErrInvalidProviderTimeout
	}
	if c.SessionSweepInterval < 0 {
		c.SessionSweepInterval = 0
	}
	if c.SessionMax < 0 {
		c.SessionMax = 0
	}
	return nil
}
