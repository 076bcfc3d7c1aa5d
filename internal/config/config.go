package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                    int    `env:"PORT" envDefault:"8080"`
	Environment             string `env:"ENVIRONMENT" envDefault:"development"`
	DatabaseURL             string `env:"DATABASE_URL,required"`
	RedisURL                string `env:"REDIS_URL"`
	AgentURL                string `env:"AGENT_URL,required"`
	AgentConnectTimeoutMs   int    `env:"AGENT_CONNECT_TIMEOUT_MS" envDefault:"10000"`
	AgentMaxConnectAttempts int    `env:"AGENT_MAX_CONNECT_ATTEMPTS" envDefault:"5"`
	PairingCodeTTLMs        int    `env:"PAIRING_CODE_TTL_MS" envDefault:"60000"`
	APIJWTSecret            string `env:"API_JWT_SECRET"`
	RateLimitPerMin         int    `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ContactRetentionDays    int    `env:"CONTACT_RETENTION_DAYS" envDefault:"0"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) AgentConnectTimeout() time.Duration {
	return time.Duration(c.AgentConnectTimeoutMs) * time.Millisecond
}

func (c *Config) PairingCodeTTL() time.Duration {
	return time.Duration(c.PairingCodeTTLMs) * time.Millisecond
}

// ContactRetention is zero when contacts are kept forever.
func (c *Config) ContactRetention() time.Duration {
	if c.ContactRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.ContactRetentionDays) * 24 * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) AuthEnabled() bool {
	return c.APIJWTSecret != ""
}

func (c *Config) Validate() error {
	if !strings.HasPrefix(c.AgentURL, "ws://") && !strings.HasPrefix(c.AgentURL, "wss://") {
		return fmt.Errorf("AGENT_URL must be a ws:// or wss:// url")
	}
	if c.AgentConnectTimeoutMs <= 0 {
		return fmt.Errorf("AGENT_CONNECT_TIMEOUT_MS must be positive")
	}
	if c.AgentMaxConnectAttempts <= 0 {
		return fmt.Errorf("AGENT_MAX_CONNECT_ATTEMPTS must be positive")
	}
	if c.PairingCodeTTLMs <= 0 {
		return fmt.Errorf("PAIRING_CODE_TTL_MS must be positive")
	}

	if c.IsProduction() {
		if err := validateSecret("API_JWT_SECRET", c.APIJWTSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if strings.HasPrefix(c.AgentURL, "ws://") {
			log.Warn().Msg("AGENT_URL uses ws:// (not TLS) in production: consider using wss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
