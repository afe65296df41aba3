package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

/* Config is read from an optional .env file (toml) in the working directory.
 * Environment variables with the same names take precedence.
 */

type Config struct {
	ServiceName     string        `mapstructure:"SERVICE_NAME"`
	Port            string        `mapstructure:"PORT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	Workers         int           `mapstructure:"WORKERS"`
	PollInterval    time.Duration `mapstructure:"POLL_INTERVAL"`
	HandlerTimeout  time.Duration `mapstructure:"HANDLER_TIMEOUT"`
	PlansFile       string        `mapstructure:"PLANS_FILE"`
	OutboundRate    float64       `mapstructure:"OUTBOUND_RATE"`
	OutboundBurst   int           `mapstructure:"OUTBOUND_BURST"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	RecoverInterval time.Duration `mapstructure:"RECOVER_INTERVAL"`
}

var defaults = map[string]any{
	"SERVICE_NAME":     "flowrelay",
	"PORT":             "8080",
	"LOG_LEVEL":        "info",
	"REDIS_ADDR":       "localhost:6379",
	"REDIS_PASSWORD":   "",
	"REDIS_DB":         0,
	"WORKERS":          1,
	"POLL_INTERVAL":    "100ms",
	"HANDLER_TIMEOUT":  "5m",
	"PLANS_FILE":       "",
	"OUTBOUND_RATE":    0.0,
	"OUTBOUND_BURST":   10,
	"SHUTDOWN_TIMEOUT": "30s",
	"RECOVER_INTERVAL": "1m",
}

// GetConfig loads the config from the working directory
func GetConfig() (*Config, error) {
	return Load(".")
}

// Load reads dir/.env when present, then the environment
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	err = v.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects values the process cannot run with
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("invalid config: PORT is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("invalid config: REDIS_ADDR is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid config: WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid config: POLL_INTERVAL must be positive")
	}
	if c.OutboundRate < 0 {
		return fmt.Errorf("invalid config: OUTBOUND_RATE must be >= 0")
	}
	if c.RecoverInterval <= 0 {
		return fmt.Errorf("invalid config: RECOVER_INTERVAL must be positive")
	}
	return nil
}
