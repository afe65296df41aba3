package task

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultWorkers           = 1
	defaultPollInterval      = 100 * time.Millisecond
	defaultHeartbeatInterval = 30 * time.Second
	defaultPromoteBatch      = 100
	heartbeatTTL             = 60 * time.Second
)

// Config defines how the Manager polls and processes tasks.
type Config struct {
	Workers           int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	HandlerTimeout    time.Duration
	PromoteBatch      int64
	Logger            zerolog.Logger
	Now               func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.PromoteBatch <= 0 {
		c.PromoteBatch = defaultPromoteBatch
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Option configures Manager behavior.
type Option func(*Config)

// WithWorkers sets the number of concurrent polling workers.
func WithWorkers(count int) Option {
	return func(c *Config) {
		c.Workers = count
	}
}

// WithPollInterval sets the delay between empty polls.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithHeartbeatInterval sets how often workers refresh their heartbeat.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
	}
}

// WithHandlerTimeout sets a per-task handler timeout.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HandlerTimeout = timeout
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithClock sets the clock used for delayed tasks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}
