package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the engine reads from its environment.
// Values come from a .env file in TOML format, overridable per key
// through environment variables.
type Config struct {
	Port        string `mapstructure:"PORT"`
	Environment string `mapstructure:"ENVIRONMENT"`

	// Redis backing store. An empty addr selects the in-memory stores,
	// which lose all state on restart and suit local development only.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// SubscriptionsFile optionally seeds the registry at startup
	SubscriptionsFile string `mapstructure:"SUBSCRIPTIONS_FILE"`

	// Delivery worker tuning
	Workers              int `mapstructure:"WORKERS"`
	PollIntervalMS       int `mapstructure:"POLL_INTERVAL_MS"`
	ClaimBatch           int `mapstructure:"CLAIM_BATCH"`
	MaxInFlightPerSub    int `mapstructure:"MAX_IN_FLIGHT_PER_SUBSCRIPTION"`
	BackoffCeilingSecond int `mapstructure:"BACKOFF_CEILING_SECONDS"`
	DeferDelayMS         int `mapstructure:"DEFER_DELAY_MS"`

	// Health classification thresholds
	HealthDegradedAt  int `mapstructure:"HEALTH_DEGRADED_AT"`
	HealthUnhealthyAt int `mapstructure:"HEALTH_UNHEALTHY_AT"`

	// Auto-disable of persistently failing subscriptions, off by default
	AutoDisable      bool `mapstructure:"AUTO_DISABLE"`
	AutoDisableAfter int  `mapstructure:"AUTO_DISABLE_AFTER"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "production")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("WORKERS", 8)
	viper.SetDefault("POLL_INTERVAL_MS", 250)
	viper.SetDefault("CLAIM_BATCH", 32)
	viper.SetDefault("MAX_IN_FLIGHT_PER_SUBSCRIPTION", 4)
	viper.SetDefault("BACKOFF_CEILING_SECONDS", 900)
	viper.SetDefault("DEFER_DELAY_MS", 1000)
	viper.SetDefault("HEALTH_DEGRADED_AT", 1)
	viper.SetDefault("HEALTH_UNHEALTHY_AT", 3)
	viper.SetDefault("AUTO_DISABLE", false)
	viper.SetDefault("AUTO_DISABLE_AFTER", 10)

	// a missing .env is fine, the environment can carry every key
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

// PollInterval returns the worker poll cadence as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// BackoffCeiling returns the retry delay cap as a duration
func (c *Config) BackoffCeiling() time.Duration {
	return time.Duration(c.BackoffCeilingSecond) * time.Second
}

// DeferDelay returns the throttle re-schedule delay as a duration
func (c *Config) DeferDelay() time.Duration {
	return time.Duration(c.DeferDelayMS) * time.Millisecond
}
