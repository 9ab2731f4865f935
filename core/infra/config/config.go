package config

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultRedisURL       = "redis://localhost:6379"
	defaultNATSURL        = "nats://localhost:4222"
	defaultHTTPAddr       = ":9080"
	defaultRetention      = 24 * time.Hour
	defaultStepConfigPath = "config/steps.yaml"

	envRedisURL       = "REDIS_URL"
	envNATSURL        = "NATS_URL"
	envHTTPAddr       = "LENDCORE_HTTP_ADDR"
	envRetention      = "LENDCORE_RETENTION"
	envStepConfigPath = "STEP_CONFIG_PATH"
	envDisableStore   = "LENDCORE_DISABLE_STORE"
	envDisableBus     = "LENDCORE_DISABLE_BUS"
	envMaxRetries     = "LENDCORE_MAX_RETRIES"
)

// Config holds runtime configuration for the processing service.
type Config struct {
	RedisURL       string
	NatsURL        string
	HTTPAddr       string
	Retention      time.Duration
	StepConfigPath string
	DisableStore   bool
	DisableBus     bool
	MaxRetries     int
}

// Load returns configuration from environment variables with sane defaults.
func Load() *Config {
	cfg := &Config{
		RedisURL:       defaultRedisURL,
		NatsURL:        defaultNATSURL,
		HTTPAddr:       defaultHTTPAddr,
		Retention:      defaultRetention,
		StepConfigPath: defaultStepConfigPath,
		MaxRetries:     3,
	}
	if v := os.Getenv(envRedisURL); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv(envNATSURL); v != "" {
		cfg.NatsURL = v
	}
	if v := os.Getenv(envHTTPAddr); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv(envRetention); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Retention = d
		}
	}
	if v := os.Getenv(envStepConfigPath); v != "" {
		cfg.StepConfigPath = v
	}
	if v := os.Getenv(envMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
		}
	}
	cfg.DisableStore = os.Getenv(envDisableStore) == "true"
	cfg.DisableBus = os.Getenv(envDisableBus) == "true"
	return cfg
}
