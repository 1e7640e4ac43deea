// Package config provides configuration loading for the ingest service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/trackstack/server/pkg/types"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Firestore FirestoreConfig           `mapstructure:"firestore"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Publish   PublishConfig             `mapstructure:"publish"`
	RateLimit RateLimitConfig           `mapstructure:"rate_limit"`
	Sentry    SentryConfig              `mapstructure:"sentry"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Processor ProcessorConfig           `mapstructure:"processor"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Environment    string        `mapstructure:"environment"`
	LogLevel       string        `mapstructure:"log_level"`
}

// Addr returns the listen address string.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FirestoreConfig identifies the backing project.
type FirestoreConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	ArtifactBucket string `mapstructure:"artifact_bucket"`
}

// RedisConfig holds the optional shared rate-limit store. An empty host
// means the process-local limiter is used.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PublishConfig toggles the queued-worker handoff.
type PublishConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic"`
}

// RateLimitConfig defines the per-client fixed window.
type RateLimitConfig struct {
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
}

// SentryConfig holds error-tracking settings.
type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// ProviderConfig holds per-provider credentials and webhook settings.
type ProviderConfig struct {
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	TokenURL      string `mapstructure:"token_url"`
	VerifyToken   string `mapstructure:"verify_token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	APIBaseURL    string `mapstructure:"api_base_url"`
}

// ProcessorConfig sizes the async worker pool and the pull-sync loop.
type ProcessorConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// Provider returns the config block for a provider, zero-valued when absent.
func (c *Config) Provider(p types.Provider) ProviderConfig {
	return c.Providers[string(p)]
}

// Load reads configuration from an optional config file and environment
// variables with the TRACKSTACK_ prefix.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/trackstack")

	v.SetEnvPrefix("TRACKSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Nested map keys do not bind automatically through AutomaticEnv.
	for _, p := range []string{"strava", "garmin", "wahoo"} {
		for _, k := range []string{"client_id", "client_secret", "token_url", "verify_token", "webhook_secret", "api_base_url"} {
			envKey := fmt.Sprintf("TRACKSTACK_PROVIDERS_%s_%s", strings.ToUpper(p), strings.ToUpper(k))
			v.BindEnv(fmt.Sprintf("providers.%s.%s", p, k), envKey)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults and env vars carry it.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("firestore.project_id", "trackstack-project")
	v.SetDefault("firestore.artifact_bucket", "")

	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.topic", "topic-webhook-events")

	v.SetDefault("rate_limit.requests_per_window", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("processor.workers", 4)
	v.SetDefault("processor.queue_size", 256)
	v.SetDefault("processor.sync_interval", "15m")

	v.SetDefault("providers.strava.token_url", "https://www.strava.com/oauth/token")
	v.SetDefault("providers.strava.api_base_url", "https://www.strava.com/api/v3")
	v.SetDefault("providers.garmin.token_url", "https://connectapi.garmin.com/oauth-service/token")
	v.SetDefault("providers.garmin.api_base_url", "https://apis.garmin.com")
	v.SetDefault("providers.wahoo.token_url", "https://api.wahooligan.com/oauth/token")
	v.SetDefault("providers.wahoo.api_base_url", "https://api.wahooligan.com/v1")
}
