package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/artpar/releaseplan/internal/core/deployment"
	"github.com/artpar/releaseplan/internal/shell/publish"
	"github.com/artpar/releaseplan/internal/shell/telemetry"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Log       LogConfig        `mapstructure:"log"`
	Plan      PlanConfig       `mapstructure:"plan"`
	Source    SourceConfig     `mapstructure:"source"`
	Publish   PublishConfig    `mapstructure:"publish"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PlanConfig holds planner configuration.
type PlanConfig struct {
	// DisplayLimit caps the conflicted and behind-prod ID lists of a plan.
	// Zero uses the default; a negative value disables the cap.
	DisplayLimit int `mapstructure:"display_limit"`
}

// Options returns the planner options for this config.
func (c PlanConfig) Options() deployment.Options {
	opts := deployment.DefaultOptions()
	if c.DisplayLimit != 0 {
		opts.DisplayLimit = c.DisplayLimit
	}
	return opts
}

// SourceConfig holds analysis input configuration.
type SourceConfig struct {
	// SnapshotDSN is the SQLite analysis snapshot read when no input file is given.
	SnapshotDSN string `mapstructure:"snapshot_dsn"`
}

// PublishConfig holds plan publishing configuration.
type PublishConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig converts the section to publisher settings.
func (c PublishConfig) KafkaConfig() publish.KafkaConfig {
	return publish.KafkaConfig{
		Brokers:      c.Brokers,
		Topic:        c.Topic,
		MaxAttempts:  c.MaxAttempts,
		WriteTimeout: c.WriteTimeout,
	}
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("plan.display_limit", deployment.DefaultDisplayLimit)
	v.SetDefault("source.snapshot_dsn", "")

	// Publishing is opt-in
	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.brokers", []string{"localhost:9092"})
	v.SetDefault("publish.topic", "deployment-plans")
	v.SetDefault("publish.max_attempts", 3)
	v.SetDefault("publish.write_timeout", "10s")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", telemetry.DefaultServiceName)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("RELEASEPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format writing to w.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
