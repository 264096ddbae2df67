// Package config provides bridge configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// EnvFileVar names the dotenv file read before the environment is processed.
const EnvFileVar = "ENV_FILE"

// Config holds bridge configuration.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"sparkling-bridge"`

	// Dispatch
	Debug        bool   `envconfig:"BRIDGE_DEBUG" default:"false"`
	ManifestFile string `envconfig:"BRIDGE_MANIFEST_FILE"`
	// ProtocolVersion and AcceptProtocol override the manifest when set.
	ProtocolVersion string        `envconfig:"BRIDGE_PROTOCOL_VERSION"`
	AcceptProtocol  string        `envconfig:"BRIDGE_ACCEPT_PROTOCOL"`
	CallTimeout     time.Duration `envconfig:"BRIDGE_CALL_TIMEOUT" default:"10s"`

	// Background executor
	BackgroundWorkers   int `envconfig:"BACKGROUND_WORKERS" default:"4"`
	BackgroundQueueSize int `envconfig:"BACKGROUND_QUEUE_SIZE" default:"256"`

	// Policy. RateLimitRPS 0 disables the rate gate; an empty namespace list allows every namespace.
	RateLimitRPS      float64  `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst    int      `envconfig:"RATE_LIMIT_BURST" default:"20"`
	AllowedNamespaces []string `envconfig:"ALLOWED_NAMESPACES"`

	// COMMS: connect to standalone NATS at COMMSURL when EventsEnabled.
	COMMSURL      string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	EventsEnabled bool   `envconfig:"EVENTS_ENABLED" default:"false"`

	// Database. An empty DatabaseURL disables the call audit log.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Telemetry
	OTelEnabled bool `envconfig:"OTEL_ENABLED" default:"false"`

	// HTTP admin endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads the dotenv file named by ENV_FILE (default .env) when it exists, then processes
// environment variables. Variables already set win over the file.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv(EnvFileVar)
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s - read %s: %w", logPrefix, envFile, err)
		}
	} else {
		slog.Debug(fmt.Sprintf("%s - Loaded %s", logPrefix, envFile))
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SlogLevel maps LogLevel onto a slog level. Unknown values are info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	if c.AcceptProtocol != "" && c.ProtocolVersion == "" {
		return fmt.Errorf("%s - BRIDGE_ACCEPT_PROTOCOL needs BRIDGE_PROTOCOL_VERSION", logPrefix)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("%s - BRIDGE_CALL_TIMEOUT must be positive", logPrefix)
	}
	if c.BackgroundWorkers < 1 {
		return fmt.Errorf("%s - BACKGROUND_WORKERS must be at least 1", logPrefix)
	}
	if c.BackgroundQueueSize < 0 {
		return fmt.Errorf("%s - BACKGROUND_QUEUE_SIZE must not be negative", logPrefix)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("%s - RATE_LIMIT_RPS must not be negative", logPrefix)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("%s - RATE_LIMIT_BURST must be at least 1 when rate limiting", logPrefix)
	}
	return nil
}

// ValidateForServe checks required config when running the bridge server.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%s - HTTP_PORT %d out of range", logPrefix, c.HTTPPort)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.EventsEnabled && c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required when EVENTS_ENABLED", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear-calls).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
