package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	MaxConnections        int `env:"MAX_CONNECTIONS" default:"1000"`
	MaxConnectionsPerUser int `env:"MAX_CONNECTIONS_PER_USER" default:"5"`

	ConnectionTimeout   time.Duration `env:"CONNECTION_TIMEOUT" default:"3600s"`
	HeartbeatInterval   time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	CleanupInterval     time.Duration `env:"CLEANUP_INTERVAL" default:"300s"`
	RecoveryInterval    time.Duration `env:"RECOVERY_INTERVAL" default:"60s"`
	AuthTimeout         time.Duration `env:"AUTH_TIMEOUT" default:"30s"`
	ProbeTimeout        time.Duration `env:"PROBE_TIMEOUT" default:"5s"`
	WriteTimeout        time.Duration `env:"WRITE_TIMEOUT" default:"5s"`
	MaxRecoveryAttempts int           `env:"MAX_RECOVERY_ATTEMPTS" default:"5"`
	SendMaxRetries      int           `env:"SEND_MAX_RETRIES" default:"3"`

	AdmissionRatePerSecond float64 `env:"ADMISSION_RATE_PER_SECOND" default:"10"`
	AdmissionBurst         int     `env:"ADMISSION_BURST" default:"10"`

	AuditStream       string `env:"AUDIT_STREAM" default:"notification:audit"`
	AuditStreamMaxLen int64  `env:"AUDIT_STREAM_MAX_LEN" default:"100000"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
		"JWT_SECRET":   cfg.JWTSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}

	if cfg.MaxConnections < 1 {
		return errors.New("MAX_CONNECTIONS must be at least 1")
	}
	if cfg.MaxConnectionsPerUser < 1 {
		return errors.New("MAX_CONNECTIONS_PER_USER must be at least 1")
	}
	if cfg.MaxRecoveryAttempts < 1 {
		return errors.New("MAX_RECOVERY_ATTEMPTS must be at least 1")
	}

	for name, d := range map[string]time.Duration{
		"CONNECTION_TIMEOUT": cfg.ConnectionTimeout,
		"HEARTBEAT_INTERVAL": cfg.HeartbeatInterval,
		"CLEANUP_INTERVAL":   cfg.CleanupInterval,
		"RECOVERY_INTERVAL":  cfg.RecoveryInterval,
		"AUTH_TIMEOUT":       cfg.AuthTimeout,
		"PROBE_TIMEOUT":      cfg.ProbeTimeout,
		"WRITE_TIMEOUT":      cfg.WriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}
