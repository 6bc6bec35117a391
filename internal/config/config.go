// Package config provides configuration loading for the workflow service.
// It uses koanf to merge an optional YAML file with environment variables;
// environment variables take precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the service.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Workflow WorkflowConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	SSLMode  string `koanf:"sslmode"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// NATSConfig holds notification transport settings. An empty URL disables
// publishing entirely.
type NATSConfig struct {
	URL string `koanf:"url"`
}

// WorkflowConfig holds the tunables of the approval workflow core.
type WorkflowConfig struct {
	ApprovalTTL         time.Duration `koanf:"approval_ttl"`
	SweepInterval       time.Duration `koanf:"sweep_interval"`
	ReminderInterval    time.Duration `koanf:"reminder_interval"`
	OwnerUserIDs        []string      `koanf:"owner_user_ids"`
	SuspiciousThreshold int           `koanf:"suspicious_threshold"`
	SuspiciousWindow    time.Duration `koanf:"suspicious_window"`
}

// Defaults for non-secret settings.
const (
	DefaultPort                = 8086
	DefaultEnvironment         = "development"
	DefaultSSLMode             = "disable"
	DefaultApprovalTTL         = 24 * time.Hour
	DefaultSweepInterval       = time.Hour
	DefaultReminderInterval    = 24 * time.Hour
	DefaultSuspiciousThreshold = 100
	DefaultSuspiciousWindow    = time.Minute
)

// Load reads configuration from an optional YAML file and the environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        getStr(k, "service.name", "SERVICE_NAME", "be-workflow"),
			Version:     getStr(k, "service.version", "SERVICE_VERSION", "dev"),
			Environment: getStr(k, "service.environment", "ENVIRONMENT", DefaultEnvironment),
		},
		Server: ServerConfig{
			Port:            getInt(k, "server.port", "PORT", DefaultPort),
			ReadTimeout:     getDuration(k, "server.read_timeout", "SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDuration(k, "server.write_timeout", "SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDuration(k, "server.idle_timeout", "SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDuration(k, "server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getStr(k, "database.host", "DB_HOST", "localhost"),
			Port:     getInt(k, "database.port", "DB_PORT", 5432),
			User:     getStr(k, "database.user", "DB_USER", "postgres"),
			Password: getStr(k, "database.password", "DB_PASSWORD", ""),
			Database: getStr(k, "database.database", "DB_NAME", "backoffice"),
			SSLMode:  getStr(k, "database.sslmode", "DB_SSLMODE", DefaultSSLMode),
			MaxConns: int32(getInt(k, "database.max_conns", "DB_MAX_CONNS", 10)),
			MinConns: int32(getInt(k, "database.min_conns", "DB_MIN_CONNS", 2)),
		},
		NATS: NATSConfig{
			URL: getStr(k, "nats.url", "NATS_URL", ""),
		},
		Workflow: WorkflowConfig{
			ApprovalTTL:         getDuration(k, "workflow.approval_ttl", "APPROVAL_TTL", DefaultApprovalTTL),
			SweepInterval:       getDuration(k, "workflow.sweep_interval", "SWEEP_INTERVAL", DefaultSweepInterval),
			ReminderInterval:    getDuration(k, "workflow.reminder_interval", "REMINDER_INTERVAL", DefaultReminderInterval),
			OwnerUserIDs:        getStrSlice(k, "workflow.owner_user_ids", "OWNER_USER_IDS"),
			SuspiciousThreshold: getInt(k, "workflow.suspicious_threshold", "SUSPICIOUS_THRESHOLD", DefaultSuspiciousThreshold),
			SuspiciousWindow:    getDuration(k, "workflow.suspicious_window", "SUSPICIOUS_WINDOW", DefaultSuspiciousWindow),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Workflow.ApprovalTTL <= 0 {
		return fmt.Errorf("approval TTL must be positive, got %s", c.Workflow.ApprovalTTL)
	}
	if c.Workflow.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Workflow.SweepInterval)
	}
	if c.Workflow.SuspiciousThreshold < 1 {
		return fmt.Errorf("suspicious threshold must be at least 1, got %d", c.Workflow.SuspiciousThreshold)
	}
	return nil
}

// ── koanf/env lookup helpers ─────────────────────────────────────────────────

func getStr(k *koanf.Koanf, key, env, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if k.Exists(key) {
		return k.String(key)
	}
	return def
}

func getInt(k *koanf.Koanf, key, env string, def int) int {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if k.Exists(key) {
		return k.Int(key)
	}
	return def
}

func getDuration(k *koanf.Koanf, key, env string, def time.Duration) time.Duration {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if k.Exists(key) {
		if d := k.Duration(key); d > 0 {
			return d
		}
	}
	return def
}

func getStrSlice(k *koanf.Koanf, key, env string) []string {
	if v := os.Getenv(env); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return k.Strings(key)
}
