// Package config holds the runtime configuration for the reconciliation
// service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the top-level service configuration. Values come from
// environment variables with the LEAKWATCH_ prefix, optionally seeded from a
// YAML file.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// PolicyPath points to an optional scan policy file with severity
	// overrides and seed allowlist entries.
	PolicyPath string `mapstructure:"policy_path"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RateLimit caps scan submissions per second; Burst allows short spikes.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Name     string `mapstructure:"name"`
	MinConns int32  `mapstructure:"min_conns"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ConnString returns the explicit DSN, or one assembled from parts.
func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Name)
}

// KafkaConfig holds the transition event publisher settings. Publishing is
// disabled when no brokers are configured.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether transition events should be published.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 && c.Brokers[0] != "" }

// ReconcileConfig tunes the reconciliation engine.
type ReconcileConfig struct {
	// Workers bounds the candidate derivation fan-out. Zero means GOMAXPROCS.
	Workers int `mapstructure:"workers"`

	// MaxCommitRetries bounds retries of a commit that lost the repository
	// lock race.
	MaxCommitRetries uint64 `mapstructure:"max_commit_retries"`
}

// TelemetryConfig holds the OpenTelemetry exporter settings.
type TelemetryConfig struct {
	ServiceName      string  `mapstructure:"service_name"`
	ExporterEndpoint string  `mapstructure:"exporter_endpoint"`
	SamplingRatio    float64 `mapstructure:"sampling_ratio"`
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0:8080")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.burst", 20)

	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.host", "postgres")
	v.SetDefault("database.name", "leakwatch")
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conns", 20)

	v.SetDefault("kafka.topic", "finding-transitions")

	v.SetDefault("reconcile.workers", 0)
	v.SetDefault("reconcile.max_commit_retries", 5)

	v.SetDefault("telemetry.service_name", "leakwatch")
	v.SetDefault("telemetry.sampling_ratio", 0.05)

	v.SetEnvPrefix("LEAKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
