// Package config loads the indexer configuration from a YAML file, .env files
// and LEDGER_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LEDGER_POSTGRES_DSN.
const EnvPrefix = "LEDGER"

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SentryConfig holds Sentry configuration
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ClickhouseConfig holds configuration of the optional revenue mirror
type ClickhouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// MetricsConfig holds the metrics/health HTTP server configuration
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// RetryConfig holds the RPC retry policy
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// RegistryConfig holds mint registry configuration
type RegistryConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// ListenerConfig holds live listener configuration
type ListenerConfig struct {
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// BackfillConfig holds backfill configuration
type BackfillConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	PageSize int  `mapstructure:"page_size"`
}

// ReconciliationConfig holds fee reconciliation configuration
type ReconciliationConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	TreasuryAddress string        `mapstructure:"treasury_address"`
	Workers         int           `mapstructure:"workers"`
	Tolerance       float64       `mapstructure:"tolerance"`
}

// LeaderboardConfig holds leaderboard configuration
type LeaderboardConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Config is the indexer configuration.
type Config struct {
	Debug          bool                 `mapstructure:"debug"`
	RPCURL         string               `mapstructure:"rpc_url"`
	WSURL          string               `mapstructure:"ws_url"`
	Log            LogConfig            `mapstructure:"log"`
	Sentry         SentryConfig         `mapstructure:"sentry"`
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	Clickhouse     ClickhouseConfig     `mapstructure:"clickhouse"`
	Redis          RedisConfig          `mapstructure:"redis"`
	NATS           NATSConfig           `mapstructure:"nats"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Retry          RetryConfig          `mapstructure:"retry"`
	Registry       RegistryConfig       `mapstructure:"registry"`
	Listener       ListenerConfig       `mapstructure:"listener"`
	Backfill       BackfillConfig       `mapstructure:"backfill"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Leaderboard    LeaderboardConfig    `mapstructure:"leaderboard"`
}

// keys lists every configuration key so that env overrides apply without a config file.
var keys = []string{
	"debug",
	"rpc_url",
	"ws_url",
	"log.level",
	"sentry.dsn",
	"sentry.environment",
	"postgres.dsn",
	"postgres.max_conns",
	"postgres.min_conns",
	"clickhouse.dsn",
	"redis.addr",
	"redis.password",
	"redis.db",
	"redis.prefix",
	"nats.url",
	"nats.subject_prefix",
	"metrics.addr",
	"metrics.namespace",
	"retry.max_attempts",
	"retry.initial_interval",
	"retry.max_interval",
	"registry.refresh_interval",
	"listener.queue_capacity",
	"backfill.enabled",
	"backfill.page_size",
	"reconciliation.interval",
	"reconciliation.treasury_address",
	"reconciliation.workers",
	"reconciliation.tolerance",
	"leaderboard.interval",
}

// Load reads configuration. configFile may be empty, in which case config.yaml is
// searched in the working directory and config/. envPath is the directory holding
// .env and .env.local (default config/).
func Load(configFile, envPath string) (*Config, error) {
	v := configureViper(configFile, envPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("redis.prefix", "ledger")
	v.SetDefault("nats.subject_prefix", "ledger")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.namespace", "ledger")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", "500ms")
	v.SetDefault("retry.max_interval", "5s")
	v.SetDefault("registry.refresh_interval", "5m")
	v.SetDefault("listener.queue_capacity", 100)
	v.SetDefault("backfill.enabled", true)
	v.SetDefault("backfill.page_size", 1000)
	v.SetDefault("reconciliation.interval", "24h")
	v.SetDefault("reconciliation.treasury_address", "")
	v.SetDefault("reconciliation.workers", 4)
	v.SetDefault("reconciliation.tolerance", 0.01)
	v.SetDefault("leaderboard.interval", "10m")
}

// Validate checks required keys.
func (c *Config) Validate() error {
	var missing []string
	if c.RPCURL == "" {
		missing = append(missing, "rpc_url")
	}
	if c.WSURL == "" {
		missing = append(missing, "ws_url")
	}
	if c.Postgres.DSN == "" {
		missing = append(missing, "postgres.dsn")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.Listener.QueueCapacity <= 0 {
		return fmt.Errorf("listener.queue_capacity must be positive, got %d", c.Listener.QueueCapacity)
	}
	if c.Reconciliation.Tolerance < 0 {
		return fmt.Errorf("reconciliation.tolerance must not be negative, got %v", c.Reconciliation.Tolerance)
	}
	return nil
}

func configureViper(configFile, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	return v
}

// loadEnv exports .env then .env.local; later files override earlier ones.
func loadEnv(envPath string) {
	if envPath == "" {
		envPath = "config/"
	}
	for _, name := range []string{".env", ".env.local"} {
		_ = godotenv.Overload(filepath.Join(envPath, name))
	}
}
