package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	AES         AESConfig         `mapstructure:"aes"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Line        LineConfig        `mapstructure:"line"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

// IdempotencyConfig tunes the intake ledger.
type IdempotencyConfig struct {
	Retention        time.Duration `mapstructure:"retention"`          // Completed-record lifetime
	StaleLockTimeout time.Duration `mapstructure:"stale_lock_timeout"` // Forced release of abandoned reservations
}

// DispatcherConfig tunes the notification worker pool.
type DispatcherConfig struct {
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	LeaseTTL     time.Duration `mapstructure:"lease_ttl"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// RateLimitRule is a per-route admission threshold.
type RateLimitRule struct {
	Limit  int64         `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	PublicOrders RateLimitRule `mapstructure:"public_orders"`
	Webhooks     RateLimitRule `mapstructure:"webhooks"`
	Host         RateLimitRule `mapstructure:"host"`
}

// LineConfig points at the messaging provider's push API.
type LineConfig struct {
	APIBase string        `mapstructure:"api_base"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: GBC_ (Group-Buy Core).
// Nested keys use underscore: GBC_DATABASE_HOST, GBC_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "groupbuy_core")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "groupbuy-core")
	v.SetDefault("aes.key", "")
	v.SetDefault("idempotency.retention", "24h")
	v.SetDefault("idempotency.stale_lock_timeout", "5m")
	v.SetDefault("dispatcher.workers", 4)
	v.SetDefault("dispatcher.batch_size", 20)
	v.SetDefault("dispatcher.poll_interval", "2s")
	v.SetDefault("dispatcher.lease_ttl", "30s")
	v.SetDefault("dispatcher.backoff_base", "10s")
	v.SetDefault("dispatcher.backoff_max", "10m")
	v.SetDefault("dispatcher.max_attempts", 3)
	v.SetDefault("ratelimit.public_orders.limit", 60)
	v.SetDefault("ratelimit.public_orders.window", "1m")
	v.SetDefault("ratelimit.webhooks.limit", 300)
	v.SetDefault("ratelimit.webhooks.window", "1m")
	v.SetDefault("ratelimit.host.limit", 120)
	v.SetDefault("ratelimit.host.window", "1m")
	v.SetDefault("line.api_base", "https://api.line.me")
	v.SetDefault("line.timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: GBC_DATABASE_HOST -> database.host
	v.SetEnvPrefix("GBC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
