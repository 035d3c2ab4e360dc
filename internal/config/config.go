package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration, loaded from a YAML file with
// FACTLENS_* environment overrides.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Links    LinksConfig    `mapstructure:"links"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Session  SessionConfig  `mapstructure:"session"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type StreamConfig struct {
	RenderIntervalMs int `mapstructure:"render_interval_ms"`
}

type LinksConfig struct {
	ProbeTimeoutSeconds int `mapstructure:"probe_timeout_seconds"`
	RateLimitPerSecond  int `mapstructure:"rate_limit_per_second"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type SessionConfig struct {
	TTL                time.Duration `mapstructure:"ttl"`
	SaveDelayMs        int           `mapstructure:"save_delay_ms"`
	MaxAttachmentBytes int           `mapstructure:"max_attachment_bytes"`
}

type RulesConfig struct {
	// Path to the parsing-rules YAML; empty means built-in defaults.
	Path string `mapstructure:"path"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RenderInterval converts the configured milliseconds to a duration.
func (s StreamConfig) RenderInterval() time.Duration {
	return time.Duration(s.RenderIntervalMs) * time.Millisecond
}

// ProbeTimeout converts the configured seconds to a duration.
func (l LinksConfig) ProbeTimeout() time.Duration {
	return time.Duration(l.ProbeTimeoutSeconds) * time.Second
}

// SaveDelay converts the configured milliseconds to a duration.
func (s SessionConfig) SaveDelay() time.Duration {
	return time.Duration(s.SaveDelayMs) * time.Millisecond
}

// Load reads configuration from path (or CONFIG_PATH, or the built-in
// defaults when neither names a readable file). Environment variables win:
// FACTLENS_REDIS_ADDR overrides redis.addr, and so on.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FACTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "factlens")
	v.SetDefault("postgres.database", "factlens")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("stream.render_interval_ms", 100)
	v.SetDefault("links.probe_timeout_seconds", 8)
	v.SetDefault("links.rate_limit_per_second", 10)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 7*24*time.Hour)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.save_delay_ms", 1500)
	v.SetDefault("session.max_attachment_bytes", 256*1024)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
