package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Geolocation GeolocationConfig `mapstructure:"geolocation"`
	Geocoder    GeocoderConfig    `mapstructure:"geocoder"`
	Temporal    TemporalConfig    `mapstructure:"temporal"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// GeolocationConfig holds the resolution engine's tunables.
type GeolocationConfig struct {
	TTLSeconds             int  `mapstructure:"ttl_seconds"`
	LowAccuracyTimeoutMs   int  `mapstructure:"low_accuracy_timeout_ms"`
	HighAccuracyTimeoutMs  int  `mapstructure:"high_accuracy_timeout_ms"`
	PreferLowAccuracyFirst bool `mapstructure:"prefer_low_accuracy_first"`
	MaxStalenessMs         int  `mapstructure:"max_staleness_ms"`
	SessionIdleMinutes     int  `mapstructure:"session_idle_minutes"`
}

// TTL returns the cache TTL as a duration.
func (g GeolocationConfig) TTL() time.Duration {
	return time.Duration(g.TTLSeconds) * time.Second
}

// AcquireOptions converts the configured defaults.
func (g GeolocationConfig) AcquireOptions() domain.AcquireOptions {
	return domain.AcquireOptions{
		TierOrder:           domain.TierOrderOf(g.PreferLowAccuracyFirst),
		LowAccuracyTimeout:  time.Duration(g.LowAccuracyTimeoutMs) * time.Millisecond,
		HighAccuracyTimeout: time.Duration(g.HighAccuracyTimeoutMs) * time.Millisecond,
		MaxStaleness:        time.Duration(g.MaxStalenessMs) * time.Millisecond,
	}
}

type GeocoderConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	Region          string  `mapstructure:"region"`
	RateLimit       float64 `mapstructure:"rate_limit"`
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds"`
}

type TemporalConfig struct {
	HostPort             string `mapstructure:"host_port"`
	Namespace            string `mapstructure:"namespace"`
	TaskQueue            string `mapstructure:"task_queue"`
	AuditIntervalMinutes int    `mapstructure:"audit_interval_minutes"`
	// DeactivateInvalid lets the audit switch off zones that can never match.
	DeactivateInvalid bool `mapstructure:"deactivate_invalid"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	// A local .env never overrides variables already set.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: SERVEZONE_GEOLOCATION_TTL_SECONDS → geolocation.ttl_seconds
	v.SetEnvPrefix("SERVEZONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 65)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "servezone")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "servezone")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.key_prefix", "servezone")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("geolocation.ttl_seconds", int(domain.DefaultTTL/time.Second))
	v.SetDefault("geolocation.low_accuracy_timeout_ms", domain.DefaultLowAccuracyTimeout.Milliseconds())
	v.SetDefault("geolocation.high_accuracy_timeout_ms", domain.DefaultHighAccuracyTimeout.Milliseconds())
	v.SetDefault("geolocation.prefer_low_accuracy_first", true)
	v.SetDefault("geolocation.max_staleness_ms", 0)
	v.SetDefault("geolocation.session_idle_minutes", 60)
	v.SetDefault("geocoder.api_key", "")
	v.SetDefault("geocoder.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocoder.region", "")
	v.SetDefault("geocoder.rate_limit", 10)
	v.SetDefault("geocoder.cache_ttl_seconds", 86400)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "servezone-zone-audit")
	v.SetDefault("temporal.audit_interval_minutes", 60)
	v.SetDefault("temporal.deactivate_invalid", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Geolocation.TTLSeconds <= 0 {
		errs = append(errs, "geolocation.ttl_seconds must be positive")
	}
	if c.Geolocation.LowAccuracyTimeoutMs <= 0 {
		errs = append(errs, "geolocation.low_accuracy_timeout_ms must be positive")
	}
	if c.Geolocation.HighAccuracyTimeoutMs <= 0 {
		errs = append(errs, "geolocation.high_accuracy_timeout_ms must be positive")
	}
	if c.Geolocation.MaxStalenessMs < 0 {
		errs = append(errs, "geolocation.max_staleness_ms must not be negative")
	}
	if c.Geocoder.RateLimit < 0 {
		errs = append(errs, "geocoder.rate_limit must not be negative")
	}
	if c.Temporal.AuditIntervalMinutes <= 0 {
		errs = append(errs, "temporal.audit_interval_minutes must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
