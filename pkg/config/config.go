package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"soundwork/pkg/ledger"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Marketplace MarketplaceConfig
	Redis       RedisConfig
	Email       EmailConfig
	Telemetry   TelemetryConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	TLS         TLSConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port    string
	GinMode string
	AppEnv  string
}

type DatabaseConfig struct {
	Backend         string
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	ApplySchema     bool
	SchemaPath      string
}

type MarketplaceConfig struct {
	OwnerAddress       string
	MarketplaceAddress string
}

type RedisConfig struct {
	URL     string
	Channel string
}

type EmailConfig struct {
	SendGridAPIKey string
	SenderEmail    string
	SenderName     string
}

type TelemetryConfig struct {
	Endpoint    string
	ServiceName string
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type TLSConfig struct {
	Enabled    bool
	CertPath   string
	KeyPath    string
	SelfSigned bool
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// bindings maps viper keys to the environment variables operators set.
var bindings = map[string]string{
	"server.port":                 "SERVER_PORT",
	"server.gin_mode":             "GIN_MODE",
	"server.app_env":              "APP_ENV",
	"database.backend":            "STORAGE_BACKEND",
	"database.url":                "DATABASE_URL",
	"database.max_conns":          "DB_MAX_CONNS",
	"database.min_conns":          "DB_MIN_CONNS",
	"database.max_conn_idle_time": "DB_MAX_CONN_IDLE_TIME",
	"database.apply_schema":       "APPLY_SCHEMA_ON_START",
	"database.schema_path":        "SCHEMA_PATH",
	"marketplace.owner_address":   "MARKETPLACE_OWNER_ADDRESS",
	"marketplace.address":         "MARKETPLACE_ADDRESS",
	"redis.url":                   "REDIS_URL",
	"redis.channel":               "REDIS_CHANNEL",
	"email.sendgrid_api_key":      "SENDGRID_API_KEY",
	"email.sender_email":          "SENDGRID_SENDER_EMAIL",
	"email.sender_name":           "SENDGRID_SENDER_NAME",
	"telemetry.endpoint":          "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.service_name":      "OTEL_SERVICE_NAME",
	"cors.allowed_origins":        "CORS_ALLOWED_ORIGINS",
	"cors.allow_credentials":      "CORS_ALLOW_CREDENTIALS",
	"rate_limit.rps":              "RATE_LIMIT_RPS",
	"rate_limit.burst":            "RATE_LIMIT_BURST",
	"tls.enabled":                 "ENABLE_TLS",
	"tls.cert_path":               "TLS_CERT_PATH",
	"tls.key_path":                "TLS_KEY_PATH",
	"tls.self_signed":             "TLS_SELF_SIGNED",
	"log.level":                   "LOG_LEVEL",
	"log.file":                    "LOG_FILE",
	"log.max_size_mb":             "LOG_MAX_SIZE_MB",
	"log.max_backups":             "LOG_MAX_BACKUPS",
	"log.max_age_days":            "LOG_MAX_AGE_DAYS",
	"log.compress":                "LOG_COMPRESS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.app_env", "development")
	v.SetDefault("database.backend", BackendPostgres)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_idle_time", "5m")
	v.SetDefault("database.apply_schema", true)
	v.SetDefault("redis.channel", "soundwork:events")
	v.SetDefault("email.sender_name", "Soundwork Marketplace")
	v.SetDefault("telemetry.service_name", "soundwork")
	v.SetDefault("cors.allowed_origins", "http://localhost:3000")
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("tls.cert_path", "certs/server.crt")
	v.SetDefault("tls.key_path", "certs/server.key")
	v.SetDefault("tls.self_signed", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// Load reads .env (when present), then the process environment. A missing
// .env file is fine.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromViper(viper.New())
}

// FromViper binds the environment into v and decodes the result.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:    v.GetString("server.port"),
			GinMode: v.GetString("server.gin_mode"),
			AppEnv:  v.GetString("server.app_env"),
		},
		Database: DatabaseConfig{
			Backend:         strings.ToLower(v.GetString("database.backend")),
			URL:             v.GetString("database.url"),
			MaxConns:        v.GetInt32("database.max_conns"),
			MinConns:        v.GetInt32("database.min_conns"),
			MaxConnIdleTime: v.GetDuration("database.max_conn_idle_time"),
			ApplySchema:     v.GetBool("database.apply_schema"),
			SchemaPath:      v.GetString("database.schema_path"),
		},
		Marketplace: MarketplaceConfig{
			OwnerAddress:       v.GetString("marketplace.owner_address"),
			MarketplaceAddress: v.GetString("marketplace.address"),
		},
		Redis: RedisConfig{
			URL:     v.GetString("redis.url"),
			Channel: v.GetString("redis.channel"),
		},
		Email: EmailConfig{
			SendGridAPIKey: v.GetString("email.sendgrid_api_key"),
			SenderEmail:    v.GetString("email.sender_email"),
			SenderName:     v.GetString("email.sender_name"),
		},
		Telemetry: TelemetryConfig{
			Endpoint:    v.GetString("telemetry.endpoint"),
			ServiceName: v.GetString("telemetry.service_name"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   splitList(v.GetString("cors.allowed_origins")),
			AllowCredentials: v.GetBool("cors.allow_credentials"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("rate_limit.rps"),
			Burst: v.GetInt("rate_limit.burst"),
		},
		TLS: TLSConfig{
			Enabled:    v.GetBool("tls.enabled"),
			CertPath:   v.GetString("tls.cert_path"),
			KeyPath:    v.GetString("tls.key_path"),
			SelfSigned: v.GetBool("tls.self_signed"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ledger.ParseAddress(c.Marketplace.OwnerAddress); err != nil {
		errs = append(errs, fmt.Errorf("MARKETPLACE_OWNER_ADDRESS: %w", err))
	}
	if _, err := ledger.ParseAddress(c.Marketplace.MarketplaceAddress); err != nil {
		errs = append(errs, fmt.Errorf("MARKETPLACE_ADDRESS: %w", err))
	}

	switch c.Database.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Database.Backend))
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.AppEnv)
	return env == "production" || env == "prod"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
