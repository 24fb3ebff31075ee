package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const (
	ownerHex       = "0x1111111111111111111111111111111111111111"
	marketplaceHex = "0x9999999999999999999999999999999999999999"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, BackendPostgres, cfg.Database.Backend)
	require.EqualValues(t, 10, cfg.Database.MaxConns)
	require.Equal(t, 5*time.Minute, cfg.Database.MaxConnIdleTime)
	require.True(t, cfg.Database.ApplySchema)
	require.Equal(t, "soundwork:events", cfg.Redis.Channel)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, 10, cfg.RateLimit.Burst)
	require.False(t, cfg.TLS.Enabled)
}

func TestFromViper_Environment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "Memory")
	t.Setenv("DB_MAX_CONN_IDLE_TIME", "90s")
	t.Setenv("APPLY_SCHEMA_ON_START", "false")
	t.Setenv("MARKETPLACE_OWNER_ADDRESS", ownerHex)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("ENABLE_TLS", "true")
	t.Setenv("LOG_FILE", "/var/log/soundwork.log")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, BackendMemory, cfg.Database.Backend)
	require.Equal(t, 90*time.Second, cfg.Database.MaxConnIdleTime)
	require.False(t, cfg.Database.ApplySchema)
	require.Equal(t, ownerHex, cfg.Marketplace.OwnerAddress)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	require.InDelta(t, 2.5, cfg.RateLimit.RPS, 0.0001)
	require.True(t, cfg.TLS.Enabled)
	require.Equal(t, "/var/log/soundwork.log", cfg.Log.File)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:    DatabaseConfig{Backend: BackendPostgres, URL: "postgres://localhost/soundwork"},
			Marketplace: MarketplaceConfig{OwnerAddress: ownerHex, MarketplaceAddress: marketplaceHex},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Database.URL = ""
	require.ErrorContains(t, cfg.Validate(), "DATABASE_URL")

	cfg.Database.Backend = BackendMemory
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Marketplace.OwnerAddress = "not-an-address"
	require.ErrorContains(t, cfg.Validate(), "MARKETPLACE_OWNER_ADDRESS")

	cfg = valid()
	cfg.Database.Backend = "sqlite"
	require.ErrorContains(t, cfg.Validate(), "STORAGE_BACKEND")
}

func TestIsProduction(t *testing.T) {
	require.True(t, (&Config{Server: ServerConfig{AppEnv: "Production"}}).IsProduction())
	require.False(t, (&Config{Server: ServerConfig{AppEnv: "staging"}}).IsProduction())
}
