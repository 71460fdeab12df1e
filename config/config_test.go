package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		expected bool
	}{
		{
			name: "development environment",
			config: &Config{
				Server: ServerConfig{AppEnv: "development"},
			},
			expected: true,
		},
		{
			name: "debug gin mode",
			config: &Config{
				Server: ServerConfig{GinMode: "debug"},
			},
			expected: true,
		},
		{
			name: "production environment",
			config: &Config{
				Server: ServerConfig{AppEnv: "production"},
			},
			expected: false,
		},
		{
			name: "release mode",
			config: &Config{
				Server: ServerConfig{GinMode: "release", AppEnv: "production"},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.IsDevelopment())
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		expected bool
	}{
		{
			name:     "production environment",
			config:   &Config{Server: ServerConfig{AppEnv: "production"}},
			expected: true,
		},
		{
			name:     "development environment",
			config:   &Config{Server: ServerConfig{AppEnv: "development"}},
			expected: false,
		},
		{
			name:     "staging environment",
			config:   &Config{Server: ServerConfig{AppEnv: "staging"}},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.IsProduction())
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8081", AllowedOrigins: []string{"http://localhost:3000"}},
		Storage:  StorageConfig{Backend: StorageMemory},
		Auth:     AuthConfig{APIToken: "api-token", JWTSecret: "jwt-secret"},
		Booking:  BookingConfig{Timezone: "UTC", JoinRetries: 2},
		Database: DatabaseConfig{},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid memory config",
			mutate: func(c *Config) {},
		},
		{
			name: "valid postgres config",
			mutate: func(c *Config) {
				c.Storage.Backend = StoragePostgres
				c.Database.URL = "postgres://localhost:5432/consultations"
			},
		},
		{
			name:     "postgres without database url",
			mutate:   func(c *Config) { c.Storage.Backend = StoragePostgres },
			errorMsg: "DATABASE_URL is required",
		},
		{
			name:     "unknown storage backend",
			mutate:   func(c *Config) { c.Storage.Backend = "redis" },
			errorMsg: "STORAGE_BACKEND must be",
		},
		{
			name:     "missing jwt secret",
			mutate:   func(c *Config) { c.Auth.JWTSecret = "" },
			errorMsg: "JWT_SECRET is required",
		},
		{
			name:     "missing api token",
			mutate:   func(c *Config) { c.Auth.APIToken = "" },
			errorMsg: "API_AUTH_TOKEN is required",
		},
		{
			name:     "unknown timezone",
			mutate:   func(c *Config) { c.Booking.Timezone = "Mars/Olympus_Mons" },
			errorMsg: "BOOKING_TIMEZONE is invalid",
		},
		{
			name:     "negative join retries",
			mutate:   func(c *Config) { c.Booking.JoinRetries = -1 },
			errorMsg: "BOOKING_JOIN_RETRIES",
		},
		{
			name:     "profiling without endpoint",
			mutate:   func(c *Config) { c.Profiling.Enabled = true },
			errorMsg: "O11Y_PROFILING_ENDPOINT is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Location(t *testing.T) {
	cfg := validConfig()
	cfg.Booking.Timezone = ""
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.Booking.Timezone = "Europe/Berlin"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func chdirTemp(t *testing.T) {
	t.Helper()
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(originalDir) })
}

func TestLoad_WithDefaults(t *testing.T) {
	chdirTemp(t)
	os.Clearenv()

	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("API_AUTH_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.GinMode)
	assert.Equal(t, "production", cfg.Server.AppEnv)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/app/logs", cfg.Logging.Dir)
	assert.Equal(t, 30*time.Second, cfg.RequestCacheTTL())
	assert.Equal(t, "@every 1m", cfg.Jobs.StatsCronSpec)
	assert.Equal(t, 2, cfg.Booking.JoinRetries)
	assert.Equal(t, "consultations-api", cfg.Auth.JWTIssuer)
	assert.Equal(t, 24, cfg.Auth.SessionTTLHours)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	chdirTemp(t)
	os.Clearenv()

	t.Setenv("PORT", "9000")
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("APP_ENV", "development")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("STORAGE_BACKEND", "POSTGRES")
	t.Setenv("DATABASE_URL", "postgres://db/consultations")
	t.Setenv("DB_MAX_CONNS", "5")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("API_AUTH_TOKEN", "token")
	t.Setenv("OFFER_ACCEPTED_TRIGGER_URL", "https://hooks.example/offer")
	t.Setenv("BOOKING_CREATED_TRIGGER_URL", "https://hooks.example/booking")
	t.Setenv("BOOKING_TIMEZONE", "Europe/Berlin")
	t.Setenv("BOOKING_JOIN_RETRIES", "4")
	t.Setenv("DISABLE_REQUEST_CACHE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, StoragePostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://db/consultations", cfg.Database.URL)
	assert.Equal(t, int32(5), cfg.Database.MaxConns)
	assert.Equal(t, "https://hooks.example/offer", cfg.EventTriggers.OfferAcceptedTriggerURL)
	assert.Equal(t, "https://hooks.example/booking", cfg.EventTriggers.BookingCreatedTriggerURL)
	assert.Equal(t, "Europe/Berlin", cfg.Booking.Timezone)
	assert.Equal(t, 4, cfg.Booking.JoinRetries)
	assert.True(t, cfg.Cache.DisableRequestCache)
}

func TestLoad_ValidationFailure(t *testing.T) {
	chdirTemp(t)
	os.Clearenv()

	// postgres is the default backend and DATABASE_URL is missing
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("API_AUTH_TOKEN", "token")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
}
