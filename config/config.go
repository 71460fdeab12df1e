package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds all application configuration
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Storage       StorageConfig
	Auth          AuthConfig
	EventTriggers EventTriggersConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
	Cache         CacheConfig
	Jobs          JobsConfig
	Booking       BookingConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AppEnv         string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	CAFile   string
}

type StorageConfig struct {
	Backend string // memory or postgres
}

type AuthConfig struct {
	APIToken        string // Service-to-service token for minting actor sessions
	JWTSecret       string
	JWTIssuer       string
	SessionTTLHours int
}

type EventTriggersConfig struct {
	OfferAcceptedTriggerURL  string
	BookingCreatedTriggerURL string
}

type LoggingConfig struct {
	Level string
	Dir   string
}

type ObservabilityConfig struct {
	AlloyEndpoint     string
	ServiceName       string
	ServiceNamespace  string
	ServiceVersion    string
	ServiceInstanceID string
}

type ProfilingConfig struct {
	Enabled               bool
	Endpoint              string
	AppName               string
	SampleTypes           string
	UploadIntervalSeconds int
}

type CacheConfig struct {
	RequestTTLSeconds   int  // Request aggregate cache TTL in seconds
	DisableRequestCache bool // Read straight from the store on every request
}

type JobsConfig struct {
	StatsCronSpec string // robfig/cron spec, empty disables the job
}

type BookingConfig struct {
	Timezone    string // IANA zone scheduled dates are computed in
	JoinRetries int    // Re-resolve attempts after losing a slot race
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("PORT", "8081")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("ALLOWED_CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("STORAGE_BACKEND", StoragePostgres)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "/app/logs")
	v.SetDefault("O11Y_EXPORTER_ENDPOINT", "alloy:4318") // OTLP over HTTP
	v.SetDefault("O11Y_BE_SERVICE_NAME", "consultations-api")
	v.SetDefault("O11Y_SERVICE_NAMESPACE", "consultations")
	v.SetDefault("O11Y_BE_SERVICE_VERSION", "1.0.0")
	v.SetDefault("O11Y_PROFILING_ENABLED", false)
	v.SetDefault("O11Y_PROFILING_APP_NAME", "consultations-api")
	v.SetDefault("O11Y_PROFILING_SAMPLE_TYPES", "cpu,alloc_space,alloc_objects,goroutines,mutex,block")
	v.SetDefault("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS", 15)
	v.SetDefault("REQUEST_CACHE_TTL", 30)
	v.SetDefault("DISABLE_REQUEST_CACHE", false)
	v.SetDefault("STATS_CRON_SPEC", "@every 1m")
	v.SetDefault("BOOKING_TIMEZONE", "UTC")
	v.SetDefault("BOOKING_JOIN_RETRIES", 2)

	// Session defaults
	v.SetDefault("JWT_ISSUER", "consultations-api")
	v.SetDefault("SESSION_TTL_HOURS", 24)

	// Automatically read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // Ignore error if .env file doesn't exist

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			GinMode:        v.GetString("GIN_MODE"),
			AppEnv:         v.GetString("APP_ENV"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_CORS_ORIGINS")),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
			MinConns: v.GetInt32("DB_MIN_CONNS"),
			CAFile:   v.GetString("DATABASE_CA_FILE"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(v.GetString("STORAGE_BACKEND")),
		},
		Auth: AuthConfig{
			APIToken:        v.GetString("API_AUTH_TOKEN"),
			JWTSecret:       v.GetString("JWT_SECRET"),
			JWTIssuer:       v.GetString("JWT_ISSUER"),
			SessionTTLHours: v.GetInt("SESSION_TTL_HOURS"),
		},
		EventTriggers: EventTriggersConfig{
			OfferAcceptedTriggerURL:  v.GetString("OFFER_ACCEPTED_TRIGGER_URL"),
			BookingCreatedTriggerURL: v.GetString("BOOKING_CREATED_TRIGGER_URL"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Dir:   v.GetString("LOG_DIR"),
		},
		Observability: ObservabilityConfig{
			AlloyEndpoint:     v.GetString("O11Y_EXPORTER_ENDPOINT"),
			ServiceName:       v.GetString("O11Y_BE_SERVICE_NAME"),
			ServiceNamespace:  v.GetString("O11Y_SERVICE_NAMESPACE"),
			ServiceVersion:    v.GetString("O11Y_BE_SERVICE_VERSION"),
			ServiceInstanceID: v.GetString("SERVICE_INSTANCE_ID"),
		},
		Profiling: ProfilingConfig{
			Enabled:               v.GetBool("O11Y_PROFILING_ENABLED"),
			Endpoint:              v.GetString("O11Y_PROFILING_ENDPOINT"),
			AppName:               v.GetString("O11Y_PROFILING_APP_NAME"),
			SampleTypes:           v.GetString("O11Y_PROFILING_SAMPLE_TYPES"),
			UploadIntervalSeconds: v.GetInt("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS"),
		},
		Cache: CacheConfig{
			RequestTTLSeconds:   v.GetInt("REQUEST_CACHE_TTL"),
			DisableRequestCache: v.GetBool("DISABLE_REQUEST_CACHE"),
		},
		Jobs: JobsConfig{
			StatsCronSpec: v.GetString("STATS_CRON_SPEC"),
		},
		Booking: BookingConfig{
			Timezone:    v.GetString("BOOKING_TIMEZONE"),
			JoinRetries: v.GetInt("BOOKING_JOIN_RETRIES"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage.Backend)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.APIToken == "" {
		return fmt.Errorf("API_AUTH_TOKEN is required")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_CORS_ORIGINS is required")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("BOOKING_TIMEZONE is invalid: %w", err)
	}
	if c.Booking.JoinRetries < 0 {
		return fmt.Errorf("BOOKING_JOIN_RETRIES must not be negative")
	}

	if c.Profiling.Enabled && c.Profiling.Endpoint == "" {
		return fmt.Errorf("O11Y_PROFILING_ENDPOINT is required when profiling is enabled")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development" || c.Server.GinMode == "debug"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.AppEnv == "production"
}

// Location returns the calendar scheduled booking dates are computed in
func (c *Config) Location() (*time.Location, error) {
	if c.Booking.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Booking.Timezone)
}

// RequestCacheTTL returns the request cache TTL as a duration
func (c *Config) RequestCacheTTL() time.Duration {
	return time.Duration(c.Cache.RequestTTLSeconds) * time.Second
}
