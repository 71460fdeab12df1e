package db

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig contains database pool configuration parameters
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	// CAFile is a PEM bundle used to verify the server when the URL asks for TLS
	CAFile string
}

// configureTLS returns nil when the URL does not request TLS (local development)
func configureTLS(databaseURL, caFile string) (*tls.Config, error) {
	if databaseURL == "" || !containsSSLMode(databaseURL) {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		// System roots
		return tlsConfig, nil
	}

	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate from %s: %w", caFile, err)
	}

	rootCertPool := x509.NewCertPool()
	if ok := rootCertPool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("failed to append CA certificate to pool")
	}
	tlsConfig.RootCAs = rootCertPool

	if serverName := os.Getenv("DATABASE_TLS_SERVER_NAME"); serverName != "" {
		tlsConfig.ServerName = serverName
	}

	return tlsConfig, nil
}

// containsSSLMode checks if DATABASE_URL has a verifying sslmode parameter
func containsSSLMode(url string) bool {
	return strings.Contains(url, "sslmode=require") ||
		strings.Contains(url, "sslmode=verify-full") ||
		strings.Contains(url, "sslmode=verify-ca")
}

// NewPool creates a PostgreSQL connection pool and verifies it with a ping.
//
// Pool tuning:
//   - MaxConns / MinConns come from config
//   - HealthCheckPeriod: 30s
//   - MaxConnLifetime: 1h
//   - MaxConnIdleTime: 30m
func NewPool(ctx context.Context, poolCfg PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(poolCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	tlsConfig, err := configureTLS(poolCfg.URL, poolCfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	if tlsConfig != nil {
		config.ConnConfig.TLSConfig = tlsConfig
	}

	if poolCfg.MaxConns > 0 {
		config.MaxConns = poolCfg.MaxConns
	}
	config.MinConns = poolCfg.MinConns
	config.HealthCheckPeriod = 30 * time.Second
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
