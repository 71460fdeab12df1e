package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/getmentor/consultations-api/config"
	"github.com/getmentor/consultations-api/pkg/db"
	"github.com/getmentor/consultations-api/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	direction := flag.String("direction", string(db.Up), "migration direction: up or down")
	path := flag.String("path", "file://migrations", "migrations source URL")
	flag.Parse()

	if *direction != string(db.Up) && *direction != string(db.Down) {
		fmt.Fprintf(os.Stderr, "Unknown direction %q, want up or down\n", *direction)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: "consultations-migrate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Storage.Backend != config.StoragePostgres {
		logger.Warn("STORAGE_BACKEND is not postgres, nothing to migrate")
		return
	}

	logger.Info("Starting database migrations",
		zap.String("direction", *direction),
		zap.String("database", maskDatabaseURL(cfg.Database.URL)))

	if err := db.RunMigrations(cfg.Database.URL, cfg.Database.CAFile, *path, db.Direction(*direction)); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Database migrations completed successfully")
}

// maskDatabaseURL hides the password in a database URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.Redacted()
}
