package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const migrationsDir = "../../migrations"

func TestMigrationFilesExist(t *testing.T) {
	for _, filename := range []string{
		"000001_initial_schema.up.sql",
		"000001_initial_schema.down.sql",
	} {
		_, err := os.Stat(filepath.Join(migrationsDir, filename))
		assert.NoError(t, err, "migration file %s must exist", filename)
	}
}

func TestInitialSchema_DeclaresAggregateTables(t *testing.T) {
	up, err := os.ReadFile(filepath.Join(migrationsDir, "000001_initial_schema.up.sql"))
	require.NoError(t, err)
	upSQL := string(up)

	for _, table := range []string{"consultation_requests", "consultation_offers", "time_slots", "bookings"} {
		assert.Contains(t, upSQL, "CREATE TABLE "+table)
	}

	// One accepted offer per request and one pending offer per instructor are enforced by the schema too
	assert.Contains(t, upSQL, "WHERE status = 'accepted'")
	assert.Contains(t, upSQL, "WHERE status = 'pending'")

	down, err := os.ReadFile(filepath.Join(migrationsDir, "000001_initial_schema.down.sql"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(down), "DROP TABLE"))
}

func TestConfigureTLS(t *testing.T) {
	cfg, err := configureTLS("postgres://localhost:5432/app", "")
	require.NoError(t, err)
	assert.Nil(t, cfg, "no sslmode means plain connection")

	cfg, err = configureTLS("postgres://db:5432/app?sslmode=require", "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Nil(t, cfg.RootCAs)

	_, err = configureTLS("postgres://db:5432/app?sslmode=verify-full", "/does/not/exist.pem")
	assert.Error(t, err)
}
