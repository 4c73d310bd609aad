package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("MYSQL_HOST", "db.internal")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("MYSQL_USER", "gcl")
	t.Setenv("MYSQL_DATABASE", "webshop")
	t.Setenv("MAIN_DOMAIN", "example.com")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "example.com", cfg.MainDomain)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "wiser",
		Password: "geheim",
		Database: "webshop",
	}

	assert.Equal(t,
		"wiser:geheim@tcp(localhost:3306)/webshop?parseTime=true&multiStatements=true&charset=utf8mb4",
		cfg.DSN())
}
