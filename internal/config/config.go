package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all engine configuration.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings
	Database DatabaseConfig

	// Security settings
	Security SecurityConfig

	// MainDomain is the site's own domain, used to rewrite absolute URLs in
	// rich-text fields to domain-relative form before storage.
	MainDomain string `env:"MAIN_DOMAIN" envDefault:""`
}

// DatabaseConfig holds MySQL connection settings.
type DatabaseConfig struct {
	Host         string `env:"MYSQL_HOST" envDefault:"localhost"`
	Port         int    `env:"MYSQL_PORT" envDefault:"3306"`
	User         string `env:"MYSQL_USER" envDefault:"wiser"`
	Password     string `env:"MYSQL_PASSWORD" envDefault:""`
	Database     string `env:"MYSQL_DATABASE" envDefault:"wiser"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	QueryDebug   bool   `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the MySQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true&charset=utf8mb4",
		d.User, d.Password, d.Host, d.Port, d.Database,
	)
}

// SecurityConfig holds the keys used for field encryption and id obfuscation.
type SecurityConfig struct {
	// EncryptionKey is the default AES key for secure-input fields and
	// encrypted item ids. Individual operations may override it.
	EncryptionKey string `env:"ENCRYPTION_KEY" envDefault:""`
}

// NewConfig loads configuration from the environment. A .env file is loaded
// first when present, matching local development setups.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
