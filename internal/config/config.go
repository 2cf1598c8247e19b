// Package config loads the porter configuration from porter.yml (or
// porter.yaml) and PORTER_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the porter configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Import   ImportConfig   `mapstructure:"import"`
	Export   ExportConfig   `mapstructure:"export"`
	Staging  StagingConfig  `mapstructure:"staging"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL    string `mapstructure:"url"`
	Driver string `mapstructure:"driver"`
}

// ImportConfig carries the default import tuning knobs
type ImportConfig struct {
	BatchSize       int  `mapstructure:"batch_size"`
	UseTransactions bool `mapstructure:"use_transactions"`
	SkipUnchanged   bool `mapstructure:"skip_unchanged"`
}

// ExportConfig carries the default export tuning knobs
type ExportConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

// StagingConfig configures where uploaded files are staged between the
// preview and confirm steps of an import
type StagingConfig struct {
	Backend    string `mapstructure:"backend"` // filesystem or redis
	Directory  string `mapstructure:"directory"`
	RedisAddr  string `mapstructure:"redis_addr"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// Load loads the configuration from porter.yml or porter.yaml
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("import.batch_size", 1000)
	v.SetDefault("import.use_transactions", true)
	v.SetDefault("export.chunk_size", 100)
	v.SetDefault("staging.backend", "filesystem")
	v.SetDefault("staging.directory", os.TempDir())
	v.SetDefault("staging.redis_addr", "localhost:6379")
	v.SetDefault("staging.ttl_minutes", 60)

	// Set config name and paths
	v.SetConfigName("porter")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.SetEnvPrefix("PORTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	cfg, err := Load()
	if err != nil {
		return ""
	}
	return cfg.Database.URL
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "pgx", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be pgx or sqlite3, got: %s", cfg.Database.Driver)
	}

	switch cfg.Staging.Backend {
	case "filesystem", "redis":
	default:
		return fmt.Errorf("staging.backend must be filesystem or redis, got: %s", cfg.Staging.Backend)
	}

	if cfg.Import.BatchSize <= 0 {
		return fmt.Errorf("import.batch_size must be positive, got: %d", cfg.Import.BatchSize)
	}
	if cfg.Export.ChunkSize <= 0 {
		return fmt.Errorf("export.chunk_size must be positive, got: %d", cfg.Export.ChunkSize)
	}
	return nil
}
