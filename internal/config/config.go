// Package config loads runtime configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting. Defaults suit local development;
// production deployments override through the environment.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// StoreDriver selects the persistence backend: mongo, sqlite or memory.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI    string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB     string `env:"MONGO_DB" envDefault:"tomatrack"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/tomatrack.db"`

	// RedisAddr enables the report cache when set. Leaving it empty runs
	// every report query live.
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	ReportCacheTTL time.Duration `env:"REPORT_CACHE_TTL" envDefault:"5m"`

	// ServiceTokenSecret signs the JWTs that internal services present on
	// /internal routes. At least 16 characters.
	ServiceTokenSecret string        `env:"SERVICE_TOKEN_SECRET,required,notEmpty"`
	ServiceTokenTTL    time.Duration `env:"SERVICE_TOKEN_TTL" envDefault:"15m"`

	// SnapshotSchedule is a cron expression for the nightly score job.
	// Empty disables the job.
	SnapshotSchedule string `env:"SNAPSHOT_SCHEDULE" envDefault:"@daily"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads .env when present, then parses the environment into a Config.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); !os.IsNotExist(err) {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("config: loading .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	return cfg, nil
}
