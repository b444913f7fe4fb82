package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	GinMode string `envconfig:"GIN_MODE" default:"release"`

	EnableDB      bool   `envconfig:"ENABLE_DB" default:"false"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	SessionCacheSize int           `envconfig:"SESSION_CACHE_SIZE" default:"256"`
	SessionCacheTTL  time.Duration `envconfig:"SESSION_CACHE_TTL" default:"24h"`
	PersistTimeout   time.Duration `envconfig:"PERSIST_TIMEOUT" default:"3s"`

	ProfilesPath string `envconfig:"PROFILES_PATH"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"INFO"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.EnableDB && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	if c.RunMigrations && !c.EnableDB {
		return fmt.Errorf("RUN_MIGRATIONS requires ENABLE_DB=true")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.SessionCacheSize <= 0 {
		return fmt.Errorf("SESSION_CACHE_SIZE must be positive, got %d", c.SessionCacheSize)
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("PERSIST_TIMEOUT must be positive, got %s", c.PersistTimeout)
	}
	return nil
}
