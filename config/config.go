package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	StoreDriver   string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateCacheTTL  time.Duration
	EventStream   string
	AuditStream   string
	SystemOwnerID string
}

// Load reads the given env files (".env" when none are named) into the
// process environment and builds the Config from it. A missing file is not
// an error; values already set in the environment win.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		log.Printf("Warning: no env file loaded (%v), relying on system environment", err)
	}

	cfg := &Config{
		StoreDriver:   getEnv("STORE_DRIVER", DriverMemory),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		EventStream:   getEnv("EVENT_STREAM", "ledger-events"),
		AuditStream:   getEnv("AUDIT_STREAM", "ledger-audit"),
		SystemOwnerID: getEnv("SYSTEM_OWNER_ID", "bank"),
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.RateCacheTTL, err = time.ParseDuration(getEnv("RATE_CACHE_TTL", "5m")); err != nil {
		return nil, fmt.Errorf("invalid RATE_CACHE_TTL: %w", err)
	}

	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("STORE_DRIVER=%s requires DATABASE_URL", DriverPostgres)
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, DriverMemory, DriverPostgres)
	}
	return cfg, nil
}

// RedisEnabled reports whether the rate cache and stream publishers should
// be wired.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
