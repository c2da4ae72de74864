package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/cx-tal-miterani/flight-inventory/internal/database"
)

// Config holds runtime configuration. Every field maps to an environment
// variable; a .env file is read when present.
type Config struct {
	Env           string        // application environment (dev/prod)
	Port          string        // HTTP port to listen on
	DatabaseURL   string        // Postgres URL; empty selects the in-memory store
	RedisAddr     string        // Redis host:port; empty disables the availability cache
	RedisPassword string        // optional Redis password
	LockWaitMS    time.Duration // bounded wait for a flight's inventory lock
}

// Load reads configuration from the environment, with defaults suitable
// for local development.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:           getenv("APP_ENV", "dev"),
		Port:          getenv("API_PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LockWaitMS:    time.Duration(getenvInt("LOCK_WAIT_MS", int(database.DefaultLockWait.Milliseconds()))) * time.Millisecond,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
