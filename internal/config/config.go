package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL        string
	RedisAddr          string
	ServerAddr         string
	MigrationsDir      string
	TurnTimeout        time.Duration
	ReconnectWindow    time.Duration
	VoteWindow         time.Duration
	SweepInterval      time.Duration
	SweepBatchLimit    int
	MaxProcessedEvents int
	PushCooldown       time.Duration
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "skatesesh")
		pass := getenv("POSTGRES_PASSWORD", "skatesesh_pass")
		db := getenv("POSTGRES_DB", "skatesesh")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	return &Config{
		DatabaseURL:        dsn,
		RedisAddr:          getenv("REDIS_ADDR", "localhost:6379"),
		ServerAddr:         getenv("SERVER_ADDR", "0.0.0.0:8080"),
		MigrationsDir:      getenv("MIGRATIONS_DIR", "migrations"),
		TurnTimeout:        parseDuration(getenv("TURN_TIMEOUT", "90s"), 90*time.Second),
		ReconnectWindow:    parseDuration(getenv("RECONNECT_WINDOW", "2m"), 2*time.Minute),
		VoteWindow:         parseDuration(getenv("VOTE_WINDOW", "24h"), 24*time.Hour),
		SweepInterval:      parseDuration(getenv("SWEEP_INTERVAL", "15s"), 15*time.Second),
		SweepBatchLimit:    parseInt(getenv("SWEEP_BATCH_LIMIT", "100"), 100),
		MaxProcessedEvents: parseInt(getenv("MAX_PROCESSED_EVENTS", "50"), 50),
		PushCooldown:       parseDuration(getenv("PUSH_COOLDOWN", "5m"), 5*time.Minute),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
