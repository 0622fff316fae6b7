package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures everything main needs to wire the service. Values come from
// the environment (with an optional .env preload) so deployments stay twelve-factor.
type Config struct {
	Addr string

	// DatabaseURL selects the postgres store; when empty the server runs on the
	// in-memory store, which is only meant for local development and tests.
	DatabaseURL string

	RedisURL string
	CacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	PageSize    int
	MaxPageSize int

	ShutdownTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		Addr:            getenv("PADRON_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("PADRON_DATABASE_URL"),
		RedisURL:        os.Getenv("PADRON_REDIS_URL"),
		CacheTTL:        getduration("PADRON_CACHE_TTL", 5*time.Minute),
		KafkaBrokers:    getlist("PADRON_KAFKA_BROKERS"),
		KafkaTopic:      getenv("PADRON_KAFKA_TOPIC", "padron.audit"),
		PageSize:        getint("PADRON_PAGE_SIZE", 10),
		MaxPageSize:     getint("PADRON_MAX_PAGE_SIZE", 100),
		ShutdownTimeout: getduration("PADRON_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getlist(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
