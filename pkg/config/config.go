// Package config reads service configuration from the environment. In
// development a .env file is honored; production deployments set real
// environment variables.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds configuration shared across the gateway, api and messaging
// services. Each service reads only the fields it needs.
type Config struct {
	Env string

	GatewayAddr string
	APIAddr     string

	KafkaBrokers []string
	KafkaTopic   string

	ScyllaHosts    []string
	ScyllaKeyspace string

	RedisAddr string

	JWTSecret string

	// SnowflakeNode must be unique per gateway instance (0..1023).
	SnowflakeNode int64
}

// Load reads configuration, loading .env first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:            getEnv("ENV", "development"),
		GatewayAddr:    getEnv("GATEWAY_ADDR", ":8080"),
		APIAddr:        getEnv("API_ADDR", ":8081"),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "localhost:19092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "chat-events"),
		ScyllaHosts:    splitList(getEnv("SCYLLA_HOSTS", "localhost:9042")),
		ScyllaKeyspace: getEnv("SCYLLA_KEYSPACE", "chat"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-only-secret"),
		SnowflakeNode:  getEnvInt64("SNOWFLAKE_NODE", 1),
	}
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
