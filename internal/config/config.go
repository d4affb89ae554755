package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"duet/internal/auth"

	"github.com/joho/godotenv"
)

const (
	StoreBackendBolt  = "bolt"
	StoreBackendRedis = "redis"
)

type Config struct {
	DBFile       string
	AdminAddr    string
	APIAddr      string
	AuthSecret   string
	TokenExpiry  time.Duration
	StoreBackend string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string
	LogLevel     string
	LogFormat    string
}

func Load(cliMode bool) (*Config, error) {
	// .env is optional and never overrides the real environment.
	_ = godotenv.Load()

	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_EXPIRY: %w", err)
	}

	cfg := &Config{
		DBFile:       getEnv("DUET_DB", "duet.db"),
		AdminAddr:    getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:      getEnv("API_ADDR", ":8080"),
		AuthSecret:   os.Getenv("AUTH_SECRET"),
		TokenExpiry:  tokenExpiry,
		StoreBackend: getEnv("STORE_BACKEND", StoreBackendBolt),
		RedisURL:     os.Getenv("REDIS_URL"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "chat.messages"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	switch c.StoreBackend {
	case StoreBackendBolt:
	case StoreBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for STORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	return nil
}

// AuthConfig derives the token signing config. AUTH_SECRET is taken as
// raw bytes.
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(c.AuthSecret)),
		TokenExpiry: c.TokenExpiry,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
