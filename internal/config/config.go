// Package config reads process settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr              string
	GRPCAddr              string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	JWTSecret             string
	JWTIssuer             string
	SiteURL               string
	Env                   string
	LogLevel              string
	PolicyFile            string
	SessionReaperInterval time.Duration
	AuditQueueSize        int
	HTTPRateBurst         int
	HTTPRatePerSec        float64
	AllowedOrigins        []string
}

// Production reports whether cookies must carry the Secure flag.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func Load() Config {
	return Config{
		HTTPAddr:              getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:              getenv("GRPC_ADDR", ":9090"),
		DatabaseURL:           getenv("DATABASE_URL", ""),
		RedisAddr:             getenv("REDIS_ADDR", ""),
		RedisPassword:         getenv("REDIS_PASSWORD", ""),
		JWTSecret:             getenv("AUTH_JWT_SECRET", ""),
		JWTIssuer:             getenv("AUTH_JWT_ISSUER", "mise-auth"),
		SiteURL:               strings.TrimRight(getenv("MISE_SITE_URL", "http://localhost:3000"), "/"),
		Env:                   getenv("MISE_ENV", "development"),
		LogLevel:              getenv("LOG_LEVEL", "info"),
		PolicyFile:            getenv("POLICY_FILE", ""),
		SessionReaperInterval: getenvDuration("SESSION_REAPER_INTERVAL", 5*time.Minute),
		AuditQueueSize:        getenvInt("AUDIT_QUEUE_SIZE", 1024),
		HTTPRateBurst:         getenvInt("HTTP_RATE_BURST", 20),
		HTTPRatePerSec:        getenvFloat("HTTP_RATE_PER_SEC", 10),
		AllowedOrigins:        getenvList("ALLOWED_ORIGINS"),
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func getenvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
