package config

import (
	"os"
	"strconv"
	"strings"
)

// Config captures process-level configuration for the audit service.
type Config struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string
	// VerifyScanLimit bounds full-trail verification and export reads.
	VerifyScanLimit int
}

// FromEnv builds a Config from environment variables so main stays lean.
// DatabaseURL, RedisURL, and KafkaBrokers are optional: without them the
// service runs on the in-memory store with fan-out disabled, which is only
// suitable for local development.
func FromEnv() Config {
	addr := os.Getenv("VERITRAIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "audit.entries"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(b); trimmed != "" {
				brokers = append(brokers, trimmed)
			}
		}
	}

	verifyLimit := 10_000
	if raw := os.Getenv("VERITRAIL_VERIFY_LIMIT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			verifyLimit = n
		}
	}

	return Config{
		Addr:            addr,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    brokers,
		KafkaTopic:      topic,
		JWTSigningKey:   jwtSigningKey,
		VerifyScanLimit: verifyLimit,
	}
}
