package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env  string
	Port string

	DatabaseURL string
	RedisURL    string

	SessionSecret string
	EncryptionKey string // base64, 32 bytes decoded; encrypts stored OAuth tokens
	CronSecret    string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	// BaseURL is the public URL of the frontend; share and verification
	// links in outbound email point here.
	BaseURL          string
	CORSAllowOrigins []string

	// Email provider selection: "smtp", "gmail", "resend", "brevo" or "stub"
	EmailProvider string
	EmailFrom     string
	SMTPHost      string
	SMTPPort      string
	SMTPUser      string
	SMTPPass      string
	ResendAPIKey  string
	BrevoAPIKey   string

	// Delay between sequential sends within one scheduler tick
	EmailSendDelay time.Duration

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Env:  getEnvWithDefault("ENV", "development"),
		Port: getEnvWithDefault("PORT", "8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),

		SessionSecret: os.Getenv("SESSION_SECRET"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		CronSecret:    os.Getenv("CRON_SECRET"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),

		BaseURL:          getEnvWithDefault("BASE_URL", "http://localhost:3000"),
		CORSAllowOrigins: splitEnvList("CORS_ALLOW_ORIGINS", "http://localhost:3000"),

		EmailProvider: getEnvWithDefault("EMAIL_PROVIDER", "stub"),
		EmailFrom:     getEnvWithDefault("EMAIL_FROM", "Dearly <no-reply@dearly.app>"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      getEnvWithDefault("SMTP_PORT", "587"),
		SMTPUser:      os.Getenv("SMTP_USER"),
		SMTPPass:      os.Getenv("SMTP_PASS"),
		ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
		BrevoAPIKey:   os.Getenv("BREVO_API_KEY"),

		EmailSendDelay: getEnvDuration("EMAIL_SEND_DELAY", 500*time.Millisecond),

		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    getEnvWithDefault("S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),
	}

	// Warn if using default session secret (insecure for production)
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
		log.Println("WARNING: Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}

	return cfg
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitEnvList(key, defaultValue string) []string {
	raw := getEnvWithDefault(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Allow plain millisecond values, e.g. EMAIL_SEND_DELAY=500
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Printf("WARNING: Invalid %s value %q, using default %s", key, raw, defaultValue)
	return defaultValue
}
