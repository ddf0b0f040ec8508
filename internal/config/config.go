package config

import (
	"fmt"
	"time"

	"github.com/eduportal/integrity/internal/configs/env"
)

const (
	NotesSourceMongo    = "mongo"
	NotesSourceSupabase = "supabase"
)

// Config holds all configuration for the application
type Config struct {
	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis
	RedisHost               string
	RedisPassword           string
	RedisSubmissionStream   string
	RedisConsumerGroup      string
	RedisDeadLetterKey      string
	RedisLockStream         string
	RedisSignalPrefix       string
	StreamRetentionDuration time.Duration

	// Notes
	NotesSource string
	SupabaseURL string
	SupabaseKey string

	// JWT
	JWTSecret string

	// Rate Limiting
	RateLimitRPS float64

	// Concurrency
	MaxConcurrentChecks int

	// Computation
	CheckTimeout time.Duration

	// Proctoring
	ProctorPollInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "localhost:6379")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisSubmissionStream = env.GetEnv("REDIS_SUBMISSION_STREAM", "integrity:submissions")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "integrity:group")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "integrity:dlq")
	cfg.RedisLockStream = env.GetEnv("REDIS_LOCK_STREAM", "integrity:locks")
	cfg.RedisSignalPrefix = env.GetEnv("REDIS_SIGNAL_PREFIX", "proctoring:signals:")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_HOURS", 24)
	cfg.StreamRetentionDuration = time.Duration(retentionHours) * time.Hour

	// Notes
	cfg.NotesSource = env.GetEnv("NOTES_SOURCE", NotesSourceMongo)
	cfg.SupabaseURL = env.GetEnv("SUPABASE_URL", "")
	cfg.SupabaseKey = env.GetEnv("SUPABASE_KEY", "")

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// Concurrency
	cfg.MaxConcurrentChecks = env.GetEnvInt("MAX_CONCURRENT_CHECKS", 5)

	// Computation
	timeoutMinutes := env.GetEnvInt("CHECK_TIMEOUT_MINUTES", 5)
	cfg.CheckTimeout = time.Duration(timeoutMinutes) * time.Minute

	// Proctoring
	cfg.ProctorPollInterval = env.GetEnvSeconds("PROCTOR_POLL_INTERVAL_SECONDS", 2*time.Second)

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "2112")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("MONGO_DB_NAME is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.NotesSource {
	case NotesSourceMongo:
	case NotesSourceSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required when NOTES_SOURCE=supabase")
		}
	default:
		return fmt.Errorf("NOTES_SOURCE must be %q or %q, got %q", NotesSourceMongo, NotesSourceSupabase, c.NotesSource)
	}
	if c.MaxConcurrentChecks <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_CHECKS must be greater than 0")
	}
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("CHECK_TIMEOUT_MINUTES must be greater than 0")
	}
	if c.StreamRetentionDuration <= 0 {
		return fmt.Errorf("STREAM_RETENTION_HOURS must be greater than 0")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be greater than 0")
	}
	return nil
}
