package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all environment configuration values for the chat server.
// These values are loaded from a .env file at startup.
type Config struct {
	// ServerPort is the port the HTTP server listens on
	ServerPort string

	// Environment selects the logger flavour ("development" or anything else)
	Environment string

	// DatabaseURL is the Postgres connection string for message storage.
	// Empty means messages are kept in memory.
	DatabaseURL string

	// SupabaseURL is the URL of the Supabase project that owns swap requests and users
	SupabaseURL string

	// SupabaseKey is the service role key for backend operations
	// This key has elevated privileges and should never be exposed to clients
	SupabaseKey string

	// NatsURL enables cross-instance fan-out when set
	NatsURL string

	// NatsSubjectPrefix is prepended to conversation ids to form relay subjects
	NatsSubjectPrefix string

	// InstanceID identifies this server on the relay so it can skip its own messages
	InstanceID string

	// CORSOrigins lists the origins allowed by the CORS middleware
	CORSOrigins []string

	// MaxMessageLength bounds message content after trimming
	MaxMessageLength int
}

// Load reads environment variables and returns a populated Config struct.
// It will load from a .env file if present, then read from environment variables.
// Falls back to sensible defaults if values are not set.
func Load() *Config {
	// Not an error if it doesn't exist; production uses real environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	hostname, _ := os.Hostname()

	config := &Config{
		ServerPort:        getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SupabaseURL:       getEnv("SUPABASE_URL", ""),
		SupabaseKey:       getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		NatsURL:           getEnv("NATS_URL", ""),
		NatsSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "swapchat.conversations"),
		InstanceID:        getEnv("INSTANCE_ID", hostname),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		MaxMessageLength:  getEnvAsInt("MAX_MESSAGE_LENGTH", 1000),
	}

	if config.InstanceID == "" {
		config.InstanceID = "swapchat-1"
	}

	if config.DatabaseURL == "" {
		log.Println("WARNING: DATABASE_URL is not set, chat messages will not survive a restart")
	}
	if config.SupabaseURL != "" && config.SupabaseKey == "" {
		log.Println("WARNING: SUPABASE_URL is set but SUPABASE_SERVICE_ROLE_KEY is not")
	}

	return config
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.Printf("WARNING: invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// splitList splits a comma-separated value and trims whitespace
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
