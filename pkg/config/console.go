package config

import "time"

// ConsoleConfig holds runtime configuration for the console service.
type ConsoleConfig struct {
	Environment         string
	Addr                string
	DatabaseURL         string
	MigrationsDir       string
	MasterEncryptionKey string
	LogBuffer           int
	SSEHeartbeat        time.Duration
	RateLimitRedisAddr  string
	RateLimitRedisPass  string
	RateLimitRedisDB    int
}

// LoadConsoleConfig constructs a ConsoleConfig from environment variables.
func LoadConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		Environment:         GetString("APP_ENV", "development"),
		Addr:                GetString("CONSOLE_ADDR", ":8001"),
		DatabaseURL:         GetString("DATABASE_URL", "postgres://dsi:dsi@db:5432/dsi?sslmode=disable"),
		MigrationsDir:       GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		MasterEncryptionKey: GetString("MASTER_ENCRYPTION_KEY", "dev-master-key-32-bytes-long!!"),
		LogBuffer:           GetInt("LOG_STREAM_BUFFER", 100),
		SSEHeartbeat:        GetSeconds("SSE_HEARTBEAT_SECONDS", 15*time.Second),
		RateLimitRedisAddr:  GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:  GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:    GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
