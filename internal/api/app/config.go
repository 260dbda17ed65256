package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cartogra/cartogra/internal/api/ratelimit"
	"github.com/cartogra/cartogra/pkg/jwtx"
)

type Config struct {
	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
	Port      int    // HTTP server port (default: 8080)

	DatabaseFile string // Path to SQLite database file (default: ./cartogra.db)

	RedisAddr     string // Optional: redis host:port; empty disables revocation + rate limiting
	RedisPassword string // Optional: redis password

	JWTSecret    string        // Required: HMAC signing secret, at least 32 bytes
	JWTAlgorithm string        // Optional: HS256 (default), HS384 or HS512
	AccessTTL    time.Duration // Access token lifetime (default: 30m)
	RefreshTTL   time.Duration // Refresh token lifetime (default: 168h / 7 days)

	AnonLimit ratelimit.Policy // Per-IP limit for anonymous requests (default: 100/min)
	AuthLimit ratelimit.Policy // Per-user limit for authenticated requests (default: 1000/min)

	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		Port:      getEnvIntOrDefault("PORT", 8080),

		DatabaseFile: getEnvOrDefault("DATABASE_FILE", "cartogra.db"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTAlgorithm: getEnvOrDefault("JWT_ALGORITHM", "HS256"),
		AccessTTL:    time.Duration(getEnvIntOrDefault("ACCESS_TOKEN_TTL_MIN", 30)) * time.Minute,
		RefreshTTL:   time.Duration(getEnvIntOrDefault("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,

		AnonLimit: ratelimit.Policy{
			Limit:  getEnvIntOrDefault("RATELIMIT_ANON_REQUESTS", 100),
			Window: time.Duration(getEnvIntOrDefault("RATELIMIT_ANON_WINDOW_SEC", 60)) * time.Second,
		},
		AuthLimit: ratelimit.Policy{
			Limit:  getEnvIntOrDefault("RATELIMIT_AUTH_REQUESTS", 1000),
			Window: time.Duration(getEnvIntOrDefault("RATELIMIT_AUTH_WINDOW_SEC", 60)) * time.Second,
		},

		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// Validate catches configuration the process must not start with. A weak
// signing secret would silently undermine every token, so it is a hard error
// rather than a logged warning.
func (c Config) Validate() error {
	if len(c.JWTSecret) < jwtx.MinSecretLen {
		return fmt.Errorf("JWT_SECRET must be set and at least %d bytes", jwtx.MinSecretLen)
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWTAlgorithm)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.AnonLimit.Limit <= 0 || c.AuthLimit.Limit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
