// ==============================================================================
// CONFIG PACKAGE - pkg/config/config.go
// ==============================================================================
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Upstream  UpstreamConfig
	Session   SessionConfig
	Stats     StatsConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// CORSOrigins lists browser origins allowed to call the portal with
	// credentials. Empty reflects any origin.
	CORSOrigins []string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
}

// UpstreamConfig points at the remote card API.
type UpstreamConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type SessionConfig struct {
	TTL          time.Duration
	CookieName   string
	SecureCookie bool
}

// StatsConfig holds the dashboard fetch policy: all-time statistics walk the
// full transaction set in PageSize chunks (at most MaxPages), while display
// lists fetch a single DisplayPageSize page.
type StatsConfig struct {
	PageSize        int
	MaxPages        int
	DisplayPageSize int
	CacheTTL        time.Duration
	StreamInterval  time.Duration
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// LoadDotEnv reads a .env file when present; a missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "9090"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			CORSOrigins:  getListEnv("CORS_ALLOWED_ORIGINS"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Upstream: UpstreamConfig{
			BaseURL:    strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/"),
			Timeout:    getDurationEnv("API_TIMEOUT", 15*time.Second),
			MaxRetries: getIntEnv("API_MAX_RETRIES", 2),
			RetryDelay: getDurationEnv("API_RETRY_DELAY", 250*time.Millisecond),
		},
		Session: SessionConfig{
			TTL:          getDurationEnv("SESSION_TTL", 8*time.Hour),
			CookieName:   getEnv("SESSION_COOKIE", "cardhub_session"),
			SecureCookie: getBoolEnv("SESSION_SECURE_COOKIE", false),
		},
		Stats: StatsConfig{
			PageSize:        getIntEnv("STATS_PAGE_SIZE", 500),
			MaxPages:        getIntEnv("STATS_MAX_PAGES", 40),
			DisplayPageSize: getIntEnv("DISPLAY_PAGE_SIZE", 10),
			CacheTTL:        getDurationEnv("STATS_CACHE_TTL", 30*time.Second),
			StreamInterval:  getDurationEnv("STATS_STREAM_INTERVAL", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
			Window:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}
