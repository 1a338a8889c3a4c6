package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/verlyn13/dicee-sub002/internal/v1/logging"
)

// Config holds validated environment configuration.
type Config struct {
	// Required variables
	JWTSecret string
	Port      string

	// Optional variables with defaults
	GoEnv         string
	LogLevel      string
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Auth0 / dev escape hatch
	Auth0Domain     string
	Auth0Audience   string
	SkipAuth        bool
	DevelopmentMode bool
	AllowedOrigins  string

	// Rate limits (Defaults: M = Minute, H = Hour)
	RateLimitAPIGlobal   string
	RateLimitAPIPublic   string
	RateLimitAPIRooms    string
	RateLimitAPIMessages string
	RateLimitWsIP        string
	RateLimitWsUser      string

	// Room actor lifecycle timing, spec section 6.5.
	ReclaimWindowMs  int
	PauseTimeoutMs   int
	PauseDebounceMs  int
	InviteTTLMs      int
	MaxChatMessages  int
	MaxMessageLen    int
	MaxPlayers       int
}

// ValidateEnv validates all required environment variables and returns a
// Config object. Returns an error if any required variable is missing or
// invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWTSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			logging.Warn(context.Background(), "REDIS_ADDR not set, using default", zap.String("addr", cfg.RedisAddr))
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
	cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")
	cfg.SkipAuth = os.Getenv("SKIP_AUTH") == "true"
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	if cfg.SkipAuth && cfg.GoEnv == "production" {
		errs = append(errs, "SKIP_AUTH cannot be enabled when GO_ENV=production")
	}

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitAPIMessages = getEnvOrDefault("RATE_LIMIT_API_MESSAGES", "500-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")

	cfg.ReclaimWindowMs = getEnvIntOrDefault("RECLAIM_WINDOW_MS", 30_000, &errs)
	cfg.PauseTimeoutMs = getEnvIntOrDefault("PAUSE_TIMEOUT_MS", 120_000, &errs)
	cfg.PauseDebounceMs = getEnvIntOrDefault("PAUSE_DEBOUNCE_MS", 2_000, &errs)
	cfg.InviteTTLMs = getEnvIntOrDefault("INVITE_TTL_MS", 60_000, &errs)
	cfg.MaxChatMessages = getEnvIntOrDefault("MAX_CHAT_MESSAGES", 200, &errs)
	cfg.MaxMessageLen = getEnvIntOrDefault("MAX_MESSAGE_LEN", 500, &errs)
	cfg.MaxPlayers = getEnvIntOrDefault("MAX_PLAYERS", 6, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	return parts[0] != ""
}

func logValidatedConfig(cfg *Config) {
	logging.Info(context.Background(), "environment configuration validated",
		zap.String("jwt_secret", redactSecret(cfg.JWTSecret)),
		zap.String("port", cfg.Port),
		zap.Bool("redis_enabled", cfg.RedisEnabled),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("go_env", cfg.GoEnv),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("development_mode", cfg.DevelopmentMode),
		zap.String("rate_limit_api_global", cfg.RateLimitAPIGlobal),
		zap.Int("reclaim_window_ms", cfg.ReclaimWindowMs),
		zap.Int("pause_timeout_ms", cfg.PauseTimeoutMs),
		zap.Int("pause_debounce_ms", cfg.PauseDebounceMs),
		zap.Int("invite_ttl_ms", cfg.InviteTTLMs),
		zap.Int("max_players", cfg.MaxPlayers),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int, errs *[]string) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be a positive integer (got '%s')", key, raw))
		return defaultValue
	}
	return v
}

func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
