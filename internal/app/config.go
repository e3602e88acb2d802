package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/crawlshastra-backend/internal/clients/redis"
	"github.com/yungbote/crawlshastra-backend/internal/data/db"
	httpMW "github.com/yungbote/crawlshastra-backend/internal/http/middleware"
	"github.com/yungbote/crawlshastra-backend/internal/observability"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/envutil"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

const defaultJWTSecret = "defaultsecret"

type Config struct {
	Port         string
	LogMode      string
	JWTSecretKey string

	// DBDriver is "postgres" or "sqlite".
	DBDriver   string
	Postgres   db.PostgresConfig
	SQLitePath string

	// Redis.Addr empty disables the thread list cache.
	Redis redis.Config

	RateLimitEnabled bool
	RateLimit        httpMW.RateLimitConfig

	MetricsEnabled bool
	CORSOrigins    []string
	Otel           observability.OtelConfig
}

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:         envutil.GetEnv("PORT", "8080", log),
		LogMode:      envutil.GetEnv("LOG_MODE", "development", log),
		JWTSecretKey: envutil.GetEnv("JWT_SECRET_KEY", defaultJWTSecret, log),
		DBDriver:     strings.ToLower(envutil.GetEnv("DB_DRIVER", "postgres", log)),
		Postgres: db.PostgresConfig{
			Host:     envutil.GetEnv("POSTGRES_HOST", "localhost", log),
			Port:     envutil.GetEnv("POSTGRES_PORT", "5432", log),
			User:     envutil.GetEnv("POSTGRES_USER", "postgres", log),
			Password: envutil.GetEnv("POSTGRES_PASSWORD", "", log),
			Name:     envutil.GetEnv("POSTGRES_NAME", "crawlshastra", log),
			SSLMode:  envutil.GetEnv("POSTGRES_SSLMODE", "disable", log),
		},
		SQLitePath: envutil.GetEnv("SQLITE_PATH", "crawlshastra.db", log),
		Redis: redis.Config{
			Addr:      envutil.GetEnv("REDIS_ADDR", "", log),
			Password:  envutil.GetEnv("REDIS_PASSWORD", "", log),
			DB:        envutil.GetEnvAsInt("REDIS_DB", 0, log),
			KeyPrefix: envutil.GetEnv("REDIS_KEY_PREFIX", "chats", log),
			TTL:       envutil.GetEnvAsDuration("THREAD_CACHE_TTL", 5*time.Minute, log),
		},
		RateLimitEnabled: envutil.GetEnvAsBool("RATE_LIMIT_ENABLED", true, log),
		RateLimit: httpMW.RateLimitConfig{
			RPS:   envutil.GetEnvAsFloat("RATE_LIMIT_RPS", 10, log),
			Burst: envutil.GetEnvAsInt("RATE_LIMIT_BURST", 20, log),
			TTL:   envutil.GetEnvAsDuration("RATE_LIMIT_TTL", 10*time.Minute, log),
		},
		MetricsEnabled: envutil.GetEnvAsBool("METRICS_ENABLED", true, log),
		CORSOrigins:    splitList(envutil.GetEnv("CORS_ALLOWED_ORIGINS", "", log)),
		Otel: observability.OtelConfig{
			Enabled:     envutil.GetEnvAsBool("OTEL_ENABLED", false, log),
			ServiceName: envutil.GetEnv("OTEL_SERVICE_NAME", "crawlshastra-chat", log),
			Environment: envutil.GetEnv("OTEL_ENVIRONMENT", "development", log),
			Version:     envutil.GetEnv("OTEL_SERVICE_VERSION", "", log),
			Endpoint:    envutil.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
			Headers:     envutil.GetEnv("OTEL_EXPORTER_OTLP_HEADERS", "", log),
			Insecure:    envutil.GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
			SampleRatio: envutil.GetEnvAsFloat("OTEL_SAMPLE_RATIO", 1, log),
		},
	}
	return cfg, cfg.validate(log)
}

func (c Config) validate(log *logger.Logger) error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.JWTSecretKey == defaultJWTSecret {
		if isProduction(c.LogMode) {
			return fmt.Errorf("JWT_SECRET_KEY must be set in production")
		}
		if log != nil {
			log.Warn("JWT_SECRET_KEY not set, using the development default")
		}
	}
	if c.RateLimitEnabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimit.RPS)
	}
	return nil
}

func isProduction(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		return true
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
