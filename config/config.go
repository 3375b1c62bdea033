package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	BaseURL  string

	JWTSecret string
	JWTTTL    time.Duration

	DBDriver string
	DBHost   string
	DBPort   string
	DBUser   string
	DBPass   string
	DBName   string
	DBDSN    string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	CacheBackend string
	CacheTTL     time.Duration
	CacheSize    int

	Storage StorageConfig

	PreviewMode        string
	PreviewConcurrency int
	PreviewQueueSize   int

	RabbitMQURL              string
	RabbitMQPrefetch         int
	PreviewWorkerConcurrency int
	PreviewRate              float64
	PreviewBurst             int

	AdminUsername string
	AdminPassword string
	CORSOrigins   []string
}

const (
	DBDriverMySQL    = "mysql"
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"

	PreviewModeLocal    = "local"
	PreviewModeRabbitMQ = "rabbitmq"
	PreviewModeOff      = "off"
)

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func rabbitURLFromEnv() string {
	if raw := getEnv("RABBITMQ_URL", ""); raw != "" {
		return raw
	}
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/%s",
		url.PathEscape(getEnv("RABBITMQ_USER", "guest")),
		url.PathEscape(getEnv("RABBITMQ_PASSWORD", "guest")),
		getEnv("RABBITMQ_HOST", "localhost"),
		getEnv("RABBITMQ_PORT", "5672"),
		url.PathEscape(getEnv("RABBITMQ_VHOST", "/")),
	)
}

// Load reads configuration from the environment.
func Load() *Config {
	cfg := &Config{
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8000"),
		BaseURL:                  strings.TrimRight(getEnv("BASE_URL", "http://localhost:8000"), "/"),
		JWTSecret:                getEnv("JWT_SECRET", "l=ax+b"),
		JWTTTL:                   getEnvDuration("JWT_TTL", 7*24*time.Hour),
		DBDriver:                 strings.ToLower(getEnv("DB_DRIVER", DBDriverMySQL)),
		DBHost:                   getEnv("DB_HOST", "localhost"),
		DBPort:                   getEnv("DB_PORT", "3306"),
		DBUser:                   getEnv("DB_USER", "root"),
		DBPass:                   getEnv("DB_PASS", "root"),
		DBName:                   getEnv("DB_NAME", "mikanirobytes"),
		DBDSN:                    getEnv("DB_DSN", ""),
		RedisHost:                getEnv("REDIS_HOST", "localhost"),
		RedisPort:                getEnv("REDIS_PORT", "6379"),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		RedisDB:                  getEnvInt("REDIS_DB", 0),
		CacheBackend:             strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendRedis)),
		CacheTTL:                 getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheSize:                getEnvInt("CACHE_SIZE", 1024),
		Storage:                  loadStorageConfig(),
		PreviewMode:              strings.ToLower(getEnv("PREVIEW_MODE", PreviewModeLocal)),
		PreviewConcurrency:       getEnvInt("PREVIEW_CONCURRENCY", 2),
		PreviewQueueSize:         getEnvInt("PREVIEW_QUEUE_SIZE", 256),
		RabbitMQURL:              rabbitURLFromEnv(),
		RabbitMQPrefetch:         getEnvInt("RABBITMQ_PREFETCH", 8),
		PreviewWorkerConcurrency: getEnvInt("PREVIEW_WORKER_CONCURRENCY", 4),
		PreviewRate:              getEnvFloat("PREVIEW_RATE", 10),
		PreviewBurst:             getEnvInt("PREVIEW_BURST", 20),
		AdminUsername:            getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:            getEnv("ADMIN_PASSWORD", "admin"),
		CORSOrigins:              getEnvList("CORS_ORIGINS", nil),
	}
	return cfg
}

// DSN builds the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	switch c.DBDriver {
	case DBDriverPostgres:
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
	case DBDriverSQLite:
		return c.DBName + ".db"
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
	}
}
