package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string

	DBDriver   string
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimezone string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTLSec   int

	ElasticEnabled  bool
	ElasticAddr     string
	ElasticUsername string
	ElasticPassword string
	ElasticIndex    string

	AuthSecret      string
	AuthTokenTTLMin int
	AuthAllowSignUp bool

	StorageDir    string
	PublicBaseURL string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvi(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

func getenvb(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func Load() *Config {
	return &Config{
		Port:     getenv("PORT", "8080"),
		GinMode:  getenv("GIN_MODE", "release"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DBDriver:   getenv("DB_DRIVER", "postgres"),
		DBPath:     getenv("DB_PATH", "./data/blog.db"),
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", "postgres"),
		DBName:     getenv("DB_NAME", "blog"),
		DBSSLMode:  getenv("DB_SSLMODE", "disable"),
		DBTimezone: getenv("DB_TIMEZONE", "UTC"),

		RedisEnabled:  getenvb("REDIS_ENABLED", true),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvi("REDIS_DB", 0),
		CacheTTLSec:   getenvi("CACHE_TTL_SECONDS", 300),

		ElasticEnabled:  getenvb("ELASTICSEARCH_ENABLED", true),
		ElasticAddr:     getenv("ELASTICSEARCH_ADDR", "http://localhost:9200"),
		ElasticUsername: getenv("ELASTICSEARCH_USERNAME", ""),
		ElasticPassword: getenv("ELASTICSEARCH_PASSWORD", ""),
		ElasticIndex:    getenv("ELASTICSEARCH_INDEX", "posts"),

		AuthSecret:      getenv("AUTH_SECRET", ""),
		AuthTokenTTLMin: getenvi("AUTH_TOKEN_TTL_MINUTES", 60*24),
		AuthAllowSignUp: getenvb("AUTH_ALLOW_SIGNUP", false),

		StorageDir:    getenv("STORAGE_DIR", "./data/storage"),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if len(c.AuthSecret) < 16 {
		errs = append(errs, errors.New("AUTH_SECRET must be at least 16 characters"))
	}
	if c.AuthTokenTTLMin <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL_MINUTES must be positive"))
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		errs = append(errs, fmt.Errorf("DB_DRIVER %q: must be postgres or sqlite", c.DBDriver))
	}
	if c.StorageDir == "" {
		errs = append(errs, errors.New("STORAGE_DIR must not be empty"))
	}
	return errors.Join(errs...)
}

func (c *Config) TokenTTL() time.Duration { return time.Duration(c.AuthTokenTTLMin) * time.Minute }

func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSec) * time.Second }

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode, c.DBTimezone)
}
