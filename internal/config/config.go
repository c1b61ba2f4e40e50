package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	// Ограничения на контент
	MaxContentLen = 2000
	MaxAuthorLen  = 75
	MaxTitleLen   = 200

	DefaultPort          = "8080"
	DefaultStorageType   = "in-memory"
	DefaultMigrationsDir = "./migrations"
	DefaultCacheTTL      = "30s"
	DefaultRateEvery     = "10s"
	DefaultRateBurst     = 5
	DefaultRatePrune     = time.Hour
	DefaultRateExpire    = 24 * time.Hour
)

// Config - параметры сервера модерации
type Config struct {
	Port        string
	StorageType string

	Database struct {
		URL           string
		MigrationsDir string
	}
	Redis struct {
		Addr     string
		Password string
		TTL      time.Duration
	}
	Auth struct {
		Token     string
		TokenHash string // bcrypt-хеш токена администратора
	}
	RateLimit struct {
		Every time.Duration
		Burst int
	}
	CORSOrigins []string
	LogLevel    string
	LogFormat   string
}

// Load читает конфигурацию из окружения, .env подхватывается если он есть
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to load .env file")
	}

	cfg := &Config{}
	cfg.Port = getEnv("PORT", DefaultPort)
	cfg.StorageType = getEnv("STORAGE_TYPE", DefaultStorageType)

	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.MigrationsDir = getEnv("MIGRATIONS_DIR", DefaultMigrationsDir)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.TTL = getDuration("CACHE_TTL", DefaultCacheTTL)

	cfg.Auth.Token = getEnv("ADMIN_TOKEN", "")
	cfg.Auth.TokenHash = getEnv("ADMIN_TOKEN_HASH", "")

	cfg.RateLimit.Every = getDuration("RATE_EVERY", DefaultRateEvery)
	burst, err := strconv.Atoi(getEnv("RATE_BURST", strconv.Itoa(DefaultRateBurst)))
	if err != nil || burst <= 0 {
		log.WithField("value", getEnv("RATE_BURST", "")).Warn("Invalid RATE_BURST, using default")
		burst = DefaultRateBurst
	}
	cfg.RateLimit.Burst = burst

	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "*"))
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")

	return cfg
}

// SetupLogging настраивает глобальный logrus
func (c *Config) SetupLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("value", c.LogLevel).Warn("Invalid LOG_LEVEL, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		log.WithFields(log.Fields{"key": key, "default": fallback}).Warn("Invalid duration, using default")
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
