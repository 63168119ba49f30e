package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Detection DetectionConfig
	Health    HealthConfig
	Notify    NotifyConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// Enabled reports whether a database connectivity probe is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret     string
	OperatorRoles []string
	IngestRoles   []string
}

type RedisConfig struct {
	URL       string
	KeyPrefix string
}

type DetectionConfig struct {
	BruteForceThreshold     int
	BruteForceWindow        time.Duration
	SeenIPTTL               time.Duration
	AlertMaxCount           int
	AlertRetention          time.Duration
	AlertPruneInterval      time.Duration
	AllowedUploadExtensions []string
}

type HealthConfig struct {
	CacheTTL                  time.Duration
	ProbeTimeout              time.Duration
	SlowProbeThreshold        time.Duration
	DiskPath                  string
	DiskMinFreePercent        float64
	MemoryMinAvailablePercent float64
}

type NotifyConfig struct {
	QueueSize    int
	SendTimeout  time.Duration
	RetryBackoff time.Duration
	RateWindow   time.Duration
	LogEnabled   bool

	EmailEnabled    bool
	AWSRegion       string
	EmailFrom       string
	EmailRecipients []string
	EmailRateLimit  int
	EmailCooldown   time.Duration

	TelegramBotToken  string
	TelegramChatID    string
	TelegramRateLimit int
	TelegramTemplate  string
}

// TelegramEnabled reports whether both bot credentials are present
func (c *NotifyConfig) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

var defaultUploadExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".pdf", ".txt", ".csv", ".doc", ".docx", ".xls", ".xlsx",
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", ""),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "sentinel"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 4)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 1)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
		},
		Auth: AuthConfig{
			JWTSecret:     jwtSecret,
			OperatorRoles: getEnvAsList("OPERATOR_ROLES", []string{"admin", "security"}),
			IngestRoles:   getEnvAsList("INGEST_ROLES", []string{"service", "admin"}),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "sentinel:"),
		},
		Detection: DetectionConfig{
			BruteForceThreshold:     getEnvAsInt("BRUTE_FORCE_THRESHOLD", 5),
			BruteForceWindow:        getEnvAsDuration("BRUTE_FORCE_WINDOW", 5*time.Minute),
			SeenIPTTL:               getEnvAsDuration("SEEN_IP_TTL", 30*24*time.Hour),
			AlertMaxCount:           getEnvAsInt("ALERT_MAX_COUNT", 1000),
			AlertRetention:          getEnvAsDuration("ALERT_RETENTION", 24*time.Hour),
			AlertPruneInterval:      getEnvAsDuration("ALERT_PRUNE_INTERVAL", 1*time.Minute),
			AllowedUploadExtensions: normalizeExtensions(getEnvAsList("ALLOWED_UPLOAD_EXTENSIONS", defaultUploadExtensions)),
		},
		Health: HealthConfig{
			CacheTTL:                  getEnvAsDuration("HEALTH_CACHE_TTL", 5*time.Second),
			ProbeTimeout:              getEnvAsDuration("HEALTH_PROBE_TIMEOUT", 2*time.Second),
			SlowProbeThreshold:        getEnvAsDuration("HEALTH_SLOW_PROBE", 500*time.Millisecond),
			DiskPath:                  getEnv("DISK_PATH", "/"),
			DiskMinFreePercent:        getEnvAsFloat("DISK_MIN_FREE_PERCENT", 10),
			MemoryMinAvailablePercent: getEnvAsFloat("MEMORY_MIN_AVAILABLE_PERCENT", 20),
		},
		Notify: NotifyConfig{
			QueueSize:         getEnvAsInt("NOTIFY_QUEUE_SIZE", 100),
			SendTimeout:       getEnvAsDuration("NOTIFY_SEND_TIMEOUT", 10*time.Second),
			RetryBackoff:      getEnvAsDuration("NOTIFY_RETRY_BACKOFF", 2*time.Second),
			RateWindow:        getEnvAsDuration("NOTIFY_RATE_WINDOW", 1*time.Minute),
			LogEnabled:        getEnvAsBool("NOTIFY_LOG_ENABLED", true),
			EmailEnabled:      getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
			EmailFrom:         getEnv("EMAIL_FROM_ADDRESS", ""),
			EmailRecipients:   getEnvAsList("ALERT_EMAIL_RECIPIENTS", nil),
			EmailRateLimit:    getEnvAsInt("EMAIL_RATE_LIMIT", 5),
			EmailCooldown:     getEnvAsDuration("EMAIL_TYPE_COOLDOWN", 10*time.Minute),
			TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
			TelegramRateLimit: getEnvAsInt("TELEGRAM_RATE_LIMIT", 10),
			TelegramTemplate:  getEnv("TELEGRAM_TEMPLATE", ""),
		},
	}

	if cfg.Database.Enabled() && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required when DB_HOST is set")
	}

	if cfg.Notify.EmailEnabled {
		if cfg.Notify.EmailFrom == "" || len(cfg.Notify.EmailRecipients) == 0 {
			return nil, fmt.Errorf("EMAIL_FROM_ADDRESS and ALERT_EMAIL_RECIPIENTS are required when EMAIL_ENABLED is set")
		}
	}

	if cfg.Detection.BruteForceThreshold < 1 {
		return nil, fmt.Errorf("BRUTE_FORCE_THRESHOLD must be positive (got %d)", cfg.Detection.BruteForceThreshold)
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
