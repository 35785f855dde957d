package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and passed by pointer to every component.
// Nothing mutates it after Load returns.
type Config struct {
	RabbitHost       string
	RabbitPort       int
	RabbitUser       string
	RabbitPassword   string
	RabbitVHost      string
	RabbitRetryDelay time.Duration
	Queue            string
	QueueTTL         time.Duration
	Prefetch         int
	ConsumerTag      string

	GotenbergURL  string
	GotenbergPDFA string

	RequestTimeout   time.Duration
	MaxJobs          int
	ScratchDir       string
	FallbackFilename string
	ValidatePDF      bool

	LogLevel    string
	LogFormat   string
	MetricsAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatusTTL     time.Duration

	DatabaseURL string

	S3Bucket       string
	S3Region       string
	AWSS3AccessKey string
	AWSS3SecretKey string
	S3Endpoint     string
	S3UsePathStyle bool
	S3Prefix       string

	IntakeAddr    string
	SecurityToken string
}

// Load reads the environment, optionally seeded from a .env file in the
// working directory, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RabbitHost:       getEnv("RABBITMQ_HOST", "rabbit"),
		RabbitPort:       getEnvInt("RABBITMQ_PORT", 5672),
		RabbitUser:       getEnv("RABBITMQ_USER", "guest"),
		RabbitPassword:   getEnv("RABBITMQ_PASS", "guest"),
		RabbitVHost:      getEnv("RABBITMQ_VHOST", "/"),
		RabbitRetryDelay: getEnvDuration("RABBITMQ_RETRY_DELAY", 5*time.Second),
		Queue:            getEnv("QUEUE", "documentgenerator_create"),
		QueueTTL:         time.Duration(getEnvInt("QUEUE_TTL_MS", 86400000)) * time.Millisecond,
		Prefetch:         getEnvInt("PREFETCH", 1),
		ConsumerTag:      getEnv("CONSUMER_TAG", "documentgenerator-worker"),

		GotenbergURL:  strings.TrimRight(getEnv("GOTENBERG_URL", "http://gotenberg:3000"), "/"),
		GotenbergPDFA: getEnv("GOTENBERG_PDFA", ""),

		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 300*time.Second),
		MaxJobs:          getEnvInt("MAX_JOBS", 100),
		ScratchDir:       getEnv("SCRATCH_DIR", os.TempDir()),
		FallbackFilename: getEnv("FALLBACK_FILENAME", "document.pdf"),
		ValidatePDF:      getEnvBool("VALIDATE_PDF", false),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		MetricsAddr: getEnv("METRICS_ADDR", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		StatusTTL:     getEnvDuration("STATUS_TTL", 24*time.Hour),

		DatabaseURL: databaseURL(),

		S3Bucket: getEnv("S3_BUCKET", ""),
		// Prefer unified S3_* vars, fall back to legacy AWS_* vars for compatibility
		S3Region:       getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		AWSS3AccessKey: getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSS3SecretKey: getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),
		S3Prefix:       strings.Trim(getEnv("S3_PREFIX", "converted"), "/"),

		IntakeAddr:    getEnv("INTAKE_ADDR", ":8080"),
		SecurityToken: getEnv("SECURITY_TOKEN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make the worker misbehave rather than fail.
func (c *Config) Validate() error {
	var errs []error
	if c.Queue == "" {
		errs = append(errs, errors.New("QUEUE must not be empty"))
	}
	if c.Prefetch < 1 {
		errs = append(errs, fmt.Errorf("PREFETCH must be >= 1, got %d", c.Prefetch))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout))
	}
	if c.RabbitRetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("RABBITMQ_RETRY_DELAY must be positive, got %s", c.RabbitRetryDelay))
	}
	if c.QueueTTL <= 0 || c.QueueTTL.Milliseconds() > int64(^uint32(0)>>1) {
		errs = append(errs, fmt.Errorf("QUEUE_TTL_MS out of range: %d", c.QueueTTL.Milliseconds()))
	}
	if _, err := url.ParseRequestURI(c.GotenbergURL); err != nil {
		errs = append(errs, fmt.Errorf("GOTENBERG_URL is invalid: %w", err))
	}
	if c.FallbackFilename == "" {
		errs = append(errs, errors.New("FALLBACK_FILENAME must not be empty"))
	}
	return errors.Join(errs...)
}

// AMQPURL assembles the broker URL from its parts.
func (c *Config) AMQPURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.RabbitUser, c.RabbitPassword),
		Host:   fmt.Sprintf("%s:%d", c.RabbitHost, c.RabbitPort),
	}
	if c.RabbitVHost != "" && c.RabbitVHost != "/" {
		u.Path = "/" + strings.TrimPrefix(c.RabbitVHost, "/")
	}
	return u.String()
}

// BrokerAddr is the host:port pair, safe to log.
func (c *Config) BrokerAddr() string {
	return fmt.Sprintf("%s:%d", c.RabbitHost, c.RabbitPort)
}

func databaseURL() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		return ""
	}
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "documentgenerator")
	dbUser := getEnv("DB_USERNAME", "documentgenerator")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	// lib/pq supports "key=value" connection strings and this avoids
	// URI escaping issues for special characters in passwords.
	dsn := fmt.Sprintf("host=%s port=%s dbname=%s user=%s sslmode=%s connect_timeout=%s",
		dbHost, dbPort, dbName, dbUser, dbSSLMode, getEnv("DB_CONNECT_TIMEOUT", "10"))
	if dbPassword != "" {
		dsn += fmt.Sprintf(" password=%s", dbPassword)
	}
	return dsn
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
