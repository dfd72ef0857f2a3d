// Package config loads the rewrite service configuration from environment
// variables, after reading an optional .env file.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: HTTP port (default: 8080)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_FILE: write logs to this file instead of stdout
//   - LOG_JSON: emit JSON log lines (default: false)
//   - SHUTDOWN_TIMEOUT: graceful shutdown budget (default: 15s)
//   - TLS_CERT_FILE, TLS_KEY_FILE: serve HTTPS when both are set
//
// Rule Storage:
//   - RULES_SOURCE: sqlite, postgres or file (default: sqlite)
//   - DATABASE_PATH: SQLite database file (default: ./url_rewrite.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_SSL_MODE
//   - POSTGRES_URL: full connection URL, used instead of the POSTGRES_* parts when set
//   - RULES_DIR: directory of YAML rule files for the file source (default: ./rules)
//   - RULES_WATCH: reload a context when its rule files change (default: true)
//
// Request Handling:
//   - DEFAULT_CONTEXT: rule context used when a request names none (default: web)
//   - CONTEXT_HEADER: request header naming the rule context (default: X-Rewrite-Context)
//   - SITE_HEADER: request header naming the site (default: X-Site-Name)
//   - DEFAULT_SITE: site used when the header is absent
//   - IGNORE_URL_PREFIXES: comma separated path prefixes the engine never touches
//   - UPSTREAM_URL: backend requests are proxied to after rewriting; unset answers 404
//
// Notifications:
//   - NOTIFY_BUS: local, redis, rabbitmq, kafka, aws or gcp (default: local)
//   - NOTIFY_CHANNEL: channel, exchange or topic name (default: rewrite-rules)
//   - RABBITMQ_URL
//   - KAFKA_BROKERS (comma separated), KAFKA_GROUP_ID
//   - AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_SNS_TOPIC_ARN, AWS_SQS_QUEUE_URL
//   - GCP_PROJECT_ID, GCP_TOPIC_ID, GCP_SUBSCRIPTION_ID, GCP_CREDENTIALS_FILE
//
// Redis (item cache and redis bus):
//   - REDIS_ADDRESS (default: localhost:6379), REDIS_PASSWORD, REDIS_DB, REDIS_POOL_SIZE
//
// Item Cache:
//   - ITEM_CACHE: local, redis or two_tier (default: local)
//   - ITEM_CACHE_TTL: lifetime of a resolved item URL (default: 10m)
//
// Operations:
//   - RELOAD_SCHEDULE: cron expression forcing a full reload of every loaded context
//   - ADMIN_JWT_SECRET: when set, the admin API requires an HS256 bearer token
//   - ADMIN_RATE_LIMIT: admin API requests per second per client, 0 disables (default: 0)
//   - ADMIN_RATE_BURST: admin API burst size (default: ADMIN_RATE_LIMIT)
//   - ADMIN_RATE_BACKEND: local or redis (default: local)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"url-rewrite/internal/common/validation"
)

// Config holds every setting of the service. Numeric and duration values are
// kept as strings and checked by Validate; the typed accessors assume a
// validated config.
type Config struct {
	// Application settings
	Port            string `validate:"required,numeric"`
	LogLevel        string `validate:"oneof=debug info warn warning error"`
	LogFile         string
	LogJSON         bool
	ShutdownTimeout string `validate:"duration"`
	TLSCertFile     string
	TLSKeyFile      string

	// Rule storage
	RulesSource      string `validate:"oneof=sqlite postgres file"`
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
	PostgresURL      string `validate:"omitempty,url"`
	RulesDir         string
	RulesWatch       bool

	// Request handling
	DefaultContext    string `validate:"required,context_name"`
	ContextHeader     string
	SiteHeader        string
	DefaultSite       string
	IgnoreURLPrefixes []string
	UpstreamURL       string `validate:"omitempty,url"`

	// Notifications
	NotifyBus          string `validate:"bus_type"`
	NotifyChannel      string `validate:"required"`
	RabbitMQURL        string
	KafkaBrokers       []string
	KafkaGroupID       string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SNSTopicARN        string
	SQSQueueURL        string
	GCPProjectID       string
	GCPTopicID         string
	GCPSubscriptionID  string
	GCPCredentialsFile string

	// Redis
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// Item cache
	ItemCache    string `validate:"oneof=local redis two_tier"`
	ItemCacheTTL string `validate:"duration"`

	// Operations
	ReloadSchedule   string `validate:"omitempty,cron_expression"`
	AdminJWTSecret   string
	AdminRateLimit   string `validate:"omitempty,numeric"`
	AdminRateBurst   string `validate:"omitempty,numeric"`
	AdminRateBackend string `validate:"omitempty,oneof=local redis"`
}

// Load reads .env if present and returns a Config built from the environment.
// It does not validate.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:         getEnv("LOG_FILE", ""),
		LogJSON:         getBoolEnv("LOG_JSON", false),
		ShutdownTimeout: getEnv("SHUTDOWN_TIMEOUT", "15s"),
		TLSCertFile:     getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:      getEnv("TLS_KEY_FILE", ""),

		RulesSource:      getEnv("RULES_SOURCE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./url_rewrite.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "url_rewrite"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),
		PostgresURL:      getEnv("POSTGRES_URL", ""),
		RulesDir:         getEnv("RULES_DIR", "./rules"),
		RulesWatch:       getBoolEnv("RULES_WATCH", true),

		DefaultContext:    getEnv("DEFAULT_CONTEXT", "web"),
		ContextHeader:     getEnv("CONTEXT_HEADER", "X-Rewrite-Context"),
		SiteHeader:        getEnv("SITE_HEADER", "X-Site-Name"),
		DefaultSite:       getEnv("DEFAULT_SITE", ""),
		IgnoreURLPrefixes: getListEnv("IGNORE_URL_PREFIXES"),
		UpstreamURL:       getEnv("UPSTREAM_URL", ""),

		NotifyBus:          getEnv("NOTIFY_BUS", "local"),
		NotifyChannel:      getEnv("NOTIFY_CHANNEL", "rewrite-rules"),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		KafkaBrokers:       getListEnv("KAFKA_BROKERS"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", ""),
		AWSRegion:          getEnv("AWS_REGION", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SNSTopicARN:        getEnv("AWS_SNS_TOPIC_ARN", ""),
		SQSQueueURL:        getEnv("AWS_SQS_QUEUE_URL", ""),
		GCPProjectID:       getEnv("GCP_PROJECT_ID", ""),
		GCPTopicID:         getEnv("GCP_TOPIC_ID", ""),
		GCPSubscriptionID:  getEnv("GCP_SUBSCRIPTION_ID", ""),
		GCPCredentialsFile: getEnv("GCP_CREDENTIALS_FILE", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		ItemCache:    getEnv("ITEM_CACHE", "local"),
		ItemCacheTTL: getEnv("ITEM_CACHE_TTL", "10m"),

		ReloadSchedule: getEnv("RELOAD_SCHEDULE", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		AdminRateLimit:   getEnv("ADMIN_RATE_LIMIT", "0"),
		AdminRateBurst:   getEnv("ADMIN_RATE_BURST", ""),
		AdminRateBackend: getEnv("ADMIN_RATE_BACKEND", "local"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts anything strconv.ParseBool does and falls back to
// defaultValue otherwise
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated variable, dropping blank entries
func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks field formats first, then the settings each selected
// backend depends on.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.RulesSource {
	case "postgres":
		if c.PostgresURL != "" {
			break
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	case "file":
		if c.RulesDir == "" {
			return fmt.Errorf("RULES_DIR is required when using the file source")
		}
	default:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	}

	if c.NeedsRedis() {
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required for the %s bus, %s item cache or redis rate limiter", c.NotifyBus, c.ItemCache)
		}
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	switch c.NotifyBus {
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required for the rabbitmq bus")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka bus")
		}
	case "aws":
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required for the aws bus")
		}
		if c.SNSTopicARN == "" || c.SQSQueueURL == "" {
			return fmt.Errorf("AWS_SNS_TOPIC_ARN and AWS_SQS_QUEUE_URL are required for the aws bus")
		}
	case "gcp":
		if c.GCPProjectID == "" || c.GCPTopicID == "" || c.GCPSubscriptionID == "" {
			return fmt.Errorf("GCP_PROJECT_ID, GCP_TOPIC_ID and GCP_SUBSCRIPTION_ID are required for the gcp bus")
		}
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < 32 {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 characters long")
	}

	return nil
}

// NeedsRedis reports whether the selected bus, item cache or admin rate
// limiter uses Redis
func (c *Config) NeedsRedis() bool {
	return c.NotifyBus == "redis" || c.ItemCache == "redis" || c.ItemCache == "two_tier" ||
		(c.AdminRateBackend == "redis" && c.AdminRateLimitNumber() > 0)
}

// AdminRateLimitNumber returns ADMIN_RATE_LIMIT as an int
func (c *Config) AdminRateLimitNumber() int {
	n, _ := strconv.Atoi(c.AdminRateLimit)
	return n
}

// AdminRateBurstNumber returns ADMIN_RATE_BURST, defaulting to the rate
func (c *Config) AdminRateBurstNumber() int {
	if n, err := strconv.Atoi(c.AdminRateBurst); err == nil && n > 0 {
		return n
	}
	return c.AdminRateLimitNumber()
}

// RedisDBNumber returns REDIS_DB as an int
func (c *Config) RedisDBNumber() int {
	n, _ := strconv.Atoi(c.RedisDB)
	return n
}

// RedisPoolSizeNumber returns REDIS_POOL_SIZE as an int
func (c *Config) RedisPoolSizeNumber() int {
	n, _ := strconv.Atoi(c.RedisPoolSize)
	return n
}

// ItemCacheDuration returns ITEM_CACHE_TTL as a duration
func (c *Config) ItemCacheDuration() time.Duration {
	d, _ := time.ParseDuration(c.ItemCacheTTL)
	return d
}

// ShutdownDuration returns SHUTDOWN_TIMEOUT as a duration
func (c *Config) ShutdownDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// PostgresDSN returns POSTGRES_URL, or a URL built from the POSTGRES_* parts
func (c *Config) PostgresDSN() string {
	if c.PostgresURL != "" {
		return c.PostgresURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     c.PostgresHost + ":" + c.PostgresPort,
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=" + url.QueryEscape(c.PostgresSSLMode),
	}
	return u.String()
}
