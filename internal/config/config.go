package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Env      string `envconfig:"APP_ENV" default:"development"`

	// Sections are processed one by one in Load.
	DB        DBConfig        `ignored:"true"`
	Kafka     KafkaConfig     `ignored:"true"`
	Redis     RedisConfig     `ignored:"true"`
	Risk      RiskConfig      `ignored:"true"`
	Payment   PaymentConfig   `ignored:"true"`
	Outbox    OutboxConfig    `ignored:"true"`
	RateLimit RateLimitConfig `ignored:"true"`
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name     string `envconfig:"DB_NAME" default:"legalops"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// KafkaConfig holds broker addresses and topic names
type KafkaConfig struct {
	Brokers       []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	OrdersTopic   string   `envconfig:"KAFKA_ORDERS_TOPIC" default:"order-events"`
	PaymentsTopic string   `envconfig:"KAFKA_PAYMENTS_TOPIC" default:"payment-events"`
	ConsumerGroup string   `envconfig:"KAFKA_CONSUMER_GROUP" default:"order-lifecycle"`
}

// RedisConfig configures the order read cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:""`
	Password string        `envconfig:"REDIS_PASSWORD" default:""`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"CACHE_TTL" default:"5m"`
}

// RiskConfig configures fraud risk assessment
type RiskConfig struct {
	Enabled  bool          `envconfig:"RISK_ENABLED" default:"true"`
	ModelURL string        `envconfig:"RISK_MODEL_URL" default:""`
	APIKey   string        `envconfig:"RISK_MODEL_API_KEY" default:""`
	Timeout  time.Duration `envconfig:"RISK_TIMEOUT" default:"3s"`
}

// PaymentConfig configures the payment gateway verifier
type PaymentConfig struct {
	GatewayURL string        `envconfig:"PAYMENT_GATEWAY_URL" default:"http://localhost:9090"`
	APIKey     string        `envconfig:"PAYMENT_GATEWAY_API_KEY" default:""`
	Timeout    time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"5s"`
}

// OutboxConfig configures the outbox relay
type OutboxConfig struct {
	PollingInterval time.Duration `envconfig:"OUTBOX_POLLING_INTERVAL" default:"5s"`
	BatchSize       int           `envconfig:"OUTBOX_BATCH_SIZE" default:"10"`
	MaxAttempts     int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"3"`
}

// RateLimitConfig configures per-client request limits
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RATE_LIMIT_RPS" default:"10"`
	Burst             int     `envconfig:"RATE_LIMIT_BURST" default:"20"`
	// Only enable behind a proxy that overwrites X-Forwarded-For.
	TrustForwardedFor bool    `envconfig:"TRUST_FORWARDED_FOR" default:"false"`
}

// Load reads an optional .env file, then the environment, and returns a Config.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	var cfg Config

	sections := []interface{}{
		&cfg, &cfg.DB, &cfg.Kafka, &cfg.Redis, &cfg.Risk, &cfg.Payment, &cfg.Outbox, &cfg.RateLimit,
	}

	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("failed to process environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("invalid OUTBOX_BATCH_SIZE: %d", c.Outbox.BatchSize)
	}

	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("invalid OUTBOX_MAX_ATTEMPTS: %d", c.Outbox.MaxAttempts)
	}

	for i, b := range c.Kafka.Brokers {
		c.Kafka.Brokers[i] = strings.TrimSpace(b)
	}

	return nil
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

// CacheEnabled reports whether a Redis address was configured
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}
