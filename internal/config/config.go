package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingPaymentSecrets = errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET must be set")

type Config struct {
	HTTPAddr string
	LogLevel string
	AppURL   string

	PostgresDSN    string
	MigrateOnStart bool

	RedisAddr string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	TokenTTL  time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeMaxRetries    int64
	Currency            string

	OTLPEndpoint string

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	AbandonedCheckoutTTL time.Duration
	SweepInterval        time.Duration
}

// Load reads .env when present and then the process environment. Payment
// gateway secrets have no defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using environment", "error", err)
	}

	cfg := &Config{
		HTTPAddr:            getEnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		AppURL:              strings.TrimRight(getEnvOrDefault("APP_URL", "http://localhost:3000"), "/"),
		PostgresDSN:         postgresDSN(),
		RedisAddr:           getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:        splitList(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:          getEnvOrDefault("KAFKA_TOPIC", "marketplace.lifecycle"),
		JWTSecret:           getEnvOrDefault("JWT_SECRET", "supersecret"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getEnvOrDefault("CURRENCY", "usd")),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		return nil, ErrMissingPaymentSecrets
	}

	var err error
	if cfg.MigrateOnStart, err = strconv.ParseBool(getEnvOrDefault("MIGRATE_ON_START", "true")); err != nil {
		return nil, fmt.Errorf("invalid MIGRATE_ON_START: %w", err)
	}
	if cfg.StripeMaxRetries, err = strconv.ParseInt(getEnvOrDefault("STRIPE_MAX_NETWORK_RETRIES", "2"), 10, 64); err != nil || cfg.StripeMaxRetries < 0 {
		return nil, fmt.Errorf("invalid STRIPE_MAX_NETWORK_RETRIES: %q", os.Getenv("STRIPE_MAX_NETWORK_RETRIES"))
	}
	if cfg.OutboxBatchSize, err = strconv.Atoi(getEnvOrDefault("OUTBOX_BATCH_SIZE", "100")); err != nil || cfg.OutboxBatchSize <= 0 {
		return nil, fmt.Errorf("invalid OUTBOX_BATCH_SIZE: %q", os.Getenv("OUTBOX_BATCH_SIZE"))
	}
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.OutboxPollInterval, err = getDuration("OUTBOX_POLL_INTERVAL", "2s"); err != nil {
		return nil, err
	}
	if cfg.AbandonedCheckoutTTL, err = getDuration("ABANDONED_CHECKOUT_TTL", "15m"); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", "1m"); err != nil {
		return nil, err
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_topic", cfg.KafkaTopic,
		"currency", cfg.Currency,
		"migrate_on_start", cfg.MigrateOnStart,
	)
	return cfg, nil
}

// LoadDatabaseDSN is the subset of Load needed by schema migrations.
func LoadDatabaseDSN() string {
	_ = godotenv.Load()
	return postgresDSN()
}

func postgresDSN() string {
	return getEnvOrDefault("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=gym_market sslmode=disable")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvOrDefault(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
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
