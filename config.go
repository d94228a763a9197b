package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yashrajoria/inventory-reservation-service/database"
	"github.com/yashrajoria/inventory-reservation-service/logger"
	aws_pkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
	"go.uber.org/zap"
)

// Config holds all configuration for the inventory-reservation-service.
type Config struct {
	Port   string // Service port (default: 8084)
	AppEnv string

	StoreBackend string // postgres | memory
	Postgres     database.PostgresConfig

	RedisURL      string
	CacheBackend  string // redis | memory
	StockCacheTTL time.Duration

	HoldDuration     time.Duration
	MaxHoldDuration  time.Duration
	SweepInterval    time.Duration
	SweepBatchSize   int
	DefaultThreshold int

	EventsChannel       string
	SNSTopicArn         string
	KafkaBrokers        []string
	KafkaTopic          string
	OrderEventsQueueURL string
	SnapshotBucket      string
	ProductServiceURL   string

	JWTSecret          string
	CloudWatchEnabled  bool
	CORSAllowedOrigins []string
	ReservePerMinute   int
	RequestTimeout     time.Duration
}

// secretGetter is satisfied by aws_pkg.SecretsClient.
type secretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// LoadConfig loads environment variables (and .env when present) into Config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := configFromEnv()
	if err != nil {
		return nil, err
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if awsCfg, err := aws_pkg.LoadAWSConfig(ctx); err == nil {
			prefix := getEnv("SECRETS_PREFIX", "inventory")
			for _, err := range applySecrets(ctx, cfg, aws_pkg.NewSecretsClient(awsCfg, prefix)) {
				logger.Log.Warn("Secrets Manager override skipped", zap.Error(err))
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFromEnv() (*Config, error) {
	var errs []string
	dur := func(key string, def time.Duration) time.Duration {
		d, err := getDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}
	num := func(key string, def int) int {
		n, err := getInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return n
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8084"),
		AppEnv:       getEnv("APP_ENV", "development"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		Postgres: database.PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		CacheBackend:        strings.ToLower(getEnv("CACHE_BACKEND", "redis")),
		StockCacheTTL:       dur("STOCK_CACHE_TTL", 60*time.Second),
		HoldDuration:        dur("HOLD_DURATION", 15*time.Minute),
		MaxHoldDuration:     dur("MAX_HOLD_DURATION", time.Hour),
		SweepInterval:       dur("SWEEP_INTERVAL", 60*time.Second),
		SweepBatchSize:      num("SWEEP_BATCH_SIZE", 500),
		DefaultThreshold:    num("LOW_STOCK_THRESHOLD_DEFAULT", 10),
		EventsChannel:       getEnv("EVENTS_CHANNEL", "inventory:events"),
		SNSTopicArn:         os.Getenv("INVENTORY_SNS_TOPIC_ARN"),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "inventory.events"),
		OrderEventsQueueURL: os.Getenv("ORDER_EVENTS_QUEUE_URL"),
		SnapshotBucket:      os.Getenv("SNAPSHOT_BUCKET"),
		ProductServiceURL:   os.Getenv("PRODUCT_SERVICE_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ReservePerMinute:    num("RESERVE_RATE_PER_MINUTE", 120),
		RequestTimeout:      dur("REQUEST_TIMEOUT", 10*time.Second),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// applySecrets overrides credentials with values from Secrets Manager.
// Unconfigured secrets keep the environment value silently; other failures
// keep it too but are returned for logging.
func applySecrets(ctx context.Context, cfg *Config, sm secretGetter) []error {
	targets := []struct {
		key string
		dst *string
	}{
		{"JWT_SECRET", &cfg.JWTSecret},
		{"POSTGRES_PASSWORD", &cfg.Postgres.Password},
	}

	var errs []error
	for _, t := range targets {
		v, err := sm.GetSecret(ctx, t.key)
		switch {
		case errors.Is(err, aws_pkg.ErrSecretNotFound):
		case err != nil:
			errs = append(errs, err)
		case v != "":
			*t.dst = v
		}
	}
	return errs
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StoreBackend {
	case "postgres":
		if c.Postgres.User == "" || c.Postgres.Password == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB are required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.StoreBackend)
	}
	if c.CacheBackend != "redis" && c.CacheBackend != "memory" {
		return fmt.Errorf("CACHE_BACKEND must be redis or memory, got %q", c.CacheBackend)
	}
	if c.HoldDuration <= 0 || c.MaxHoldDuration < c.HoldDuration {
		return fmt.Errorf("HOLD_DURATION must be positive and not exceed MAX_HOLD_DURATION")
	}
	if c.SweepInterval <= 0 || c.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL and SWEEP_BATCH_SIZE must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.DefaultThreshold < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD_DEFAULT must not be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getDuration accepts Go duration strings ("15m") or whole seconds ("900").
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
