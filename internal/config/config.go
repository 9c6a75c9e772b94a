package config

import (
	"fmt"
	"time"

	"bargain-service/internal/pkg/jwt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type AppConfig struct {
	// Server
	Env             string        `env:"APP_ENV" envDefault:"production"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	StorageDriver   string        `env:"STORAGE_DRIVER" envDefault:"postgres"`

	Postgres PostgresConfig  `envPrefix:"PG_"`
	Redis    RedisConfig     `envPrefix:"REDIS_"`
	JWT      jwt.Config      `envPrefix:"JWT_"`
	Billing  BillingConfig   `envPrefix:"BILLING_"`
	Quota    QuotaConfig     `envPrefix:"QUOTA_"`
	Limits   RateLimitConfig `envPrefix:"RATE_LIMIT_"`
}

type PostgresConfig struct {
	ConnURL           string        `env:"CONN_URL"`
	MaxConns          int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns          int32         `env:"MIN_CONNS" envDefault:"2"`
	MaxConnLifetime   time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime   time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"15m"`
	HealthCheckPeriod time.Duration `env:"HEALTH_CHECK_PERIOD" envDefault:"1m"`
	RetryAttempts     int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval     time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
	MigrateOnStart    bool          `env:"MIGRATE_ON_START" envDefault:"true"`
}

type RedisConfig struct {
	Enabled   bool     `env:"ENABLED" envDefault:"true"`
	Addresses []string `env:"ADDR" envSeparator:"," envDefault:"localhost:6379"`
	Password  string   `env:"PASS"`
	DB        int      `env:"DB" envDefault:"0"`
	PoolSize  int      `env:"POOL_SIZE" envDefault:"10"`
}

type BillingConfig struct {
	APIVersion    string        `env:"API_VERSION" envDefault:"2024-10"`
	ReturnURL     string        `env:"RETURN_URL" envDefault:"http://localhost:8000/api/v1/billing/confirm"`
	SigningSecret string        `env:"SIGNING_SECRET"`
	TestCharges   bool          `env:"TEST_CHARGES" envDefault:"false"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type QuotaConfig struct {
	FreeProductLimit int           `env:"FREE_PRODUCT_LIMIT" envDefault:"10"`
	PlanCacheTTL     time.Duration `env:"PLAN_CACHE_TTL" envDefault:"10m"`
}

type RateLimitConfig struct {
	Mutations int           `env:"MUTATIONS" envDefault:"60"`
	Bulk      int           `env:"BULK" envDefault:"10"`
	Window    time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load reads .env (if present) and the process environment into AppConfig.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadPostgres reads only the PG_ group, for tools that need nothing else.
func LoadPostgres() (PostgresConfig, error) {
	_ = godotenv.Load()

	var cfg PostgresConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PG_"}); err != nil {
		return PostgresConfig{}, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if cfg.ConnURL == "" {
		return PostgresConfig{}, fmt.Errorf("PG_CONN_URL is required")
	}
	return cfg, nil
}

// LoadJWT reads only the JWT_ group.
func LoadJWT() (jwt.Config, error) {
	_ = godotenv.Load()

	var cfg jwt.Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "JWT_"}); err != nil {
		return jwt.Config{}, fmt.Errorf("failed to parse jwt config: %w", err)
	}
	return cfg, nil
}

func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

func (c AppConfig) validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.Postgres.ConnURL == "" {
			return fmt.Errorf("PG_CONN_URL is required when STORAGE_DRIVER=%s", StorageDriverPostgres)
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.Billing.SigningSecret == "" {
		return fmt.Errorf("BILLING_SIGNING_SECRET is required")
	}
	if c.Quota.FreeProductLimit <= 0 {
		return fmt.Errorf("QUOTA_FREE_PRODUCT_LIMIT must be positive")
	}
	return nil
}
