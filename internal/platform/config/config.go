package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type WithholdingRate struct {
	Name string
	Rate decimal.Decimal
}

type Config struct {
	Addr               string
	DatabaseURL        string
	JWTSecret          string
	DataEncryptionKey  string
	Environment        string
	LogLevel           string
	RunMigrations      bool
	MigrationsDir      string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	MetricsEnabled     bool
	ShutdownTimeout    time.Duration
	SeedDemoData       bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DraftTTL             time.Duration
	LockTTL              time.Duration
	CommitMaxAttempts    int
	StatementDir         string
	StatementBackfill    time.Duration
	Withholding          []WithholdingRate
	ExclusiveWithholding bool
	CarryDebtForward     bool

	withholdingErr error
}

func Load() Config {
	withholding, err := ParseWithholding(getEnv("WITHHOLDING_COMPONENTS", ""))
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		DataEncryptionKey:  getEnv("DATA_ENCRYPTION_KEY", ""),
		Environment:        getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", "migrations"),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		SeedDemoData:       getEnvBool("SEED_DEMO_DATA", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DraftTTL:             getEnvDuration("DRAFT_TTL", 30*time.Minute),
		LockTTL:              getEnvDuration("PAYEE_LOCK_TTL", 30*time.Second),
		CommitMaxAttempts:    getEnvInt("COMMIT_MAX_ATTEMPTS", 3),
		StatementDir:         getEnv("STATEMENT_DIR", "storage/statements"),
		StatementBackfill:    getEnvDuration("STATEMENT_BACKFILL_INTERVAL", 10*time.Minute),
		Withholding:          withholding,
		ExclusiveWithholding: getEnvBool("EXCLUSIVE_WITHHOLDING", true),
		CarryDebtForward:     getEnvBool("CARRY_DEBT_FORWARD", true),

		withholdingErr: err,
	}
}

// ParseWithholding reads "federal:0.10,social_security:6.2". A rate above 1
// is a whole percentage.
func ParseWithholding(raw string) ([]WithholdingRate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	seen := map[string]bool{}
	var out []WithholdingRate
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("withholding component %q must be name:rate", part)
		}
		if seen[name] {
			return nil, fmt.Errorf("withholding component %q listed twice", name)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("withholding component %q: %w", name, err)
		}
		if rate.GreaterThan(decimal.NewFromInt(1)) {
			rate = rate.Div(decimal.NewFromInt(100))
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("withholding component %q must not be negative", name)
		}
		seen[name] = true
		out = append(out, WithholdingRate{Name: name, Rate: rate})
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR must be set in production")
		}
		if c.SeedDemoData {
			return fmt.Errorf("SEED_DEMO_DATA cannot be enabled in production")
		}
	}
	if c.withholdingErr != nil {
		return fmt.Errorf("WITHHOLDING_COMPONENTS: %w", c.withholdingErr)
	}
	total := decimal.Zero
	for _, w := range c.Withholding {
		total = total.Add(w.Rate)
	}
	if total.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("WITHHOLDING_COMPONENTS must sum to less than 100%%")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.CommitMaxAttempts < 1 {
		return fmt.Errorf("COMMIT_MAX_ATTEMPTS must be at least 1")
	}
	if c.StatementBackfill < 0 {
		return fmt.Errorf("STATEMENT_BACKFILL_INTERVAL must not be negative")
	}
	if c.DraftTTL <= 0 || c.LockTTL <= 0 {
		return fmt.Errorf("DRAFT_TTL and PAYEE_LOCK_TTL must be positive")
	}
	return nil
}
