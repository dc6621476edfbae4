package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const EnvProduction = "production"

type Config struct {
	AppEnv             string
	HTTPAddr           string
	CRDBDSN            string
	MigrateOnStart     bool
	MongoURI           string
	MongoDB            string
	RedisAddr          string
	RabbitURL          string
	RabbitExchange     string
	JWTPublicKey       string
	PaymentSecret      string
	PaymentHoldTTL     time.Duration
	SweepInterval      time.Duration
	OutboxInterval     time.Duration
	StoreTimeout       time.Duration
	DefaultTimezone    string
	RateLimitPerIP     int
	RateLimitPerUser   int
	CORSAllowedOrigins []string
	OTLPEndpoint       string
	LogLevel           string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:             getString("APP_ENV", "development"),
		HTTPAddr:           getString("HTTP_ADDR", ":8080"),
		CRDBDSN:            os.Getenv("CRDB_DSN"),
		MigrateOnStart:     getBool("MIGRATE_ON_START", false),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getString("MONGO_DB", "bookings"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		RabbitExchange:     getString("RABBIT_EXCHANGE", "bookings.events"),
		JWTPublicKey:       os.Getenv("JWT_PUBLIC_KEY"),
		PaymentSecret:      os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		PaymentHoldTTL:     getDuration("PAYMENT_HOLD_TTL", 15*time.Minute),
		SweepInterval:      getDuration("SWEEP_INTERVAL", time.Minute),
		OutboxInterval:     getDuration("OUTBOX_INTERVAL", 5*time.Second),
		StoreTimeout:       getDuration("STORE_TIMEOUT", 5*time.Second),
		DefaultTimezone:    getString("DEFAULT_TIMEZONE", "UTC"),
		RateLimitPerIP:     getInt("RATE_LIMIT_PER_IP", 100),
		RateLimitPerUser:   getInt("RATE_LIMIT_PER_USER", 20),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:           getString("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations that must never reach a running process.
func (c *Config) Validate() error {
	if c.IsProduction() && c.PaymentSecret == "" {
		return errors.New("PAYMENT_WEBHOOK_SECRET is required when APP_ENV=production")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return errors.Wrapf(err, "invalid DEFAULT_TIMEZONE %q", c.DefaultTimezone)
	}
	for name, d := range map[string]time.Duration{
		"PAYMENT_HOLD_TTL": c.PaymentHoldTTL,
		"SWEEP_INTERVAL":   c.SweepInterval,
		"OUTBOX_INTERVAL":  c.OutboxInterval,
	} {
		if d <= 0 {
			return errors.Newf("%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, EnvProduction)
}

// DemoPayments reports whether payment callbacks are accepted without a signature check.
func (c *Config) DemoPayments() bool {
	return c.PaymentSecret == ""
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d == 0 {
		return def
	}
	return d
}

func getInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
