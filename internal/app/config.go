package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Store       string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SeedFile    string `default:"db/seed/shop.json" usage:"Fixture loaded by the memory store" flag:"seed-file"`
	Orders      OrdersConfig
	Notify      NotifyConfig
	SMS         SMSConfig
	SMTP        SMTPConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// OrdersConfig controls order numbering and pricing.
type OrdersConfig struct {
	NumberPrefix       string `default:"ORD" usage:"Order number prefix"`
	VATRate            string `default:"5" usage:"VAT percentage reported on orders" flag:"vat-rate"`
	EnforceTransitions bool   `default:"false" usage:"Reject status changes outside the transition table"`
	ShopName           string `default:"Outlet Shop" usage:"Shop name printed on invoices"`
}

// NotifyConfig controls the background notification dispatcher.
type NotifyConfig struct {
	Workers        int           `default:"4" usage:"Notification workers"`
	QueueSize      int           `default:"1024" usage:"Notification queue capacity"`
	MaxRetries     int           `default:"5" usage:"Retries per notification"`
	InitialBackoff time.Duration `default:"500ms" usage:"First retry delay"`
	MaxBackoff     time.Duration `default:"30s" usage:"Maximum retry delay"`
	Timeout        time.Duration `default:"10s" usage:"Single delivery attempt timeout"`
}

// SMSConfig configures the SMS gateway. Empty BaseURL disables SMS.
type SMSConfig struct {
	BaseURL  string `usage:"SMS gateway endpoint"`
	APIKey   string `usage:"SMS gateway API key"`
	SenderID string `usage:"SMS sender id"`
}

// SMTPConfig configures invoice email. Empty Host disables email.
type SMTPConfig struct {
	Host     string `usage:"SMTP relay host"`
	Port     int    `default:"587" usage:"SMTP relay port"`
	Username string `usage:"SMTP username"`
	Password string `usage:"SMTP password"`
	From     string `usage:"Sender address of invoice email"`
}

// KafkaConfig configures order events. Empty Brokers disables events.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses"`
	Topic   string   `default:"orders" usage:"Order events topic"`
}

// RedisConfig configures idempotency keys. Empty Addr disables the guard.
type RedisConfig struct {
	Addr           string        `usage:"Redis address"`
	Password       string        `usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database"`
	IdempotencyTTL time.Duration `default:"24h" usage:"How long an Idempotency-Key is remembered"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"20" usage:"Sustained requests per second per client"`
	Burst int     `default:"40" usage:"Maximum burst per client"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
		}
	case StoreMemory:
	default:
		return errors.Errorf("unknown store %q", c.Store)
	}
	rate, err := c.Orders.vatRate()
	if err != nil {
		return err
	}
	if rate.IsNegative() {
		return errors.New("VAT rate must not be negative")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return errors.New("SMTP from address is required when SMTP host is set")
	}
	return nil
}

func (c OrdersConfig) vatRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.VATRate)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse VAT rate %q", c.VATRate)
	}
	return rate, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
