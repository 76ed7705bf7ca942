package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/outlet-commerce/internal/domain/customer"
	"github.com/xenking/outlet-commerce/pkg/health"
)

func validConfig() Config {
	return Config{
		Addr:   "0.0.0.0:8080",
		Store:  StoreMemory,
		Orders: OrdersConfig{NumberPrefix: "ORD", VATRate: "5"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "memory store", mutate: func(*Config) {}},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Store = StorePostgres },
			wantErr: "database URL is required",
		},
		{
			name: "postgres with url",
			mutate: func(c *Config) {
				c.Store = StorePostgres
				c.DatabaseURL = "postgres://localhost/shop"
			},
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store = "mongo" },
			wantErr: "unknown store",
		},
		{
			name:    "bad vat",
			mutate:  func(c *Config) { c.Orders.VATRate = "five" },
			wantErr: "parse VAT rate",
		},
		{
			name:    "negative vat",
			mutate:  func(c *Config) { c.Orders.VATRate = "-1" },
			wantErr: "must not be negative",
		},
		{
			name:    "smtp without from",
			mutate:  func(c *Config) { c.SMTP.Host = "smtp.example.com" },
			wantErr: "from address",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/shop")
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg := validConfig()
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/shop", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestOpenMemory(t *testing.T) {
	st, err := openStores(context.Background(), zap.NewNop(), &Config{
		Store:    StoreMemory,
		SeedFile: "../../db/seed/shop.json",
	}, health.New())
	require.NoError(t, err)
	defer st.close()

	c, err := st.customers.FindByEmailOrPhone(context.Background(), "rahim@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "cus-rahim", c.ID)

	ps, err := st.products.GetByIDs(context.Background(), []string{"prd-kettle"})
	require.NoError(t, err)
	require.Len(t, ps, 1)
}

func TestOpenMemory_MissingSeed(t *testing.T) {
	st, err := openMemory(zap.NewNop(), "does-not-exist.json")
	require.NoError(t, err)

	_, err = st.customers.FindByID(context.Background(), "cus-rahim")
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestNotificationDeps_Disabled(t *testing.T) {
	deps, closeDeps, err := notificationDeps(zap.NewNop(), &Config{})
	require.NoError(t, err)
	defer closeDeps()

	assert.Nil(t, deps.SMS)
	assert.Nil(t, deps.Email)
	assert.Nil(t, deps.Invoices)
	assert.Nil(t, deps.Events)
}

func TestNotificationDeps_Enabled(t *testing.T) {
	deps, closeDeps, err := notificationDeps(zap.NewNop(), &Config{
		Orders: OrdersConfig{ShopName: "Outlet Shop"},
		SMS:    SMSConfig{BaseURL: "http://sms.local/send"},
		SMTP:   SMTPConfig{Host: "smtp.local", Port: 2525, From: "shop@example.com"},
		Kafka:  KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "orders"},
	})
	require.NoError(t, err)
	defer closeDeps()

	assert.NotNil(t, deps.SMS)
	assert.NotNil(t, deps.Email)
	assert.NotNil(t, deps.Invoices)
	assert.NotNil(t, deps.Events)
}
