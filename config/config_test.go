package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	rules := cfg.Business.PricingRules()
	assert.Equal(t, "0.08", rules.TaxRate.String())
	assert.Equal(t, "100", rules.FreeShippingThreshold.String())
	assert.Equal(t, "9.99", rules.FlatShippingFee.String())
	assert.Equal(t, 5*24*time.Hour, cfg.Business.DeliveryEstimate)
	assert.Equal(t, 30*24*time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, "storefront-events", cfg.Kafka.Topic)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TAX_RATE", "0.1")
	t.Setenv("ORDER_SUBMIT_DELAY_MS", "0")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("CATALOG_SEED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.1", cfg.Business.TaxRate.String())
	assert.Zero(t, cfg.Business.OrderSubmitDelay)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Database.SeedCatalog)
}

func TestLoadRejectsBadMoney(t *testing.T) {
	t.Setenv("FLAT_SHIPPING_FEE", "cheap")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("FLAT_SHIPPING_FEE", "-1")
	_, err = Load()
	assert.Error(t, err)
}
