package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"LEDGER_ADDR", "REQUEST_TIMEOUT", "ESCROW_ACCOUNT", "LEDGER_TX_TIMEOUT", "DATABASE_URL", "KAFKA_BROKERS", "REDIS_URL", "PAYMENT_AUTHORITY_URL"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "escrow", cfg.EscrowAccount)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "ledger.events", cfg.Kafka.Topic)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LEDGER_ADDR", ":9090")
	t.Setenv("LEDGER_TX_TIMEOUT", "250ms")
	t.Setenv("REQUEST_TIMEOUT", "-1s")
	t.Setenv("KAFKA_BROKERS", "localhost:9092, localhost:9093,")
	t.Setenv("KAFKA_PARTITIONS", "6")
	t.Setenv("REDIS_POOL_SIZE", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.TxTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout, "non-positive durations fall back")
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Kafka.Brokers)
	assert.Equal(t, int32(6), cfg.Kafka.Partitions)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
}
