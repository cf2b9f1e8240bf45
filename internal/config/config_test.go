package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"STORAGE_DRIVER", "KAFKA_DLQ_TOPIC", "CONSUMER_MAX_ATTEMPTS", "PRODUCT_LOOKUP_TIMEOUT", "USE_KAFKA", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, "payments.dlq", cfg.KafkaDLQTopic)
	assert.Equal(t, 5, cfg.ConsumerMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.ProductLookupTimeout)
	assert.False(t, cfg.UseKafka)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("USE_KAFKA", "true")
	t.Setenv("CONSUMER_WORKERS", "8")
	t.Setenv("CONSUMER_RETRY_BACKOFF", "250ms")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("OUTBOX_LIMIT", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.UseKafka)
	assert.Equal(t, 8, cfg.ConsumerWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.ConsumerRetryBackoff)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 50, cfg.OutboxLimit)
}
