package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOOKS_PER_BATCH", "")
	t.Setenv("MIN_INVENTORY", "")
	t.Setenv("QUEUE_BACKEND", "")

	LoadConfig()

	assert.Equal(t, "8080", Port)
	assert.Equal(t, 3, LooksPerBatch)
	assert.Equal(t, 4, MinInventory)
	assert.Equal(t, "local", QueueBackend)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FREE_CREDITS_PER_WEEK", "7")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("ENVIRONMENT", "Production")

	LoadConfig()

	assert.Equal(t, "9090", Port)
	assert.Equal(t, 7, FreeCreditsPerWeek)
	assert.Equal(t, []string{"a:9092", "b:9092"}, KafkaBrokers)
	assert.True(t, IsProduction())
}

func TestGetEnvInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("STEP_MAX_RETRIES", "lots")
	assert.Equal(t, 3, getEnvInt("STEP_MAX_RETRIES", 3))
}
