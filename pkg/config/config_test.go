package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	var cfg WorkerConfig
	require.NoError(t, load(context.Background(), envconfig.MapLookuper(map[string]string{}), &cfg))

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.False(t, cfg.InMemory())
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 10, cfg.Ingest.MaxParallelism)
	assert.Equal(t, 24*time.Hour, cfg.Lifecycle.ReservationTTL)
	assert.Equal(t, time.Minute, cfg.Lifecycle.ReaperInterval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "fs", cfg.Staging.Driver)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestPrefixedOverrides(t *testing.T) {
	var cfg APIConfig
	err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"NUMBERVAULT_STORE_DRIVER":    "memory",
		"NUMBERVAULT_SERVER_PORT":     "9000",
		"NUMBERVAULT_KAFKA_BROKERS":   "k1:9092,k2:9092",
		"NUMBERVAULT_CHUNK_SIZE":      "50",
		"NUMBERVAULT_RESERVATION_TTL": "2h",
		"CHUNK_SIZE":                  "7",
	}), &cfg)
	require.NoError(t, err)

	assert.True(t, cfg.InMemory())
	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 50, cfg.Ingest.ChunkSize)
	assert.Equal(t, 2*time.Hour, cfg.Lifecycle.ReservationTTL)
}

func TestValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown store":      {"NUMBERVAULT_STORE_DRIVER": "mongo"},
		"zero parallelism":   {"NUMBERVAULT_MAX_PARALLELISM": "0"},
		"s3 without bucket":  {"NUMBERVAULT_STAGING_DRIVER": "s3"},
		"unknown log format": {"NUMBERVAULT_LOG_FORMAT": "xml"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			var cfg WorkerConfig
			assert.Error(t, load(context.Background(), envconfig.MapLookuper(env), &cfg))
		})
	}
}

func TestCLIConfig(t *testing.T) {
	var cfg CLIConfig
	require.NoError(t, load(context.Background(), envconfig.MapLookuper(map[string]string{
		"NUMBERVAULT_ACTOR": "alice",
	}), &cfg))

	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, "alice", cfg.Actor)
}
