package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaultsFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("SHUTDOWN_GRACE", "3s")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTP.Address)
	require.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "user-activity-events", cfg.Kafka.Topic)
	require.Equal(t, "activity-log-processor", cfg.Kafka.GroupID)
	require.Equal(t, "all", cfg.Kafka.Acks)
	require.Equal(t, 3*time.Second, cfg.ShutdownGrace)
	require.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	require.Empty(t, cfg.Redis.Addr)
	require.True(t, cfg.Postgres.Migrate)
}

func TestLoadFileEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kafka:
  topic: from-file
  producer_acks: leader
consumer:
  workers: 4
`), 0o600))
	t.Setenv("CONSUMER_WORKERS", "2")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.Kafka.Topic)
	require.Equal(t, "leader", cfg.Kafka.Acks)
	require.Equal(t, 2, cfg.Consumer.Workers)
}

func TestValidateRejectsUnsupportedSettings(t *testing.T) {
	t.Setenv("KAFKA_PRODUCER_ACKS", "none")
	t.Setenv("KAFKA_START_OFFSET", "middle")
	t.Setenv("CONSUMER_WORKERS", "0")

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "acks")
	require.Contains(t, err.Error(), "start offset")
	require.Contains(t, err.Error(), "workers")
}
