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

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Registration.MaxResendAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Registration.VerificationTokenTTL)
	assert.Equal(t, BackendRedis, cfg.Backends.Sessions)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, ExporterNone, cfg.Tracing.Exporter)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REGISTRATION_MAX_RESEND_ATTEMPTS", "3")
	t.Setenv("BACKEND_SESSIONS", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Registration.MaxResendAttempts)
	assert.Equal(t, BackendMemory, cfg.Backends.Sessions)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsInvalidCombinations(t *testing.T) {
	t.Setenv("BACKEND_EVENTS", "outbox")
	t.Setenv("BACKEND_RECORDS", "memory")
	t.Setenv("REGISTRATION_MAX_RESEND_ATTEMPTS", "0")
	t.Setenv("TRACING_EXPORTER", "jaeger")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbox event backend requires")
	assert.Contains(t, err.Error(), "max resend attempts")
	assert.Contains(t, err.Error(), "unknown tracing exporter")
}
