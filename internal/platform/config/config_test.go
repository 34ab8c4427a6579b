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
	assert.Equal(t, int64(5000), cfg.Limits.GuestPerDonation)
	assert.Equal(t, int64(350000), cfg.Limits.CompliantPerElection)
	assert.Equal(t, "America/New_York", cfg.Limits.TimeZone)
	assert.Equal(t, 8760*time.Hour, cfg.Escrow.Window)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, time.Minute, cfg.Worker.RetryInitialDelay)
	assert.Equal(t, 12, cfg.Worker.RetryMaxAttempts)
	assert.Equal(t, int64(100000), cfg.Limits.TipCeiling)
	assert.Empty(t, cfg.Escrow.PrimaryCalendarPath, "empty selects the built-in calendar")
	assert.Empty(t, cfg.Tracing.Endpoint)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CELEBRATE_ADDR", ":9090")
	t.Setenv("CELEBRATE_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("CELEBRATE_LIMITS_GUEST_ANNUAL_CAP", "10000")
	t.Setenv("CELEBRATE_WORKER_TRIGGER_CONCURRENCY", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(10000), cfg.Limits.GuestAnnualCap)
	assert.Equal(t, 2, cfg.Worker.TriggerConcurrency)
}

func TestValidate(t *testing.T) {
	t.Run("bad time zone", func(t *testing.T) {
		t.Setenv("CELEBRATE_LIMITS_TIME_ZONE", "Mars/Olympus")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("prod requires admin token", func(t *testing.T) {
		t.Setenv("CELEBRATE_ENV", "prod")
		t.Setenv("CELEBRATE_WEBHOOK_SECRET", "s")
		_, err := Load()
		require.ErrorContains(t, err, "ADMIN_TOKEN")
	})
	t.Run("sample ratio out of range", func(t *testing.T) {
		t.Setenv("CELEBRATE_OTEL_SAMPLE_RATIO", "1.5")
		_, err := Load()
		require.ErrorContains(t, err, "sample ratio")
	})
	t.Run("lock ttl too short to renew", func(t *testing.T) {
		t.Setenv("CELEBRATE_WORKER_LOCK_TTL", "500ms")
		_, err := Load()
		require.ErrorContains(t, err, "lock ttl")
	})
	t.Run("zero tip ceiling", func(t *testing.T) {
		t.Setenv("CELEBRATE_LIMITS_TIP_CEILING", "0")
		_, err := Load()
		require.ErrorContains(t, err, "tip ceiling")
	})
	t.Run("zero concurrency", func(t *testing.T) {
		t.Setenv("CELEBRATE_WORKER_TRIGGER_CONCURRENCY", "0")
		_, err := Load()
		require.Error(t, err)
	})
}
