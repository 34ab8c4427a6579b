package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celebrate/internal/platform/config"
)

func TestOptionsOverridesURL(t *testing.T) {
	opts, err := Options(config.RedisConfig{
		URL:         "redis://:pw@cache.internal:6380/2?pool_size=50",
		PoolSize:    10,
		DialTimeout: 7 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 7*time.Second, opts.DialTimeout)
}

func TestOptionsRejectsBadURL(t *testing.T) {
	_, err := Options(config.RedisConfig{URL: "http://not-redis"})
	assert.ErrorContains(t, err, "parse redis url")
}

func TestNewWithoutURL(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}
