package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestLimiterDisabled(t *testing.T) {
	limiter, err := NewIngestLimiter(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowClient(context.Background(), "AMC")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	lease, err := limiter.LockSelector(context.Background(), "AMC", nil)
	require.NoError(t, err)
	assert.NoError(t, limiter.Unlock(context.Background(), lease))
}

func TestNewIngestLimiterRejectsBadConfig(t *testing.T) {
	_, err := NewIngestLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}})
	assert.Error(t, err)

	_, err = NewIngestLimiter(config.Config{RateLimit: config.RateLimitConfig{
		Enabled:   true,
		RedisAddr: "localhost:6379",
	}})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	north := " North "
	empty := ""
	assert.Equal(t, "sheetseries:ingest:client:AMC", ClientKey(" amc "))
	assert.Equal(t, "sheetseries:ingest:lock:AMC:North", LockKey("amc", &north))
	assert.Equal(t, "sheetseries:ingest:lock:AMC:_", LockKey("amc", nil))
	assert.Equal(t, "sheetseries:ingest:lock:AMC:_", LockKey("amc", &empty))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, bucketTTL(0, 5))
	assert.Equal(t, 10*time.Second, bucketTTL(1, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestScriptReplyParsing(t *testing.T) {
	assert.Equal(t, int64(1), asInt64(int64(1)))
	assert.Equal(t, int64(250), asInt64("250"))
	assert.Equal(t, int64(0), asInt64(2.5))
	assert.Equal(t, 2.5, asFloat("2.5"))
	assert.Equal(t, 0.0, asFloat("nope"))
	assert.Equal(t, 3.0, asFloat(int64(3)))
}

func TestNewTokenBucketValidates(t *testing.T) {
	_, err := NewTokenBucket(nil, 1, 1)
	assert.ErrorIs(t, err, ErrBucketNotConfigured)
}

func TestNilLockerAndBucket(t *testing.T) {
	var locker *Locker
	_, _, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, locker.Release(context.Background(), Lease{Key: "k", Token: "t"}))

	var bucket *TokenBucket
	res, err := bucket.Take(context.Background(), "k", 1)
	assert.ErrorIs(t, err, ErrBucketNotConfigured)
	assert.False(t, res.Allowed)
}
