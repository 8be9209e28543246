package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrBucketNotConfigured = errors.New("rate limiter not configured")
	ErrCostExceedsBurst    = errors.New("rate limit cost exceeds burst")
)

// The bucket refills continuously on the redis clock. Tokens come back as a
// string because redis truncates Lua numbers to integers.
const takeScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
local retry_ms = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
else
  retry_ms = math.ceil(((cost - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens), retry_ms}
`

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
}

// TokenBucket is a redis-backed bucket with a fixed rate (tokens per second)
// and burst shared by every key.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
	ttl    time.Duration
}

func NewTokenBucket(client *redis.Client, rate float64, burst int) (*TokenBucket, error) {
	if client == nil {
		return nil, ErrBucketNotConfigured
	}
	if rate <= 0 || burst <= 0 {
		return nil, errors.New("rate limit rate and burst must be positive")
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(takeScript),
		rate:   rate,
		burst:  burst,
		ttl:    bucketTTL(rate, burst),
	}, nil
}

// Take removes cost tokens from key's bucket if enough are available.
func (t *TokenBucket) Take(ctx context.Context, key string, cost int) (*Decision, error) {
	if t == nil || t.client == nil {
		return &Decision{}, ErrBucketNotConfigured
	}
	if key == "" {
		return &Decision{}, errors.New("rate limit key is empty")
	}
	if cost <= 0 {
		cost = 1
	}
	if cost > t.burst {
		return &Decision{}, ErrCostExceedsBurst
	}

	res, err := t.script.Run(ctx, t.client, []string{key},
		t.rate, t.burst, cost, t.ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return &Decision{}, err
	}
	if len(res) != 3 {
		return &Decision{}, errors.New("unexpected rate limit script reply")
	}

	return &Decision{
		Allowed:    asInt64(res[0]) == 1,
		Remaining:  asFloat(res[1]),
		RetryAfter: time.Duration(asInt64(res[2])) * time.Millisecond,
	}, nil
}

// bucketTTL keeps idle buckets around for twice the time a full refill takes.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(float64(burst)/rate*2))
	return time.Duration(seconds) * time.Second
}

func asInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	case int64:
		return float64(val)
	default:
		return 0
	}
}
