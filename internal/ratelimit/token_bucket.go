package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "pixelpress:ratelimit"

// Decision is the outcome of one bucket check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Config sizes every bucket: Capacity tokens, refilled linearly over Window.
type Config struct {
	Capacity  int
	Window    time.Duration
	KeyPrefix string
}

// RedisTokenBucket keeps one bucket per subject in a Redis hash. The check
// and the spend happen in a single script so API replicas share buckets.
type RedisTokenBucket struct {
	client   redis.UniversalClient
	capacity int64
	window   time.Duration
	prefix   string
	now      func() time.Time
}

// takeScript refills the bucket for the time elapsed since its last update,
// then spends ARGV[4] tokens if that many are available. It replies with
// {allowed, tokens left, milliseconds until the cost would fit}.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "updated_ms")
local tokens = tonumber(state[1]) or capacity
local updated_ms = tonumber(state[2]) or now_ms

local rate = capacity / window_ms
tokens = math.min(capacity, tokens + math.max(0, now_ms - updated_ms) * rate)

local allowed, wait_ms = 0, 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait_ms = math.ceil((cost - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "updated_ms", now_ms)
redis.call("PEXPIRE", KEYS[1], window_ms * 2)
return {allowed, math.floor(tokens), wait_ms}
`)

func NewRedisTokenBucket(client redis.UniversalClient, cfg Config) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client is required")
	case cfg.Capacity <= 0:
		return nil, fmt.Errorf("capacity must be positive, got %d", cfg.Capacity)
	case cfg.Window < time.Millisecond:
		return nil, fmt.Errorf("window must be at least 1ms, got %s", cfg.Window)
	}

	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisTokenBucket{
		client:   client,
		capacity: int64(cfg.Capacity),
		window:   cfg.Window,
		prefix:   prefix,
		now:      time.Now,
	}, nil
}

func (l *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	return l.AllowN(ctx, subject, 1)
}

// AllowN spends cost tokens at once. The cost is clamped to [1, capacity] so
// one large request can still pass on a full bucket.
func (l *RedisTokenBucket) AllowN(ctx context.Context, subject string, cost int64) (Decision, error) {
	cost = min(max(cost, 1), l.capacity)

	reply, err := takeScript.Run(ctx, l.client,
		[]string{l.key(subject)},
		l.capacity,
		l.window.Milliseconds(),
		l.now().UnixMilli(),
		cost,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket: %w", err)
	}
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("token bucket: unexpected reply %v", reply)
	}

	return Decision{
		Allowed:    reply[0] == 1,
		Remaining:  reply[1],
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

func (l *RedisTokenBucket) key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.prefix + ":" + subject
}
