package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces rate limit keys in Redis.
const DefaultKeyPrefix = "ratelimit:"

// admitScript runs the whole fixed-window check atomically. The key holds the
// admitted count and expires with the window, so an absent key is a fresh
// window.
//
// KEYS[1] window key, ARGV[1] max, ARGV[2] window in ms.
// Returns {allowed (0|1), count, ttl ms}.
var admitScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local allowed = 0
if count < limit then
  count = redis.call('INCR', KEYS[1])
  allowed = 1
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {allowed, count, ttl}
`)

// Redis is a Limiter shared by every replica using the same Redis.
// Windows are timed by the Redis server clock; now only anchors ResetAt.
type Redis struct {
	cfg    Config
	redis  *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(redisClient *redis.Client, cfg Config) (*Redis, error) {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Redis{
		cfg:    cfg,
		redis:  redisClient,
		prefix: DefaultKeyPrefix,
	}, nil
}

// Admit implements Limiter.
func (r *Redis) Admit(ctx context.Context, addr string, now time.Time) (Decision, error) {
	res, err := admitScript.Run(ctx, r.redis,
		[]string{r.prefix + addr},
		r.cfg.Max, r.cfg.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run admit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("admit script returned %d values", len(res))
	}

	count := int(res[1])
	remaining := r.cfg.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     r.cfg.Max,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(res[2]) * time.Millisecond),
	}, nil
}
