package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/transcript-gateway/pkg/locator"
	"github.com/Sternrassler/transcript-gateway/pkg/transcript"
)

// ErrInvalidEntry indicates a stored entry could not be decoded.
var ErrInvalidEntry = errors.New("invalid cache entry")

const scanBatch = 500

// Redis is a Cache shared across gateway replicas.
type Redis struct {
	redis  *redis.Client
	keys   keyspace
	now    func() time.Time
	logger zerolog.Logger
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithKeyPrefix namespaces the cache keys. Defaults to DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.keys = newKeyspace(prefix)
	}
}

// WithRedisLogger sets the logger used for decode warnings.
func WithRedisLogger(logger zerolog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// NewRedis creates a cache backed by redisClient.
func NewRedis(redisClient *redis.Client, opts ...RedisOption) *Redis {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	r := &Redis{
		redis:  redisClient,
		keys:   newKeyspace(DefaultKeyPrefix),
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get implements Cache. Undecodable entries are deleted and count as misses.
func (r *Redis) Get(ctx context.Context, key locator.Key) (*transcript.Result, bool, error) {
	data, err := r.redis.Get(ctx, r.keys.entry(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, r.miss(ctx)
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		CacheErrors.WithLabelValues("get").Inc()
		r.logger.Warn().Err(err).Str("video_id", key.String()).Msg("Dropping undecodable cache entry")
		_ = r.redis.Del(ctx, r.keys.entry(key)).Err()
		return nil, false, r.miss(ctx)
	}

	// PX expiry is authoritative, but clocks between replicas drift.
	if entry.IsExpired(r.now()) {
		_ = r.redis.Del(ctx, r.keys.entry(key)).Err()
		CacheEvictions.WithLabelValues("expired").Inc()
		return nil, false, r.miss(ctx)
	}

	if err := r.redis.HIncrBy(ctx, r.keys.stats(), "hits", 1).Err(); err != nil {
		CacheErrors.WithLabelValues("stats").Inc()
		return nil, false, fmt.Errorf("redis hincrby: %w", err)
	}
	CacheHits.WithLabelValues(backendRedis).Inc()
	return entry.Result, true, nil
}

func (r *Redis) miss(ctx context.Context) error {
	CacheMisses.WithLabelValues(backendRedis).Inc()
	if err := r.redis.HIncrBy(ctx, r.keys.stats(), "misses", 1).Err(); err != nil {
		CacheErrors.WithLabelValues("stats").Inc()
		return fmt.Errorf("redis hincrby: %w", err)
	}
	return nil
}

// Put implements Cache.
func (r *Redis) Put(ctx context.Context, key locator.Key, result *transcript.Result, ttl time.Duration) error {
	if result == nil {
		return ErrNilResult
	}
	ttl = effectiveTTL(ttl)

	data, err := json.Marshal(newEntry(result, r.now(), ttl))
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.redis.Set(ctx, r.keys.entry(key), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate implements Cache.
func (r *Redis) Invalidate(ctx context.Context, key locator.Key) (bool, error) {
	n, err := r.redis.Del(ctx, r.keys.entry(key)).Result()
	if err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Clear implements Cache. Entries written concurrently with Clear may survive.
func (r *Redis) Clear(ctx context.Context) error {
	err := r.scan(ctx, func(batch []string) error {
		return r.redis.Del(ctx, batch...).Err()
	})
	if err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Stats implements Cache.
func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	counters, err := r.redis.HMGet(ctx, r.keys.stats(), "hits", "misses").Result()
	if err != nil {
		CacheErrors.WithLabelValues("stats").Inc()
		return stats, fmt.Errorf("redis hmget: %w", err)
	}
	stats.Hits = parseCounter(counters[0])
	stats.Misses = parseCounter(counters[1])

	err = r.scan(ctx, func(batch []string) error {
		stats.Entries += len(batch)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("stats").Inc()
		return stats, fmt.Errorf("count entries: %w", err)
	}
	return stats, nil
}

// scan walks all entry keys in batches. SCAN may report a key twice;
// callers must tolerate that.
func (r *Redis) scan(ctx context.Context, fn func(batch []string) error) error {
	var cursor uint64
	for {
		batch, next, err := r.redis.Scan(ctx, cursor, r.keys.entryPattern(), scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func parseCounter(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
