// Package cache stores fetched transcripts keyed by video id, with a TTL.
//
// Two backends implement Cache:
//
//   - Memory: a process-local map guarded by a RWMutex. Expired entries are
//     dropped when read and by a periodic sweep.
//   - Redis: JSON entries with a native PX expiry, shared by every gateway
//     replica. Hit and miss counters live in a Redis hash so Stats reflects
//     the whole deployment.
//
// No backend ever returns an entry whose ExpiresAt lies in the past.
//
// # Basic Usage
//
//	c := cache.NewMemory(cache.WithMaxEntries(5000))
//	go c.StartJanitor(ctx, 10*time.Minute)
//
//	if result, ok, err := c.Get(ctx, key); err == nil && ok {
//		// serve from cache
//	}
//	_ = c.Put(ctx, key, result, cache.DefaultTTL)
//
// # Metrics
//
//   - transcript_cache_hits_total{backend}
//   - transcript_cache_misses_total{backend}
//   - transcript_cache_entries{backend}
//   - transcript_cache_evictions_total{reason}
//   - transcript_cache_errors_total{operation}
package cache
