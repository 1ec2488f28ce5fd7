package cache

import (
	"strings"

	"github.com/Sternrassler/transcript-gateway/pkg/locator"
)

// DefaultKeyPrefix namespaces all Redis keys written by the cache.
const DefaultKeyPrefix = "transcript"

// keyspace builds the Redis key layout:
//
//	transcript:entry:<video id>  one JSON Entry per video
//	transcript:stats             hash with "hits" and "misses"
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) entry(key locator.Key) string {
	return k.prefix + ":entry:" + string(key)
}

func (k keyspace) entryPattern() string {
	return k.prefix + ":entry:*"
}

func (k keyspace) stats() string {
	return k.prefix + ":stats"
}
