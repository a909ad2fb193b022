package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/FoodSafety-MS-KB/internal/application/enrichment"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// nullMarker is stored for remembered no-match lookups so that known
// misses are distinguishable from cold keys.
const nullMarker = "__null__"

// LookupCache is the redis-backed enrichment.LookupCache.  Lookup results
// are stored as JSON under a name-derived key; no-match outcomes are
// stored as a null marker with the same TTL.  Concurrent reads of the
// same key are collapsed through singleflight.
type LookupCache struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	group  singleflight.Group
	logger logging.Logger
}

// NewLookupCache builds a LookupCache over an established client.
func NewLookupCache(client *Client, prefix string, ttl time.Duration, logger logging.Logger) *LookupCache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if prefix == "" {
		prefix = "mskb:"
	}
	return &LookupCache{
		rdb:    client.Raw(),
		prefix: prefix,
		ttl:    ttl,
		logger: logger.Named("lookupcache"),
	}
}

func (c *LookupCache) key(name string) string {
	return c.prefix + "lookup:" + name
}

type cacheOutcome struct {
	result *enrichment.LookupResult
	hit    bool
}

// Get returns the cached result for a name.  A hit with a nil result is a
// remembered no-match.
func (c *LookupCache) Get(ctx context.Context, name string) (*enrichment.LookupResult, bool, error) {
	v, err, _ := c.group.Do(c.key(name), func() (interface{}, error) {
		data, err := c.rdb.Get(ctx, c.key(name)).Bytes()
		if err == redis.Nil {
			return cacheOutcome{}, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "cache read failed")
		}
		if string(data) == nullMarker {
			return cacheOutcome{hit: true}, nil
		}
		var result enrichment.LookupResult
		if err := json.Unmarshal(data, &result); err != nil {
			// A corrupt entry behaves like a miss; the next Set repairs it.
			c.logger.Warn("discarding corrupt cache entry", logging.String("name", name), logging.Err(err))
			return cacheOutcome{}, nil
		}
		return cacheOutcome{result: &result, hit: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	outcome := v.(cacheOutcome)
	return outcome.result, outcome.hit, nil
}

// Set stores a lookup result, or the null marker when result is nil.
func (c *LookupCache) Set(ctx context.Context, name string, result *enrichment.LookupResult) error {
	if c.ttl <= 0 {
		return nil
	}
	var payload []byte
	if result == nil {
		payload = []byte(nullMarker)
	} else {
		data, err := json.Marshal(result)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encoding lookup result")
		}
		payload = data
	}
	if err := c.rdb.Set(ctx, c.key(name), payload, c.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache write failed")
	}
	return nil
}

var _ enrichment.LookupCache = (*LookupCache)(nil)
