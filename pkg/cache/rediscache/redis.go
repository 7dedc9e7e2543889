// Package rediscache implements cache.Strategy on top of Redis, so several
// evaluator processes can share remote function results.
//
// Entries live under "<prefix>:<generation>:<key>". InvalidateAll bumps
// the generation counter with INCR, which makes every older entry
// unreachable at once; the old keys then age out through their TTL.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rockcut/gridformula/pkg/cache"
)

// DefaultPrefix is the key namespace used when none is configured.
const DefaultPrefix = "gridformula"

// Cache implements cache.Strategy and cache.Generational.
type Cache struct {
	rc     redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL sets the expiry of stored entries. Zero keeps entries forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// New creates a new Cache instance
func New(rc redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{rc: rc, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) generationKey() string {
	return c.prefix + ":generation"
}

func (c *Cache) key(gen uint64, field string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, field)
}

// Generation returns the current invalidation counter.
func (c *Cache) Generation(ctx context.Context) (uint64, error) {
	if c.rc == nil {
		return 0, errors.New("redis client is nil, cannot read generation")
	}
	s, err := c.rc.Get(ctx, c.generationKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get generation: %w", err)
	}
	gen, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid generation %q: %w", s, err)
	}
	return gen, nil
}

// Get retrieves a single value from the cache.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool, error) {
	gen, err := c.Generation(ctx)
	if err != nil {
		return nil, false, err
	}
	result, err := c.rc.Get(ctx, c.key(gen, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil // Cache miss
		}
		return nil, false, fmt.Errorf("failed to get cache: %w", err)
	}
	v, err := cache.Decode(result)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set saves a single value into the cache.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	gen, err := c.Generation(ctx)
	if err != nil {
		return err
	}
	data, err := cache.Encode(value)
	if err != nil {
		return err
	}
	if err := c.rc.Set(ctx, c.key(gen, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// setIfGeneration writes KEYS[2] only while KEYS[1] (the generation
// counter) still holds ARGV[1]. ARGV[3] is the TTL in milliseconds, 0 for none.
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[1])
if not gen then gen = "0" end
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// SetIfGeneration stores value only if the generation is still gen. The
// check and the write run as one script, so an INCR cannot land between them.
func (c *Cache) SetIfGeneration(ctx context.Context, key string, value interface{}, gen uint64) (bool, error) {
	if c.rc == nil {
		return false, errors.New("redis client is nil, cannot set cache")
	}
	data, err := cache.Encode(value)
	if err != nil {
		return false, err
	}
	g := strconv.FormatUint(gen, 10)
	n, err := setIfGeneration.Run(ctx, c.rc,
		[]string{c.generationKey(), c.key(gen, key)},
		g, data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to set cache: %w", err)
	}
	return n == 1, nil
}

// InvalidateAll advances the generation, orphaning every stored entry.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if c.rc == nil {
		return errors.New("redis client is nil, cannot invalidate cache")
	}
	if err := c.rc.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}
