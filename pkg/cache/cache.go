// Package cache provides the pluggable result cache used by the formula
// evaluator for remote function calls.
//
// A Strategy stores settled remote results keyed by a digest of the
// function name, its arguments and (optionally) the row identity. The
// evaluator consults the strategy before dispatching a remote call and
// stores the result afterwards. InvalidateAll is the refresh hook the host
// calls when underlying data may have changed.
//
// Implementations in this module:
//   - Memory: in-process LRU with optional TTL
//   - Noop: never stores anything
//   - rediscache: shared cache backed by Redis
//   - gormcache: shared cache backed by a SQL table through GORM
//
// # Example
//
//	c := cache.NewMemory(1024, 5*time.Minute)
//	ev := evaluator.New(evaluator.WithCache(c))
package cache

import "context"

// Strategy is a result cache for remote function calls.
// Implementations must be safe for concurrent use; concurrent Sets for the
// same key are last-write-wins.
type Strategy interface {
	// Get returns the cached value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) (interface{}, bool, error)
	// Set stores value under key.
	Set(ctx context.Context, key string, value interface{}) error
	// InvalidateAll drops every entry.
	InvalidateAll(ctx context.Context) error
}

// Generational is implemented by strategies that count invalidations.
// The evaluator reads the generation before looking up a key and stores
// the dispatched result with SetIfGeneration, so a result computed against
// stale data is never stored after InvalidateAll.
type Generational interface {
	// Generation returns the number of InvalidateAll calls so far.
	Generation(ctx context.Context) (uint64, error)
	// SetIfGeneration stores value under key only if the generation is
	// still gen. The check and the write are atomic with respect to
	// InvalidateAll. It reports whether the value was stored.
	SetIfGeneration(ctx context.Context, key string, value interface{}, gen uint64) (bool, error)
}

// Noop is a Strategy that never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) (interface{}, bool, error) { return nil, false, nil }

// Set discards the value.
func (Noop) Set(context.Context, string, interface{}) error { return nil }

// InvalidateAll does nothing.
func (Noop) InvalidateAll(context.Context) error { return nil }
