package cache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rockcut/gridformula/pkg/cache"
	"github.com/rockcut/gridformula/pkg/types"
)

var ctx = context.Background()

func mustGet(t *testing.T, c cache.Strategy, key string) (interface{}, bool) {
	t.Helper()
	v, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	return v, ok
}

func TestMemoryNew(t *testing.T) {
	c := cache.NewMemory(10, 0)
	if got := c.Len(); got != 0 {
		t.Fatalf("expected empty cache, got %d", got)
	}
	if got := c.Capacity(); got != 10 {
		t.Fatalf("expected capacity 10, got %d", got)
	}
}

func TestMemoryDefaultCapacity(t *testing.T) {
	c := cache.NewMemory(0, 0)
	if got := c.Capacity(); got != 256 {
		t.Fatalf("expected default capacity 256, got %d", got)
	}
}

func TestMemorySetGet(t *testing.T) {
	c := cache.NewMemory(4, 0)
	if err := c.Set(ctx, "k", 42.0); err != nil {
		t.Fatal(err)
	}
	got, ok := mustGet(t, c, "k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != 42.0 {
		t.Fatalf("expected 42, got %v", got)
	}
}

func TestMemoryMiss(t *testing.T) {
	c := cache.NewMemory(4, 0)
	if v, ok := mustGet(t, c, "missing"); ok || v != nil {
		t.Fatalf("expected miss, got %v, %v", v, ok)
	}
}

func TestMemoryLRUEviction(t *testing.T) {
	c := cache.NewMemory(3, 0)
	for i, k := range []string{"a", "b", "c", "d"} {
		_ = c.Set(ctx, k, float64(i))
	}
	if got := c.Len(); got != 3 {
		t.Fatalf("expected 3 entries after eviction, got %d", got)
	}
	if _, ok := mustGet(t, c, "a"); ok {
		t.Fatal(`expected "a" to be evicted (LRU)`)
	}
	if _, ok := mustGet(t, c, "d"); !ok {
		t.Fatal(`expected most-recently-inserted "d" to survive`)
	}
}

func TestMemoryGetPromotes(t *testing.T) {
	c := cache.NewMemory(2, 0)
	_ = c.Set(ctx, "a", 1.0)
	_ = c.Set(ctx, "b", 2.0)
	mustGet(t, c, "a")
	_ = c.Set(ctx, "c", 3.0)
	if _, ok := mustGet(t, c, "b"); ok {
		t.Fatal(`expected "b" to be evicted after "a" was read`)
	}
	if _, ok := mustGet(t, c, "a"); !ok {
		t.Fatal(`expected "a" to survive`)
	}
}

func TestMemoryTTL(t *testing.T) {
	c := cache.NewMemory(4, time.Minute)
	now := time.Unix(1000, 0)
	cache.SetClock(c, func() time.Time { return now })

	_ = c.Set(ctx, "k", "v")
	if _, ok := mustGet(t, c, "k"); !ok {
		t.Fatal("expected fresh entry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := mustGet(t, c, "k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("expected expired entry to be removed, got %d", got)
	}
}

func TestMemoryInvalidate(t *testing.T) {
	c := cache.NewMemory(4, 0)
	_ = c.Set(ctx, "k", 1.0)
	c.Invalidate("k")
	if _, ok := mustGet(t, c, "k"); ok {
		t.Fatal("expected miss after Invalidate")
	}
}

func TestMemoryInvalidateAllAdvancesGeneration(t *testing.T) {
	c := cache.NewMemory(4, 0)
	_ = c.Set(ctx, "a", 1.0)
	_ = c.Set(ctx, "b", 2.0)

	before, _ := c.Generation(ctx)
	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := c.Generation(ctx)

	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
	if after != before+1 {
		t.Fatalf("expected generation %d, got %d", before+1, after)
	}
}

func TestMemorySetIfGeneration(t *testing.T) {
	var _ cache.Generational = (*cache.Memory)(nil)
	c := cache.NewMemory(4, 0)
	gen, _ := c.Generation(ctx)

	stored, err := c.SetIfGeneration(ctx, "a", 1.0, gen)
	if err != nil || !stored {
		t.Fatalf("current generation: stored=%v err=%v", stored, err)
	}
	if v, ok := mustGet(t, c, "a"); !ok || v != 1.0 {
		t.Fatalf("expected a=1, got %v (%v)", v, ok)
	}

	_ = c.InvalidateAll(ctx)
	stored, err = c.SetIfGeneration(ctx, "a", 2.0, gen)
	if err != nil || stored {
		t.Fatalf("stale generation: stored=%v err=%v", stored, err)
	}
	if _, ok := mustGet(t, c, "a"); ok || c.Len() != 0 {
		t.Fatal("stale write must not be stored")
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	c := cache.NewMemory(64, 0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				_ = c.Set(ctx, key, float64(g))
				_, _, _ = c.Get(ctx, key)
				if i%50 == 0 {
					_ = c.InvalidateAll(ctx)
				}
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > c.Capacity() {
		t.Fatalf("cache grew past capacity: %d", c.Len())
	}
}

func TestNoop(t *testing.T) {
	var c cache.Strategy = cache.Noop{}
	_ = c.Set(ctx, "k", 1.0)
	if _, ok := mustGet(t, c, "k"); ok {
		t.Fatal("noop cache must never hit")
	}
	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"number", 3.5, 3.5},
		{"int normalised", 7, 7.0},
		{"string", "lot", "lot"},
		{"bool", true, true},
		{"null", nil, nil},
		{"undefined", types.Undefined, types.Undefined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := cache.Encode(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			got, err := cache.Decode(b)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}
