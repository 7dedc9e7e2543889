package gormcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rockcut/gridformula/pkg/cache"
	"github.com/rockcut/gridformula/pkg/cache/gormcache"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to connect to database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to ":memory:" is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestGormImplementsStrategy(t *testing.T) {
	var _ cache.Strategy = (*gormcache.Cache)(nil)
	var _ cache.Generational = (*gormcache.Cache)(nil)
}

func TestGormSetGet(t *testing.T) {
	ctx := context.Background()
	c, err := gormcache.New(setupTestDB(t), 0)
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "Lot 42"))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Lot 42", v)

	// Upsert replaces the value.
	require.NoError(t, c.Set(ctx, "k", 7.0))
	v, _, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestGormInvalidateAll(t *testing.T) {
	ctx := context.Background()
	c, err := gormcache.New(setupTestDB(t), 0)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "a", 1.0))
	require.NoError(t, c.Set(ctx, "b", 2.0))

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	require.NoError(t, c.InvalidateAll(ctx))

	gen, err = c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGormSetIfGeneration(t *testing.T) {
	ctx := context.Background()
	c, err := gormcache.New(setupTestDB(t), 0)
	require.NoError(t, err)

	stored, err := c.SetIfGeneration(ctx, "a", 1.0, 0)
	require.NoError(t, err)
	assert.True(t, stored)

	require.NoError(t, c.InvalidateAll(ctx))

	stored, err = c.SetIfGeneration(ctx, "a", 2.0, 0)
	require.NoError(t, err)
	assert.False(t, stored, "a write for an old generation must be rejected")
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err = c.SetIfGeneration(ctx, "a", 3.0, 1)
	require.NoError(t, err)
	assert.True(t, stored)
	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen, "the guard must not move the generation")
}

func TestGormReopenKeepsGeneration(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	c, err := gormcache.New(db, 0)
	require.NoError(t, err)
	require.NoError(t, c.InvalidateAll(ctx))

	again, err := gormcache.New(db, 0)
	require.NoError(t, err)
	gen, err := again.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
}

func TestGormTTL(t *testing.T) {
	ctx := context.Background()
	c, err := gormcache.New(setupTestDB(t), time.Minute)
	require.NoError(t, err)

	now := time.Unix(5000, 0)
	gormcache.SetClock(c, func() time.Time { return now })

	require.NoError(t, c.Set(ctx, "k", true))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Hour)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := gormcache.Open("oracle", "", 0)
	assert.Error(t, err)
}
