// Package gormcache implements cache.Strategy on a SQL table through GORM.
// SQLite suits a single workstation; Postgres lets a fleet of evaluators
// share results.
package gormcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rockcut/gridformula/pkg/cache"
)

// Entry is one cached remote result.
type Entry struct {
	Key       string `gorm:"column:cache_key;primaryKey;size:64"`
	Value     []byte `gorm:"not null"`
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// TableName implements gorm's Tabler.
func (Entry) TableName() string { return "formula_cache_entries" }

// Meta holds the invalidation counter in a single row.
type Meta struct {
	ID         uint `gorm:"primaryKey"`
	Generation uint64
}

// TableName implements gorm's Tabler.
func (Meta) TableName() string { return "formula_cache_meta" }

const metaID = 1

// Cache implements cache.Strategy and cache.Generational.
type Cache struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// Open connects to the named driver ("sqlite" or "postgres") and returns a
// migrated Cache.
func Open(driver, dsn string, ttl time.Duration) (*Cache, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}
	return New(db, ttl)
}

// New migrates the cache tables on db and returns a Cache. A ttl <= 0 keeps
// entries until InvalidateAll.
func New(db *gorm.DB, ttl time.Duration) (*Cache, error) {
	if err := db.AutoMigrate(&Entry{}, &Meta{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache tables: %w", err)
	}
	meta := Meta{ID: metaID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&meta).Error; err != nil {
		return nil, fmt.Errorf("failed to initialise cache meta: %w", err)
	}
	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get retrieves a single value. Expired rows are reported as misses.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool, error) {
	var e Entry
	err := c.db.WithContext(ctx).Where("cache_key = ?", key).Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache: %w", err)
	}
	if e.ExpiresAt != nil && !c.now().Before(*e.ExpiresAt) {
		return nil, false, nil
	}
	v, err := cache.Decode(e.Value)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set upserts a single value.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	return c.upsert(c.db.WithContext(ctx), key, value)
}

// SetIfGeneration upserts value only if the generation is still gen. The
// guard is a no-op UPDATE of the meta row in the same transaction, which
// holds the row lock InvalidateAll needs until the upsert commits.
func (c *Cache) SetIfGeneration(ctx context.Context, key string, value interface{}, gen uint64) (bool, error) {
	stored := false
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Meta{}).Where("id = ? AND generation = ?", metaID, gen).
			UpdateColumn("generation", gorm.Expr("generation"))
		if res.Error != nil {
			return fmt.Errorf("failed to check cache generation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := c.upsert(tx, key, value); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return stored, nil
}

func (c *Cache) upsert(db *gorm.DB, key string, value interface{}) error {
	data, err := cache.Encode(value)
	if err != nil {
		return err
	}
	e := Entry{Key: key, Value: data, CreatedAt: c.now()}
	if c.ttl > 0 {
		exp := e.CreatedAt.Add(c.ttl)
		e.ExpiresAt = &exp
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "created_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// InvalidateAll deletes every entry and advances the generation in one
// transaction.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error; err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		err := tx.Model(&Meta{}).Where("id = ?", metaID).
			UpdateColumn("generation", gorm.Expr("generation + ?", 1)).Error
		if err != nil {
			return fmt.Errorf("failed to advance cache generation: %w", err)
		}
		return nil
	})
}

// Generation returns the current invalidation counter.
func (c *Cache) Generation(ctx context.Context) (uint64, error) {
	var meta Meta
	if err := c.db.WithContext(ctx).Take(&meta, metaID).Error; err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return meta.Generation, nil
}

// Purge removes expired rows and returns how many were deleted.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	res := c.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", c.now()).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
