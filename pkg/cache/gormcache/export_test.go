package gormcache

import "time"

// SetClock replaces the time source of c.
func SetClock(c *Cache, now func() time.Time) {
	c.now = now
}
