package schema

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sqlscout/sqlscout/internal/observability"
	"github.com/sqlscout/sqlscout/internal/store"
)

// Cache holds the most recent schema snapshot for the configured TTL.
// Concurrent callers that miss the cache share one introspection via
// single-flight instead of each hitting the store. A TTL of zero disables
// caching entirely; Invalidate drops the snapshot immediately.
type Cache struct {
	store      store.Store
	sampleRows int
	ttl        time.Duration

	now   func() time.Time
	group singleflight.Group

	mu        sync.Mutex
	gen       uint64
	snapshot  *Snapshot
	refreshed time.Time
}

func NewCache(s store.Store, sampleRows int, ttl time.Duration) *Cache {
	return &Cache{
		store:      s,
		sampleRows: sampleRows,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (c *Cache) Snapshot(ctx context.Context) (Snapshot, error) {
	if c.ttl > 0 {
		c.mu.Lock()
		if c.snapshot != nil && c.now().Sub(c.refreshed) < c.ttl {
			snapshot := *c.snapshot
			c.mu.Unlock()
			return snapshot, nil
		}
		c.mu.Unlock()
	}

	value, err, _ := c.group.Do("schema", func() (any, error) {
		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()

		observability.IncrementSchemaRebuild()
		tables, err := c.store.Introspect(ctx, c.sampleRows)
		if err != nil {
			return nil, err
		}
		snapshot := Snapshot{
			Tables:    tables,
			Text:      Render(tables),
			CreatedAt: c.now(),
		}
		if c.ttl > 0 {
			c.mu.Lock()
			// An Invalidate that arrived mid-rebuild bumps the generation;
			// the result is then stale and must not repopulate the cache.
			if c.gen == gen {
				c.snapshot = &snapshot
				c.refreshed = snapshot.CreatedAt
			}
			c.mu.Unlock()
		}
		return snapshot, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return value.(Snapshot), nil
}

// Invalidate drops the cached snapshot and detaches any in-flight rebuild:
// callers arriving after Invalidate always see a fresh introspection, never
// a flight started before it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.snapshot = nil
	c.mu.Unlock()
	c.group.Forget("schema")
}
