package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/annotations"
	"github.com/wbrown/janus-ecs/ecs/query"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

// QueryCache holds the matches of a plan and rebuilds them when the world
// structure changes. Uncached plans are rematched on every Matches call.
type QueryCache struct {
	plan  *Plan
	world *storage.World

	version uint64
	valid   bool
	matches []*Match
	groups  *groupEngine

	// rebuilds counts how often the matches were recomputed
	rebuilds int
}

// NewQueryCache creates the match cache of a plan
func NewQueryCache(w *storage.World, plan *Plan) *QueryCache {
	c := &QueryCache{plan: plan, world: w}
	if plan.GroupBy.IsSet() {
		c.groups = newGroupEngine(w, plan.GroupBy)
	}
	return c
}

// Plan returns the cached plan
func (c *QueryCache) Plan() *Plan {
	return c.plan
}

// Rebuilds returns the number of times the matches were recomputed
func (c *QueryCache) Rebuilds() int {
	return c.rebuilds
}

// Stale reports whether the cached matches must be recomputed
func (c *QueryCache) Stale() bool {
	return !c.valid || c.version != c.world.StructureVersion()
}

// Matches returns the ordered matches of the plan. fixed holds variable
// values set by the caller; when any is set the cache is bypassed.
func (c *QueryCache) Matches(fixed []ecs.Entity) []*Match {
	if hasFixed(fixed) {
		m := c.plan.MatchAll(c.world, fixed)
		c.order(m)
		return m
	}
	if !c.plan.Cached {
		m := c.plan.MatchAll(c.world, nil)
		c.order(m)
		c.refreshGroups(m)
		return m
	}
	if c.Stale() {
		c.rebuild()
	}
	// Groups track populated tables, which changes without a structural
	// change when entities are created in an existing table.
	c.refreshGroups(c.matches)
	return c.matches
}

func (c *QueryCache) rebuild() {
	start := time.Now()
	c.matches = c.plan.MatchAll(c.world, nil)
	c.order(c.matches)
	c.version = c.world.StructureVersion()
	c.valid = true
	c.rebuilds++

	if col := c.world.Collector(); col.Enabled() {
		col.AddTiming(annotations.CacheRebuilt, start, map[string]any{
			"query":  c.plan.String(),
			"tables": len(c.matches),
			"groups": countGroups(c.matches),
		})
	}
}

func (c *QueryCache) order(m []*Match) {
	if c.groups != nil {
		c.groups.assign(m)
	}
	sortMatches(m, c.plan)
}

func (c *QueryCache) refreshGroups(m []*Match) {
	if c.groups != nil {
		c.groups.sync(m)
	}
}

// GroupContext returns the context created for a group
func (c *QueryCache) GroupContext(group uint64) (any, bool) {
	if c.groups == nil {
		return nil, false
	}
	return c.groups.context(group)
}

// Groups returns the ids of the populated groups in iteration order
func (c *QueryCache) Groups() []uint64 {
	if c.groups == nil {
		return nil
	}
	return c.groups.ids(c.plan.GroupBy.Desc)
}

// Close deletes all remaining groups
func (c *QueryCache) Close() {
	if c.groups != nil {
		c.groups.close()
	}
	c.matches = nil
	c.valid = false
}

func countGroups(m []*Match) int {
	seen := make(map[uint64]struct{})
	for _, match := range m {
		seen[match.Group] = struct{}{}
	}
	return len(seen)
}

func hasFixed(fixed []ecs.Entity) bool {
	for _, e := range fixed {
		if e != 0 {
			return true
		}
	}
	return false
}

// PlanCache shares compiled plans between identical descriptors
type PlanCache struct {
	cache map[string]*cachedPlan
	mu    sync.RWMutex

	hits   int64
	misses int64

	maxSize int
	ttl     time.Duration
}

type cachedPlan struct {
	plan      *Plan
	timestamp time.Time
}

// NewPlanCache creates a plan cache
func NewPlanCache(maxSize int, ttl time.Duration) *PlanCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PlanCache{
		cache:   make(map[string]*cachedPlan),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached plan of a descriptor if present and not expired
func (c *PlanCache) Get(w *storage.World, desc *query.Desc, opts Options) (*Plan, bool) {
	if c == nil {
		return nil, false
	}
	key := c.computeKey(w, desc, opts)

	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.cache[key]
	if !ok || time.Since(cached.timestamp) > c.ttl {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return cached.plan, true
}

// Set stores the plan of a descriptor
func (c *PlanCache) Set(w *storage.World, desc *query.Desc, plan *Plan, opts Options) {
	if c == nil || plan == nil {
		return
	}
	key := c.computeKey(w, desc, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= c.maxSize {
		c.evictExpired()
		if len(c.cache) >= c.maxSize {
			c.evictOldest()
		}
	}
	c.cache[key] = &cachedPlan{plan: plan, timestamp: time.Now()}
}

// Clear removes all cached plans and resets the statistics
func (c *PlanCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cachedPlan)
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Stats returns cache statistics
func (c *PlanCache) Stats() (hits, misses int64, size int) {
	if c == nil {
		return 0, 0, 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), len(c.cache)
}

// computeKey hashes everything that affects compilation. Plans hold
// resolved entity ids and trait defaults, so the world and its registry
// version are part of the key.
func (c *PlanCache) computeKey(w *storage.World, desc *query.Desc, opts Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "WORLD:%p:%d;", w, w.RegistryVersion())
	fmt.Fprintf(h, "NAME:%s;", desc.Name)
	fmt.Fprintf(h, "TERMS:")
	for _, t := range desc.Terms {
		fmt.Fprintf(h, "%d|%d|%d|%d|", t.ID, t.Trav, t.Oper, t.InOut)
		for _, ref := range [...]query.TermRef{t.Src, t.First, t.Second} {
			fmt.Fprintf(h, "%d:%q:%d|", ref.ID, ref.Name, ref.Flags)
		}
		fmt.Fprintf(h, ";")
	}
	fmt.Fprintf(h, "EXPR:%s;", desc.Expr)
	fmt.Fprintf(h, "CACHE:%d;", desc.CacheKind)
	fmt.Fprintf(h, "GROUP:%d:%v;", desc.GroupBy.ID, desc.GroupBy.Desc)
	fmt.Fprintf(h, "OPTIONS:%d;", opts.DefaultCacheKind)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *PlanCache) evictExpired() {
	now := time.Now()
	for key, cached := range c.cache {
		if now.Sub(cached.timestamp) > c.ttl {
			delete(c.cache, key)
		}
	}
}

func (c *PlanCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, cached := range c.cache {
		if oldestKey == "" || cached.timestamp.Before(oldest) {
			oldestKey = key
			oldest = cached.timestamp
		}
	}
	if oldestKey != "" {
		delete(c.cache, oldestKey)
	}
}
