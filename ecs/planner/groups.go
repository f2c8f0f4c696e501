package planner

import (
	"sort"
	"time"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/annotations"
	"github.com/wbrown/janus-ecs/ecs/query"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

// DefaultGroupBy returns the target of the first (rel, *) pair in the table
// type, or 0 when the table has none
func DefaultGroupBy(w *storage.World, t *storage.Table, id ecs.Id, ctx any) uint64 {
	rel := id.First()
	if !id.IsPair() {
		rel = id.Entity()
	}
	match, ok := t.Search(ecs.Pair(rel, ecs.Wildcard))
	if !ok {
		return 0
	}
	return uint64(match.Second())
}

// sortMatches orders matches by group key, then by cascade depth. The sort
// is stable so tables keep creation order within a group.
func sortMatches(m []*Match, plan *Plan) {
	grouped := plan.GroupBy.IsSet()
	cascade := plan.Cascade >= 0
	if !grouped && !cascade {
		return
	}
	groupDesc := plan.GroupBy.Desc
	depthDesc := cascade && plan.Terms[plan.Cascade].Src.Flags&query.RefDesc != 0

	sort.SliceStable(m, func(i, j int) bool {
		a, b := m[i], m[j]
		if grouped && a.Group != b.Group {
			if groupDesc {
				return a.Group > b.Group
			}
			return a.Group < b.Group
		}
		if cascade && a.Depth != b.Depth {
			if depthDesc {
				return a.Depth > b.Depth
			}
			return a.Depth < b.Depth
		}
		return false
	})
}

type group struct {
	id  uint64
	ctx any
}

// groupEngine computes group keys and runs the group lifecycle callbacks
type groupEngine struct {
	world  *storage.World
	cfg    query.GroupBy
	groups map[uint64]*group
}

func newGroupEngine(w *storage.World, cfg query.GroupBy) *groupEngine {
	if cfg.Fn == nil {
		cfg.Fn = DefaultGroupBy
	}
	return &groupEngine{world: w, cfg: cfg, groups: make(map[uint64]*group)}
}

func (g *groupEngine) assign(m []*Match) {
	for _, match := range m {
		if match.Table == nil {
			match.Group = 0
			continue
		}
		match.Group = g.cfg.Fn(g.world, match.Table, g.cfg.ID.ID(), g.cfg.Ctx)
	}
}

// sync creates groups that became populated and deletes groups that became
// empty. Callbacks run in ascending key order.
func (g *groupEngine) sync(m []*Match) {
	populated := make(map[uint64]bool)
	for _, match := range m {
		if match.Count() > 0 {
			populated[match.Group] = true
		}
	}

	var gone []uint64
	for id := range g.groups {
		if !populated[id] {
			gone = append(gone, id)
		}
	}
	sortKeys(gone)
	for _, id := range gone {
		g.delete(id)
	}

	var fresh []uint64
	for id := range populated {
		if _, ok := g.groups[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	sortKeys(fresh)
	for _, id := range fresh {
		g.create(id)
	}
}

func (g *groupEngine) create(id uint64) {
	start := time.Now()
	grp := &group{id: id}
	if g.cfg.OnCreate != nil {
		grp.ctx = g.cfg.OnCreate(g.world, id, g.cfg.Ctx)
	}
	g.groups[id] = grp
	if col := g.world.Collector(); col.Enabled() {
		col.AddTiming(annotations.GroupCreated, start, map[string]any{"group": id})
	}
}

func (g *groupEngine) delete(id uint64) {
	grp, ok := g.groups[id]
	if !ok {
		return
	}
	start := time.Now()
	delete(g.groups, id)
	if g.cfg.OnDelete != nil {
		g.cfg.OnDelete(g.world, id, grp.ctx, g.cfg.Ctx)
	}
	if col := g.world.Collector(); col.Enabled() {
		col.AddTiming(annotations.GroupDeleted, start, map[string]any{"group": id})
	}
}

func (g *groupEngine) context(id uint64) (any, bool) {
	grp, ok := g.groups[id]
	if !ok {
		return nil, false
	}
	return grp.ctx, true
}

func (g *groupEngine) ids(desc bool) []uint64 {
	out := make([]uint64, 0, len(g.groups))
	for id := range g.groups {
		out = append(out, id)
	}
	sortKeys(out)
	if desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func (g *groupEngine) close() {
	for _, id := range g.ids(false) {
		g.delete(id)
	}
}

func sortKeys(keys []uint64) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}
