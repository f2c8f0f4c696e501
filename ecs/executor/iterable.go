package executor

import (
	"fmt"
	"time"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/annotations"
	"github.com/wbrown/janus-ecs/ecs/fields"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

// Iterable is a query with bound variables and an optional group filter
type Iterable struct {
	q        *Query
	vars     []ecs.Entity
	group    uint64
	hasGroup bool
	err      error
}

// SetVar binds a query variable by name. The query then only matches
// results where the variable has value e.
func (it *Iterable) SetVar(name string, e ecs.Entity) *Iterable {
	i, ok := it.q.FindVar(name)
	if !ok {
		it.fail(fmt.Errorf("set variable %q: unknown variable: %w", name, ecs.ErrInvalidParameter))
		return it
	}
	return it.SetVarByIndex(i, e)
}

// SetVarByIndex binds a query variable by index
func (it *Iterable) SetVarByIndex(i int, e ecs.Entity) *Iterable {
	if i <= 0 || i >= len(it.vars) {
		it.fail(fmt.Errorf("set variable %d: index out of range: %w", i, ecs.ErrInvalidParameter))
		return it
	}
	it.vars[i] = e
	return it
}

// SetGroup restricts iteration to the tables of one group
func (it *Iterable) SetGroup(group uint64) *Iterable {
	if !it.q.plan.GroupBy.IsSet() {
		it.fail(fmt.Errorf("set group: query has no group_by: %w", ecs.ErrInvalidOperation))
		return it
	}
	it.group = group
	it.hasGroup = true
	return it
}

func (it *Iterable) fail(err error) {
	if it.err == nil {
		it.err = err
	}
}

// iter creates the iterator over the current matches
func (it *Iterable) iter() (*Iter, error) {
	if it.err != nil {
		return nil, it.err
	}
	if err := it.q.checkOpen(); err != nil {
		return nil, err
	}
	return &Iter{
		q:        it.q,
		world:    it.q.world,
		matches:  it.q.cache.Matches(it.vars),
		pos:      -1,
		group:    it.group,
		hasGroup: it.hasGroup,
	}, nil
}

// EachEntity calls fn for every matched entity. For queries without $this
// terms fn is called once per result with entity 0.
func (it *Iterable) EachEntity(fn func(e ecs.Entity, t *fields.Tuple)) error {
	return it.EachIter(func(i *Iter, row int, t *fields.Tuple) {
		fn(i.Entity(row), t)
	})
}

// EachIter calls fn for every matched row
func (it *Iterable) EachIter(fn func(it *Iter, row int, t *fields.Tuple)) error {
	return it.Run(func(i *Iter) {
		ptrs := fields.NewPointers(i.q.specs)
		var tuple fields.Tuple
		for i.Next() {
			start := time.Now()
			path := ptrs.Resolve(i)
			i.path = path
			for row := 0; row < i.Count(); row++ {
				ptrs.Row(i, row, &tuple)
				fn(i, row, &tuple)
			}
			if col := i.world.Collector(); col.Enabled() {
				col.AddTiming(annotations.BatchResolved, start, map[string]any{
					"query.id": i.q.id.String(),
					"table":    i.tableString(),
					"path":     path.String(),
					"count":    i.Count(),
				})
			}
		}
	})
}

// Run calls fn once with an unpositioned iterator. The world is deferred
// for the duration of fn; queued commands are applied when Run returns and
// replay errors are returned.
func (it *Iterable) Run(fn func(it *Iter)) error {
	iter, err := it.iter()
	if err != nil {
		return err
	}
	start := time.Now()
	w := it.q.world
	err = runDeferred(w, func() { fn(iter) })

	if col := w.Collector(); col.Enabled() {
		col.AddTiming(annotations.QueryIterated, start, map[string]any{
			"query.id": it.q.id.String(),
			"name":     it.q.plan.Name,
			"batches":  iter.batches,
			"rows":     iter.rows,
		})
	}
	return err
}

// runDeferred calls fn inside a deferred scope. The scope is closed and
// queued commands applied also when fn panics.
func runDeferred(w *storage.World, fn func()) (err error) {
	w.DeferBegin()
	defer func() {
		err = w.DeferEnd()
	}()
	fn()
	return nil
}

// Count returns the number of matched entities, or of results for queries
// without $this terms
func (it *Iterable) Count() int {
	iter, err := it.iter()
	if err != nil {
		return 0
	}
	n := 0
	for iter.Next() {
		n += iter.Count()
	}
	return n
}

// IsTrue reports whether the query has at least one result
func (it *Iterable) IsTrue() bool {
	iter, err := it.iter()
	if err != nil {
		return false
	}
	return iter.Next()
}

// Entities returns the matched entities in iteration order
func (it *Iterable) Entities() ([]ecs.Entity, error) {
	var out []ecs.Entity
	err := it.EachEntity(func(e ecs.Entity, _ *fields.Tuple) {
		out = append(out, e)
	})
	return out, err
}
