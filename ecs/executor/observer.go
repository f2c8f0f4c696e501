package executor

import (
	"errors"
	"time"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/annotations"
	"github.com/wbrown/janus-ecs/ecs/fields"
	"github.com/wbrown/janus-ecs/ecs/planner"
	"github.com/wbrown/janus-ecs/ecs/query"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

// ObserverOptions configures an observer
type ObserverOptions struct {
	Options
	// Events the observer reacts to. Defaults to OnAdd.
	Events []storage.Event
	// YieldExisting calls the observer once for every entity that already
	// matches when it is built, reported as the first event.
	YieldExisting bool
	// Ctx is handed to every call
	Ctx any
}

// Trigger describes the event an observer is called for
type Trigger struct {
	Event storage.Event
	// ID is the id the event was applied for
	ID  ecs.Id
	Ctx any
	// Iter is positioned on the table of the entity, Row is its row
	Iter *Iter
	Row  int
}

// ObserverFunc is called with the typed fields of the entity an event was
// applied to
type ObserverFunc func(tr *Trigger, e ecs.Entity, t *fields.Tuple)

// Observer is a query whose callback runs when a storage event is applied
// to an entity matching it. Terms on $this that are not negated or filters
// trigger the observer; the entity must match all terms.
type Observer struct {
	q        *Query
	fn       ObserverFunc
	opts     ObserverOptions
	triggers []ecs.Id
	handles  []storage.ObserverHandle
	calls    int
	errs     []error
}

// NewObserver starts an observer with typed fields. fn is registered when
// the builder is built.
func NewObserver(w *storage.World, opts ObserverOptions, fn ObserverFunc, specs ...fields.Spec) *query.Builder[*Observer] {
	return newBuilder(w, opts.Options, specs, func(q *Query) (*Observer, error) {
		o, err := newObserver(q, opts, fn)
		if err != nil {
			q.Close()
			reportFailure(w, &query.Desc{Name: q.plan.Name, Terms: q.plan.Terms}, err)
			return nil, err
		}
		return o, nil
	})
}

func newObserver(q *Query, opts ObserverOptions, fn ObserverFunc) (*Observer, error) {
	if fn == nil {
		return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, -1, "observer has no callback")
	}
	if len(opts.Events) == 0 {
		opts.Events = []storage.Event{storage.OnAdd}
	}
	o := &Observer{q: q, fn: fn, opts: opts}
	for _, t := range q.plan.Terms {
		if triggers(t) {
			o.triggers = append(o.triggers, t.ID)
		}
	}
	if len(o.triggers) == 0 {
		return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, -1, "observer has no triggering $this term")
	}

	if opts.YieldExisting {
		o.yieldExisting()
	}
	for _, ev := range opts.Events {
		for k, id := range o.triggers {
			o.handles = append(o.handles, q.world.Observe(ev, id, o.notify(ev, k)))
		}
	}
	return o, nil
}

// triggers reports whether events on the term's id notify the observer
func triggers(t query.Term) bool {
	if !t.Src.IsThis() || (t.Src.Traverses() && t.Src.Flags&query.RefSelf == 0) {
		return false
	}
	if t.InOut == query.Filter {
		return false
	}
	switch t.Oper {
	case query.And, query.Or, query.Optional:
		return true
	}
	return false
}

// notify returns the storage callback of trigger k. An id matching an
// earlier trigger is handled by that trigger's callback.
func (o *Observer) notify(ev storage.Event, k int) storage.ObserverFunc {
	return func(w *storage.World, e ecs.Entity, id ecs.Id) {
		for _, prev := range o.triggers[:k] {
			if prev.Matches(id) {
				return
			}
		}
		tbl, row, ok := w.Location(e)
		if !ok {
			return
		}
		if m := o.match(tbl, id); m != nil {
			o.invoke(ev, id, m, row)
		}
	}
}

// match finds the match of tbl, preferring one that matched id
func (o *Observer) match(tbl *storage.Table, id ecs.Id) *planner.Match {
	var first *planner.Match
	for _, m := range o.q.cache.Matches(nil) {
		if m.Table != tbl {
			continue
		}
		for i := 0; i < o.q.plan.FieldCount; i++ {
			if m.IDs[i] == id {
				return m
			}
		}
		if first == nil {
			first = m
		}
	}
	return first
}

func (o *Observer) invoke(ev storage.Event, id ecs.Id, m *planner.Match, row int) {
	start := time.Now()
	it := &Iter{q: o.q, world: o.q.world, matches: []*planner.Match{m}, pos: -1}
	if !it.Next() {
		return
	}
	ptrs := fields.NewPointers(o.q.specs)
	it.path = ptrs.Resolve(it)
	var tuple fields.Tuple
	ptrs.Row(it, row, &tuple)

	tr := &Trigger{Event: ev, ID: id, Ctx: o.opts.Ctx, Iter: it, Row: row}
	e := it.Entity(row)
	if err := runDeferred(o.q.world, func() { o.fn(tr, e, &tuple) }); err != nil {
		o.errs = append(o.errs, err)
	}
	o.calls++

	if col := o.q.world.Collector(); col.Enabled() {
		col.AddTiming(annotations.ObserverTriggered, start, map[string]any{
			"query.id": o.q.id.String(),
			"event":    ev.String(),
			"id":       o.q.world.IDString(id),
			"entity":   o.q.world.Name(e),
		})
	}
}

// yieldExisting reports the entities matching at build time. Commands
// issued by the callback are applied once all of them were reported.
func (o *Observer) yieldExisting() {
	ev := o.opts.Events[0]
	w := o.q.world
	w.DeferBegin()
	for _, m := range o.q.cache.Matches(nil) {
		if m.Table == nil {
			continue
		}
		id := o.triggerID(m)
		for row := 0; row < m.Table.Count(); row++ {
			o.invoke(ev, id, m, row)
		}
	}
	if err := w.DeferEnd(); err != nil {
		o.errs = append(o.errs, err)
	}
}

// triggerID returns the id matched by the first trigger term
func (o *Observer) triggerID(m *planner.Match) ecs.Id {
	for _, t := range o.q.plan.Terms {
		if triggers(t) && m.Set&(1<<uint(t.Field)) != 0 {
			return m.IDs[t.Field]
		}
	}
	return o.triggers[0]
}

// Query returns the query of the observer
func (o *Observer) Query() *Query {
	return o.q
}

// Events returns the events the observer reacts to
func (o *Observer) Events() []storage.Event {
	return o.opts.Events
}

// Calls returns how often the callback ran
func (o *Observer) Calls() int {
	return o.calls
}

// Err returns the replay errors of commands issued by the callback and
// applied when it returned
func (o *Observer) Err() error {
	return errors.Join(o.errs...)
}

// Close unregisters the observer and closes its query
func (o *Observer) Close() {
	for _, h := range o.handles {
		o.q.world.Unobserve(h)
	}
	o.handles = nil
	o.q.Close()
}
