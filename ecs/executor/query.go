// Package executor turns compiled plans into iterable queries.
//
// A Query binds a list of typed field specs (package fields) to a compiled
// plan (package planner). Iteration walks the matched tables, resolves the
// field pointers once per table and materializes one tuple per row.
// Iteration runs deferred: mutations made from row callbacks are queued and
// applied when the outermost iteration ends.
//
// File organization:
//   - query.go: Query construction and lifecycle
//   - iterable.go: Iterable with variables and group filter, each/run drivers
//   - iter.go: Iter, the batch view of one matched table
//   - observer.go: observers, queries notified when storage events apply
//   - table_formatter.go: markdown rendering of query results
package executor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/annotations"
	"github.com/wbrown/janus-ecs/ecs/fields"
	"github.com/wbrown/janus-ecs/ecs/planner"
	"github.com/wbrown/janus-ecs/ecs/query"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

// Query is a compiled query bound to a world
type Query struct {
	id      uuid.UUID
	world   *storage.World
	plan    *planner.Plan
	cache   *planner.QueryCache
	specs   []fields.Spec
	options Options
	closed  bool
}

// New starts a query with typed fields. The specs become the first terms of
// the query, in order; further terms can be added through the builder.
func New(w *storage.World, specs ...fields.Spec) *query.Builder[*Query] {
	return NewWithOptions(w, Options{}, specs...)
}

// NewWithOptions is New with explicit options
func NewWithOptions(w *storage.World, opts Options, specs ...fields.Spec) *query.Builder[*Query] {
	return newBuilder(w, opts, specs, func(q *Query) (*Query, error) { return q, nil })
}

// newBuilder starts a builder whose compiled query is handed to finish
func newBuilder[Q any](w *storage.World, opts Options, specs []fields.Spec, finish func(*Query) (Q, error)) *query.Builder[Q] {
	pl := planner.NewPlanner(w, opts.Planner)
	b := query.NewBuilder(func(desc *query.Desc) (Q, error) {
		q, err := compile(w, pl, desc, specs, opts)
		if err != nil {
			var zero Q
			return zero, err
		}
		return finish(q)
	})
	terms, err := fields.Populate(w, specs)
	if err != nil {
		reportFailure(w, &query.Desc{}, err)
		return b.Fail(err)
	}
	for _, t := range terms {
		b.AddTerm(t)
	}
	return b
}

// Parse builds an untyped query from an expression
func Parse(w *storage.World, expr string) (*Query, error) {
	return New(w).Expr(expr).Build()
}

func compile(w *storage.World, pl *planner.Planner, desc *query.Desc, specs []fields.Spec, opts Options) (*Query, error) {
	start := time.Now()
	plan, err := pl.Compile(desc)
	if err != nil {
		reportFailure(w, desc, err)
		return nil, err
	}
	q := &Query{
		id:      uuid.New(),
		world:   w,
		plan:    plan,
		cache:   planner.NewQueryCache(w, plan),
		specs:   specs,
		options: opts,
	}
	if col := w.Collector(); col.Enabled() {
		col.AddTiming(annotations.QueryBuilt, start, map[string]any{
			"query.id": q.id.String(),
			"name":     plan.Name,
			"query":    plan.String(),
			"fields":   plan.FieldCount,
			"cached":   plan.Cached,
		})
	}
	return q, nil
}

func reportFailure(w *storage.World, desc *query.Desc, err error) {
	if col := w.Collector(); col.Enabled() {
		col.Add(annotations.Event{
			Name:  annotations.QueryBuildFailed,
			Start: time.Now(),
			End:   time.Now(),
			Data: map[string]any{
				"query": desc.String(),
				"error": err,
			},
		})
	}
}

// ID returns the trace id of the query, carried on its annotation events
func (q *Query) ID() uuid.UUID {
	return q.id
}

// World returns the world the query was built for
func (q *Query) World() *storage.World {
	return q.world
}

// Plan returns the compiled plan
func (q *Query) Plan() *planner.Plan {
	return q.plan
}

func (q *Query) String() string {
	return q.plan.String()
}

// Term returns term i of the compiled query
func (q *Query) Term(i int) query.Term {
	return q.plan.Terms[i]
}

// TermCount returns the number of terms
func (q *Query) TermCount() int {
	return len(q.plan.Terms)
}

// FieldCount returns the number of fields. Terms of an Or chain share a
// field.
func (q *Query) FieldCount() int {
	return q.plan.FieldCount
}

// FindVar returns the index of a query variable, or -1 and false
func (q *Query) FindVar(name string) (int, bool) {
	return q.plan.FindVar(name)
}

// Iter returns an iterable to bind variables or a group before iterating
func (q *Query) Iter() *Iterable {
	return &Iterable{q: q, vars: make([]ecs.Entity, len(q.plan.Vars))}
}

// EachEntity calls fn for every matched entity with its materialized fields
func (q *Query) EachEntity(fn func(e ecs.Entity, t *fields.Tuple)) error {
	return q.Iter().EachEntity(fn)
}

// EachIter calls fn for every matched row with its iterator
func (q *Query) EachIter(fn func(it *Iter, row int, t *fields.Tuple)) error {
	return q.Iter().EachIter(fn)
}

// Run calls fn once with an unpositioned iterator; fn advances it with Next
func (q *Query) Run(fn func(it *Iter)) error {
	return q.Iter().Run(fn)
}

// Count returns the number of matched entities
func (q *Query) Count() int {
	return q.Iter().Count()
}

// IsTrue reports whether the query matches anything
func (q *Query) IsTrue() bool {
	return q.Iter().IsTrue()
}

// GroupContext returns the value returned by the group create callback
func (q *Query) GroupContext(group uint64) (any, bool) {
	return q.cache.GroupContext(group)
}

// Groups returns the populated groups in iteration order. Groups are
// updated when the query is iterated.
func (q *Query) Groups() []uint64 {
	return q.cache.Groups()
}

// Cache returns the match cache of the query
func (q *Query) Cache() *planner.QueryCache {
	return q.cache
}

// Close releases the query. Remaining groups are deleted.
func (q *Query) Close() {
	if q.closed {
		return
	}
	q.closed = true
	q.cache.Close()
	if col := q.world.Collector(); col.Enabled() {
		col.AddTiming(annotations.QueryClosed, time.Now(), map[string]any{
			"query.id": q.id.String(),
		})
	}
}

func (q *Query) checkOpen() error {
	if q.closed {
		return fmt.Errorf("query %s: closed: %w", q.id, ecs.ErrInvalidOperation)
	}
	return nil
}
