package executor

import (
	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/fields"
	"github.com/wbrown/janus-ecs/ecs/planner"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

// Iter walks the matches of a query one table at a time. It implements
// fields.Batch for the current table.
type Iter struct {
	q       *Query
	world   *storage.World
	matches []*planner.Match
	pos     int
	m       *planner.Match

	group    uint64
	hasGroup bool

	ref, row uint32
	path     fields.Path

	batches, rows int
}

var _ fields.Batch = (*Iter)(nil)

// Next advances to the next non-empty matched table
func (it *Iter) Next() bool {
	for it.pos+1 < len(it.matches) {
		it.pos++
		m := it.matches[it.pos]
		if it.hasGroup && m.Group != it.group {
			continue
		}
		if m.Table != nil && m.Table.Count() == 0 {
			continue
		}
		it.m = m
		it.classify()
		it.batches++
		it.rows += it.Count()
		return true
	}
	it.m = nil
	it.ref, it.row = 0, 0
	return false
}

// classify computes the shared and per row field masks of the match
func (it *Iter) classify() {
	it.ref, it.row = 0, 0
	for i := 0; i < it.q.plan.FieldCount; i++ {
		bit := uint32(1) << uint(i)
		if it.m.Set&bit == 0 {
			continue
		}
		if it.m.Sources[i] != 0 {
			it.ref |= bit
		}
		if id := it.m.IDs[i]; it.world.IsSparse(id) && it.hasData(id) {
			it.row |= bit
			it.ref |= bit
		}
	}
}

func (it *Iter) hasData(id ecs.Id) bool {
	_, ok := it.world.TypeOf(id)
	return ok
}

// Count returns the number of rows of the current table. Results of
// queries without $this have one row.
func (it *Iter) Count() int {
	if it.m == nil {
		return 0
	}
	if it.m.Table == nil {
		return 1
	}
	return it.m.Table.Count()
}

// RefFields has bit i set when field i is not owned by $this
func (it *Iter) RefFields() uint32 {
	return it.ref
}

// UpFields has bit i set when field i was matched through traversal
func (it *Iter) UpFields() uint32 {
	if it.m == nil {
		return 0
	}
	return it.m.Up
}

// RowFields has bit i set when field i is fetched per row
func (it *Iter) RowFields() uint32 {
	return it.row
}

// IsSet reports whether field i matched
func (it *Iter) IsSet(i int) bool {
	if it.m == nil {
		return false
	}
	return it.m.Set&(1<<uint(i)) != 0
}

// IsSelf reports whether field i is owned by the iterated entities
func (it *Iter) IsSelf(i int) bool {
	return it.IsSet(i) && it.m.Sources[i] == 0
}

// Src returns the source of field i, 0 for $this
func (it *Iter) Src(i int) ecs.Entity {
	if it.m == nil {
		return 0
	}
	return it.m.Sources[i]
}

// ID returns the id matched by field i
func (it *Iter) ID(i int) ecs.Id {
	if it.m == nil {
		return 0
	}
	return it.m.IDs[i]
}

// Column returns field i as a []T view. Shared fields have one element.
func (it *Iter) Column(i int) any {
	if !it.IsSet(i) {
		return nil
	}
	id := it.m.IDs[i]
	if it.row&(1<<uint(i)) != 0 {
		return nil
	}
	if src := it.m.Sources[i]; src != 0 {
		t, row, ok := it.world.Location(src)
		if !ok {
			return nil
		}
		return t.ColumnSlice(id, row, row+1)
	}
	if it.m.Table == nil {
		return nil
	}
	return it.m.Table.Column(id)
}

// FieldAt returns a *T to field i for row, or nil
func (it *Iter) FieldAt(i, row int) any {
	if !it.IsSet(i) {
		return nil
	}
	src := it.m.Sources[i]
	if src == 0 {
		src = it.Entity(row)
	}
	if src == 0 {
		return nil
	}
	return it.world.FieldPtr(src, it.m.IDs[i])
}

// Entity returns the entity at row, or 0 for queries without $this
func (it *Iter) Entity(row int) ecs.Entity {
	if it.m == nil || it.m.Table == nil {
		return 0
	}
	return it.m.Table.Entities()[row]
}

// Entities returns the entities of the current table
func (it *Iter) Entities() []ecs.Entity {
	if it.m == nil || it.m.Table == nil {
		return nil
	}
	return it.m.Table.Entities()
}

// Table returns the current table, nil for queries without $this
func (it *Iter) Table() *storage.Table {
	if it.m == nil {
		return nil
	}
	return it.m.Table
}

// GroupID returns the group of the current table
func (it *Iter) GroupID() uint64 {
	if it.m == nil {
		return 0
	}
	return it.m.Group
}

// GetVar returns the value of variable i. $this (index 0) has no single
// value; use Entity.
func (it *Iter) GetVar(i int) ecs.Entity {
	if it.m == nil || i <= 0 || i >= len(it.m.Vars) {
		return 0
	}
	return it.m.Vars[i]
}

// GetVarByName returns the value of a named variable
func (it *Iter) GetVarByName(name string) ecs.Entity {
	i, ok := it.q.FindVar(name)
	if !ok {
		return 0
	}
	return it.GetVar(i)
}

// World returns the iterated world
func (it *Iter) World() *storage.World {
	return it.world
}

// Query returns the iterated query
func (it *Iter) Query() *Query {
	return it.q
}

// Path returns the materialization path of the current table. It is set
// by EachIter and EachEntity.
func (it *Iter) Path() fields.Path {
	return it.path
}

func (it *Iter) tableString() string {
	if it.m == nil || it.m.Table == nil {
		return "[]"
	}
	return it.m.Table.String()
}

// Field returns field i of the current table as a []T. Shared fields have
// one element; unset and tag fields return nil.
func Field[T any](it *Iter, i int) []T {
	s, _ := it.Column(i).([]T)
	return s
}

// FieldAt returns field i of row as a *T, or nil
func FieldAt[T any](it *Iter, i, row int) *T {
	p, _ := it.FieldAt(i, row).(*T)
	return p
}
