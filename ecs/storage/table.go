package storage

import (
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/wbrown/janus-ecs/ecs"
)

// Table stores all entities that have exactly the same set of ids
type Table struct {
	id       uint64
	ids      []ecs.Id
	entities []ecs.Entity
	columns  []*column
	// colOf maps every id in the table to its column, -1 for tags and
	// sparse components
	colOf map[ecs.Id]int
}

type column struct {
	id   ecs.Id
	typ  reflect.Type
	data reflect.Value
	// view is data as a []T, refreshed whenever the slice header changes
	view any
}

func (c *column) refresh() {
	c.view = c.data.Interface()
}

// ID returns the table id, unique within a world
func (t *Table) ID() uint64 {
	return t.id
}

// Type returns the sorted ids of the table. The slice must not be modified.
func (t *Table) Type() []ecs.Id {
	return t.ids
}

// Count returns the number of entities in the table
func (t *Table) Count() int {
	return len(t.entities)
}

// Entities returns the entities of the table in row order
func (t *Table) Entities() []ecs.Entity {
	return t.entities
}

// Has reports whether the table type contains id exactly
func (t *Table) Has(id ecs.Id) bool {
	_, ok := t.colOf[id]
	return ok
}

// HasColumn reports whether id is stored in a column of the table
func (t *Table) HasColumn(id ecs.Id) bool {
	ci, ok := t.colOf[id]
	return ok && ci >= 0
}

// Column returns the []T view of the column for id, or nil when id has no
// column in this table
func (t *Table) Column(id ecs.Id) any {
	ci, ok := t.colOf[id]
	if !ok || ci < 0 {
		return nil
	}
	return t.columns[ci].view
}

// ColumnSlice returns a view of the column for id restricted to
// rows [from, to)
func (t *Table) ColumnSlice(id ecs.Id, from, to int) any {
	ci, ok := t.colOf[id]
	if !ok || ci < 0 {
		return nil
	}
	return t.columns[ci].data.Slice(from, to).Interface()
}

// Search returns the first id in the table type matching a wildcard pattern
func (t *Table) Search(pattern ecs.Id) (ecs.Id, bool) {
	if !pattern.IsWildcard() {
		return pattern, t.Has(pattern)
	}
	for _, id := range t.ids {
		if pattern.Matches(id) {
			return id, true
		}
	}
	return 0, false
}

// SearchAll returns every id in the table type matching a pattern
func (t *Table) SearchAll(pattern ecs.Id) []ecs.Id {
	if !pattern.IsWildcard() {
		if t.Has(pattern) {
			return []ecs.Id{pattern}
		}
		return nil
	}
	var out []ecs.Id
	for _, id := range t.ids {
		if pattern.Matches(id) {
			out = append(out, id)
		}
	}
	return out
}

func (t *Table) String() string {
	parts := make([]string, len(t.ids))
	for i, id := range t.ids {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (t *Table) ptr(id ecs.Id, row int) (reflect.Value, bool) {
	ci, ok := t.colOf[id]
	if !ok || ci < 0 {
		return reflect.Value{}, false
	}
	return t.columns[ci].data.Index(row), true
}

func (t *Table) appendRow(e ecs.Entity) int {
	t.entities = append(t.entities, e)
	for _, c := range t.columns {
		c.data = reflect.Append(c.data, reflect.Zero(c.typ))
		c.refresh()
	}
	return len(t.entities) - 1
}

// removeRow swap-removes a row and returns the entity that was moved into
// it, or 0 when the last row was removed
func (t *Table) removeRow(row int) ecs.Entity {
	last := len(t.entities) - 1
	var moved ecs.Entity
	if row != last {
		moved = t.entities[last]
		t.entities[row] = moved
		for _, c := range t.columns {
			c.data.Index(row).Set(c.data.Index(last))
		}
	}
	t.entities = t.entities[:last]
	for _, c := range t.columns {
		c.data.Index(last).Set(reflect.Zero(c.typ))
		c.data = c.data.Slice(0, last)
		c.refresh()
	}
	return moved
}

func tableKey(ids []ecs.Id) string {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(strconv.FormatUint(uint64(id), 16))
		sb.WriteByte(',')
	}
	return sb.String()
}

// tableFor returns the table for a sorted id set, creating it if needed
func (w *World) tableFor(ids []ecs.Id) *Table {
	key := tableKey(ids)
	if t, ok := w.tableIndex[key]; ok {
		return t
	}
	t := &Table{
		id:    uint64(len(w.tables)),
		ids:   ids,
		colOf: make(map[ecs.Id]int, len(ids)),
	}
	for _, id := range ids {
		w.markInUse(id)
		typ, ok := w.TypeOf(id)
		if !ok || w.IsSparse(id) {
			t.colOf[id] = -1
			continue
		}
		c := &column{
			id:   id,
			typ:  typ,
			data: reflect.MakeSlice(reflect.SliceOf(typ), 0, w.opts.ColumnCapacity),
		}
		c.refresh()
		t.colOf[id] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	w.tables = append(w.tables, t)
	w.tableIndex[key] = t
	w.version++
	return t
}

func withID(ids []ecs.Id, id ecs.Id) []ecs.Id {
	out := make([]ecs.Id, 0, len(ids)+1)
	out = append(out, ids...)
	out = append(out, id)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func withoutID(ids []ecs.Id, id ecs.Id) []ecs.Id {
	out := make([]ecs.Id, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// move moves e from its current table to dst, copying shared column values
func (w *World) move(e ecs.Entity, rec *record, dst *Table) {
	src := rec.table
	if src == dst {
		return
	}
	row := dst.appendRow(e)
	for _, c := range dst.columns {
		if from, ok := src.ptr(c.id, rec.row); ok {
			c.data.Index(row).Set(from)
		}
	}
	if moved := src.removeRow(rec.row); moved != 0 {
		w.records[moved].row = rec.row
	}
	rec.table, rec.row = dst, row
	w.version++
}
