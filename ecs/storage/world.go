// Package storage is an in-memory archetype store. Entities sharing the
// same set of ids live in the same Table, one reflect-backed column per
// data component. It hosts the query layer: tables are matched by the
// planner and iterated through typed slice views.
package storage

import (
	"fmt"
	"reflect"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/annotations"
)

// World owns all entities, tables and the deferred command stage
type World struct {
	opts      Options
	collector *annotations.Collector

	lastID     ecs.Entity
	records    map[ecs.Entity]*record
	names      map[string]ecs.Entity
	entityName map[ecs.Entity]string

	types map[reflect.Type]ecs.Entity
	info  map[ecs.Entity]*TypeInfo

	root       *Table
	tables     []*Table
	tableIndex map[string]*Table
	version    uint64
	registry   uint64

	sparse       map[ecs.Id]map[ecs.Entity]reflect.Value
	stage        *Stage
	observers    []observer
	lastObserver ObserverHandle
}

type record struct {
	table *Table
	row   int
}

// TypeInfo describes a registered component or tag
type TypeInfo struct {
	ID ecs.Entity
	// Type is nil for tags
	Type reflect.Type
	// Sparse components are stored outside table columns and fetched per row
	Sparse bool
	// Inheritable components are matched through IsA by default
	Inheritable bool

	inUse bool
}

// IsTag reports whether the id carries no data
func (ti *TypeInfo) IsTag() bool {
	return ti.Type == nil
}

// NewWorld creates an empty world with the builtin entities
func NewWorld(opts Options) *World {
	if opts.ColumnCapacity <= 0 {
		opts.ColumnCapacity = DefaultOptions().ColumnCapacity
	}
	w := &World{
		opts:       opts,
		collector:  annotations.NewCollector(opts.Handler),
		records:    make(map[ecs.Entity]*record),
		names:      make(map[string]ecs.Entity),
		entityName: make(map[ecs.Entity]string),
		types:      make(map[reflect.Type]ecs.Entity),
		info:       make(map[ecs.Entity]*TypeInfo),
		tableIndex: make(map[string]*Table),
		sparse:     make(map[ecs.Id]map[ecs.Entity]reflect.Value),
		stage:      NewStage(),
	}
	w.root = w.tableFor(nil)
	for e := ecs.Wildcard; e <= ecs.Prefab; e++ {
		w.place(e)
		name, _ := ecs.BuiltinName(e)
		w.names[name] = e
		w.entityName[e] = name
	}
	w.lastID = ecs.FirstUserEntity - 1
	return w
}

// Collector returns the world's annotation collector
func (w *World) Collector() *annotations.Collector {
	return w.collector
}

// Stage returns the deferred command stage of the world
func (w *World) Stage() *Stage {
	return w.stage
}

// StructureVersion changes whenever a table is created or an entity moves
// between tables
func (w *World) StructureVersion() uint64 {
	return w.version
}

// RegistryVersion changes whenever a name is bound or released, a type is
// registered or a trait is set
func (w *World) RegistryVersion() uint64 {
	return w.registry
}

// Tables returns all tables in creation order. The slice must not be modified.
func (w *World) Tables() []*Table {
	return w.tables
}

func (w *World) place(e ecs.Entity) {
	row := w.root.appendRow(e)
	w.records[e] = &record{table: w.root, row: row}
	w.version++
}

// New creates an empty entity. Ids are handed out immediately, also while
// deferred.
func (w *World) New() ecs.Entity {
	w.lastID++
	w.place(w.lastID)
	return w.lastID
}

// NewNamed creates a named entity, or returns the entity already using name
func (w *World) NewNamed(name string) ecs.Entity {
	if e, ok := w.names[name]; ok {
		return e
	}
	e := w.New()
	w.names[name] = e
	w.entityName[e] = name
	w.registry++
	return e
}

// Lookup resolves an entity by name
func (w *World) Lookup(name string) (ecs.Entity, bool) {
	e, ok := w.names[name]
	return e, ok
}

// Name returns the name of e, or its numeric form
func (w *World) Name(e ecs.Entity) string {
	if name, ok := w.entityName[e]; ok {
		return name
	}
	return e.String()
}

// IDString formats an id using entity names
func (w *World) IDString(id ecs.Id) string {
	if id.IsPair() {
		return fmt.Sprintf("(%s, %s)", w.Name(id.First()), w.Name(id.Second()))
	}
	return w.Name(id.Entity())
}

// IsAlive reports whether e exists
func (w *World) IsAlive(e ecs.Entity) bool {
	_, ok := w.records[e]
	return ok
}

// Count returns the number of alive entities, builtins included
func (w *World) Count() int {
	return len(w.records)
}

// Location returns the table and row of e
func (w *World) Location(e ecs.Entity) (*Table, int, bool) {
	rec, ok := w.records[e]
	if !ok {
		return nil, 0, false
	}
	return rec.table, rec.row, true
}

// ComponentIDOf returns the component id of a Go type, registering it on
// first use. Zero-size types are registered as tags.
func (w *World) ComponentIDOf(t reflect.Type) ecs.Entity {
	if id, ok := w.types[t]; ok {
		return id
	}
	id := w.New()
	ti := &TypeInfo{ID: id}
	if t.Size() != 0 {
		ti.Type = t
	}
	w.types[t] = id
	w.info[id] = ti
	w.registry++
	if name := t.Name(); name != "" {
		if _, taken := w.names[name]; !taken {
			w.names[name] = id
			w.entityName[id] = name
		}
	}
	return id
}

// ComponentID returns the component id of T, registering it on first use
func ComponentID[T any](w *World) ecs.Entity {
	return w.ComponentIDOf(reflect.TypeOf((*T)(nil)).Elem())
}

// Info returns the type info of a component or tag entity
func (w *World) Info(e ecs.Entity) (*TypeInfo, bool) {
	ti, ok := w.info[e]
	return ti, ok
}

// TypeOf returns the data type of an id. Pairs take the type of the first
// element, or of the second when the first is a tag.
func (w *World) TypeOf(id ecs.Id) (reflect.Type, bool) {
	if !id.IsPair() {
		if ti, ok := w.info[id.Entity()]; ok && ti.Type != nil {
			return ti.Type, true
		}
		return nil, false
	}
	if id.IsWildcard() {
		return nil, false
	}
	if ti, ok := w.info[id.First()]; ok && ti.Type != nil {
		return ti.Type, true
	}
	if ti, ok := w.info[id.Second()]; ok && ti.Type != nil {
		return ti.Type, true
	}
	return nil, false
}

func (w *World) traitInfo(e ecs.Entity) (*TypeInfo, error) {
	if w.stage.readonly {
		return nil, fmt.Errorf("set trait on %s: %w", w.Name(e), ecs.ErrReadonly)
	}
	if !w.IsAlive(e) {
		return nil, fmt.Errorf("set trait on %s: %w", e, ecs.ErrNotAlive)
	}
	ti, ok := w.info[e]
	if !ok {
		ti = &TypeInfo{ID: e}
		w.info[e] = ti
	}
	if ti.inUse {
		return nil, fmt.Errorf("set trait on %s: component already in use: %w", w.Name(e), ecs.ErrInvalidOperation)
	}
	return ti, nil
}

// SetSparse stores e's values outside table columns. Must be called
// before e is added to any entity.
func (w *World) SetSparse(e ecs.Entity) error {
	ti, err := w.traitInfo(e)
	if err != nil {
		return err
	}
	ti.Sparse = true
	w.registry++
	return nil
}

// SetInheritable makes e match through IsA by default. Must be called
// before e is added to any entity.
func (w *World) SetInheritable(e ecs.Entity) error {
	ti, err := w.traitInfo(e)
	if err != nil {
		return err
	}
	ti.Inheritable = true
	w.registry++
	return nil
}

// IsSparse reports whether values of id are stored outside table columns
func (w *World) IsSparse(id ecs.Id) bool {
	ti, ok := w.info[id.First()]
	return ok && ti.Sparse
}

// IsInheritable reports whether id is matched through IsA by default
func (w *World) IsInheritable(id ecs.Id) bool {
	ti, ok := w.info[id.First()]
	return ok && ti.Inheritable
}

func (w *World) markInUse(id ecs.Id) {
	if ti, ok := w.info[id.First()]; ok {
		ti.inUse = true
	}
	if id.IsPair() {
		if ti, ok := w.info[id.Second()]; ok {
			ti.inUse = true
		}
	}
}
