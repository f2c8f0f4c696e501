package storage

import (
	"fmt"
	"reflect"

	"github.com/wbrown/janus-ecs/ecs"
)

func (w *World) checkID(id ecs.Id) error {
	if id == 0 {
		return fmt.Errorf("id is zero: %w", ecs.ErrInvalidParameter)
	}
	if id.IsWildcard() {
		return fmt.Errorf("cannot add wildcard id %s: %w", id, ecs.ErrInvalidParameter)
	}
	if !w.IsAlive(id.First()) {
		return fmt.Errorf("id %s: %w", id, ecs.ErrNotAlive)
	}
	if id.IsPair() && !w.IsAlive(id.Second()) {
		return fmt.Errorf("id %s: %w", id, ecs.ErrNotAlive)
	}
	return nil
}

// Add adds id to e. While deferred the operation is queued.
func (w *World) Add(e ecs.Entity, id ecs.Id) error {
	if err := w.checkID(id); err != nil {
		return err
	}
	if w.stage.Deferring() {
		w.stage.Enqueue(Command{Kind: CmdAdd, Entity: e, ID: id})
		return nil
	}
	return w.add(e, id)
}

// AddPair adds the pair (rel, tgt) to e
func (w *World) AddPair(e, rel, tgt ecs.Entity) error {
	return w.Add(e, ecs.Pair(rel, tgt))
}

// Remove removes id from e. While deferred the operation is queued.
func (w *World) Remove(e ecs.Entity, id ecs.Id) error {
	if id == 0 {
		return fmt.Errorf("id is zero: %w", ecs.ErrInvalidParameter)
	}
	if w.stage.Deferring() {
		w.stage.Enqueue(Command{Kind: CmdRemove, Entity: e, ID: id})
		return nil
	}
	return w.remove(e, id)
}

// RemovePair removes the pair (rel, tgt) from e
func (w *World) RemovePair(e, rel, tgt ecs.Entity) error {
	return w.Remove(e, ecs.Pair(rel, tgt))
}

// SetValue assigns a value to id on e, adding id if needed. The value's
// type must be the data type of id.
func (w *World) SetValue(e ecs.Entity, id ecs.Id, v reflect.Value) error {
	if err := w.checkID(id); err != nil {
		return err
	}
	typ, ok := w.TypeOf(id)
	if !ok {
		return fmt.Errorf("set %s: not a data component: %w", w.IDString(id), ecs.ErrInvalidParameter)
	}
	if v.Type() != typ {
		return fmt.Errorf("set %s: value of type %s, want %s: %w", w.IDString(id), v.Type(), typ, ecs.ErrInvalidParameter)
	}
	if w.stage.Deferring() {
		cp := reflect.New(typ).Elem()
		cp.Set(v)
		w.stage.Enqueue(Command{Kind: CmdSet, Entity: e, ID: id, Value: cp})
		return nil
	}
	return w.set(e, id, v)
}

// Clear removes all ids from e
func (w *World) Clear(e ecs.Entity) error {
	if w.stage.Deferring() {
		w.stage.Enqueue(Command{Kind: CmdClear, Entity: e})
		return nil
	}
	return w.clear(e)
}

// Delete deletes e. Children of e (ChildOf) are deleted with it and pairs
// targeting e are removed from other entities.
func (w *World) Delete(e ecs.Entity) error {
	if e < ecs.FirstUserEntity {
		return fmt.Errorf("delete builtin %s: %w", e, ecs.ErrInvalidOperation)
	}
	if w.stage.Deferring() {
		w.stage.Enqueue(Command{Kind: CmdDelete, Entity: e})
		return nil
	}
	return w.delete(e)
}

func (w *World) add(e ecs.Entity, id ecs.Id) error {
	rec, ok := w.records[e]
	if !ok {
		return fmt.Errorf("add %s to %s: %w", id, e, ecs.ErrNotAlive)
	}
	if err := w.checkID(id); err != nil {
		return fmt.Errorf("add to %s: %w", e, err)
	}
	if rec.table.Has(id) {
		return nil
	}
	w.move(e, rec, w.tableFor(withID(rec.table.ids, id)))
	if w.IsSparse(id) {
		if typ, ok := w.TypeOf(id); ok {
			slots := w.sparse[id]
			if slots == nil {
				slots = make(map[ecs.Entity]reflect.Value)
				w.sparse[id] = slots
			}
			slots[e] = reflect.New(typ)
		}
	}
	w.emit(OnAdd, e, id)
	return nil
}

func (w *World) set(e ecs.Entity, id ecs.Id, v reflect.Value) error {
	if err := w.add(e, id); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	dst, ok := w.slot(e, id)
	if !ok {
		return fmt.Errorf("set %s on %s: not a data component: %w", w.IDString(id), e, ecs.ErrInvalidParameter)
	}
	dst.Set(v)
	w.emit(OnSet, e, id)
	return nil
}

func (w *World) remove(e ecs.Entity, id ecs.Id) error {
	rec, ok := w.records[e]
	if !ok {
		return fmt.Errorf("remove %s from %s: %w", id, e, ecs.ErrNotAlive)
	}
	if !rec.table.Has(id) {
		return nil
	}
	w.emit(OnRemove, e, id)
	w.move(e, rec, w.tableFor(withoutID(rec.table.ids, id)))
	if slots, ok := w.sparse[id]; ok {
		delete(slots, e)
	}
	return nil
}

func (w *World) clear(e ecs.Entity) error {
	rec, ok := w.records[e]
	if !ok {
		return fmt.Errorf("clear %s: %w", e, ecs.ErrNotAlive)
	}
	ids := append([]ecs.Id(nil), rec.table.ids...)
	for _, id := range ids {
		w.emit(OnRemove, e, id)
	}
	w.move(e, rec, w.root)
	for _, id := range ids {
		if slots, ok := w.sparse[id]; ok {
			delete(slots, e)
		}
	}
	return nil
}

func (w *World) delete(e ecs.Entity) error {
	if _, ok := w.records[e]; !ok {
		return fmt.Errorf("delete %s: %w", e, ecs.ErrNotAlive)
	}
	if err := w.clear(e); err != nil {
		return err
	}
	rec := w.records[e]
	if moved := rec.table.removeRow(rec.row); moved != 0 {
		w.records[moved].row = rec.row
	}
	delete(w.records, e)
	if name, ok := w.entityName[e]; ok {
		delete(w.names, name)
		delete(w.entityName, e)
		w.registry++
	}
	w.version++

	type ref struct {
		e  ecs.Entity
		id ecs.Id
	}
	var refs []ref
	for _, t := range w.tables {
		for _, id := range t.ids {
			if id.IsPair() && (id.Second() == e || id.First() == e) {
				for _, other := range t.entities {
					refs = append(refs, ref{other, id})
				}
			}
		}
	}
	for _, r := range refs {
		if !w.IsAlive(r.e) {
			continue
		}
		if r.id.First() == ecs.ChildOf {
			if err := w.delete(r.e); err != nil {
				return err
			}
			continue
		}
		if err := w.remove(r.e, r.id); err != nil {
			return err
		}
	}
	return nil
}

// slot returns the addressable storage of id on e
func (w *World) slot(e ecs.Entity, id ecs.Id) (reflect.Value, bool) {
	if slots, ok := w.sparse[id]; ok {
		if p, ok := slots[e]; ok {
			return p.Elem(), true
		}
	}
	rec, ok := w.records[e]
	if !ok {
		return reflect.Value{}, false
	}
	return rec.table.ptr(id, rec.row)
}

// FieldPtr returns a *T pointer to the value of id owned by e, or nil
func (w *World) FieldPtr(e ecs.Entity, id ecs.Id) any {
	if slots, ok := w.sparse[id]; ok {
		if p, ok := slots[e]; ok {
			return p.Interface()
		}
		return nil
	}
	v, ok := w.slot(e, id)
	if !ok {
		return nil
	}
	return v.Addr().Interface()
}

// Owns reports whether e has id in its own table. id may be a wildcard.
func (w *World) Owns(e ecs.Entity, id ecs.Id) bool {
	rec, ok := w.records[e]
	if !ok {
		return false
	}
	_, found := rec.table.Search(id)
	return found
}

// Has reports whether e owns id or inherits it through IsA
func (w *World) Has(e ecs.Entity, id ecs.Id) bool {
	if w.Owns(e, id) {
		return true
	}
	if !w.IsInheritable(id) {
		return false
	}
	_, ok := w.inheritFrom(e, id, 0)
	return ok
}

// HasPair reports whether e has the pair (rel, tgt)
func (w *World) HasPair(e, rel, tgt ecs.Entity) bool {
	return w.Has(e, ecs.Pair(rel, tgt))
}

// inheritFrom returns the base of e that owns id, following IsA
func (w *World) inheritFrom(e ecs.Entity, id ecs.Id, depth int) (ecs.Entity, bool) {
	if depth > maxTraversalDepth {
		return 0, false
	}
	rec, ok := w.records[e]
	if !ok {
		return 0, false
	}
	for _, base := range rec.table.SearchAll(ecs.Pair(ecs.IsA, ecs.Wildcard)) {
		if w.Owns(base.Second(), id) {
			return base.Second(), true
		}
		if src, ok := w.inheritFrom(base.Second(), id, depth+1); ok {
			return src, true
		}
	}
	return 0, false
}

const maxTraversalDepth = 64

// Target returns the index-th target of rel on e, or 0
func (w *World) Target(e, rel ecs.Entity, index int) ecs.Entity {
	rec, ok := w.records[e]
	if !ok {
		return 0
	}
	ids := rec.table.SearchAll(ecs.Pair(rel, ecs.Wildcard))
	if index < 0 || index >= len(ids) {
		return 0
	}
	return ids[index].Second()
}

// Set assigns a T component value to e
func Set[T any](w *World, e ecs.Entity, v T) error {
	return SetID(w, e, ComponentID[T](w).ID(), v)
}

// SetID assigns a value for an arbitrary data id, such as a pair
func SetID[T any](w *World, e ecs.Entity, id ecs.Id, v T) error {
	return w.SetValue(e, id, reflect.ValueOf(&v).Elem())
}

// SetPair assigns a value to the pair (rel, tgt) on e
func SetPair[T any](w *World, e, rel, tgt ecs.Entity, v T) error {
	return SetID(w, e, ecs.Pair(rel, tgt), v)
}

// SetSingleton assigns T on the component entity of T
func SetSingleton[T any](w *World, v T) error {
	id := ComponentID[T](w)
	return SetID(w, id, id.ID(), v)
}

// Get returns the T component of e, inherited values included
func Get[T any](w *World, e ecs.Entity) (*T, bool) {
	return GetID[T](w, e, ComponentID[T](w).ID())
}

// GetID returns the value of a data id on e, inherited values included
func GetID[T any](w *World, e ecs.Entity, id ecs.Id) (*T, bool) {
	p := w.FieldPtr(e, id)
	if p == nil && w.IsInheritable(id) {
		if base, ok := w.inheritFrom(e, id, 0); ok {
			p = w.FieldPtr(base, id)
		}
	}
	v, ok := p.(*T)
	return v, ok && v != nil
}

// GetSingleton returns T from the component entity of T
func GetSingleton[T any](w *World) (*T, bool) {
	id := ComponentID[T](w)
	return GetID[T](w, id, id.ID())
}

// AddTag adds the tag or component T to e without a value
func AddTag[T any](w *World, e ecs.Entity) error {
	return w.Add(e, ComponentID[T](w).ID())
}

// HasComponent reports whether e has T
func HasComponent[T any](w *World, e ecs.Entity) bool {
	return w.Has(e, ComponentID[T](w).ID())
}
