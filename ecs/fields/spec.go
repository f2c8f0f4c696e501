// Package fields binds a statically declared list of Go types to the
// columns of matched batches.
//
// A query declares its fields as a list of Specs (In[Position](),
// Opt[Velocity](), Pair[Likes, Apples](WriteOwned), ...). Populate turns the
// list into query terms once, at construction. For every matched batch a
// Pointers value classifies each field as owned, broadcast, fetched per row
// or a tag, and then materializes one Tuple per row without copying
// component data.
package fields

import (
	"fmt"
	"reflect"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/query"
)

// MaxFields is the maximum number of typed fields of a query
const MaxFields = 32

// Access is the declared access mode of a field
type Access uint8

const (
	ReadOwned Access = iota
	WriteOwned
	ReadOptional
	WriteOptional
)

// Optional reports whether the field may be absent
func (a Access) Optional() bool {
	return a == ReadOptional || a == WriteOptional
}

// Mutable reports whether the field is written through
func (a Access) Mutable() bool {
	return a == WriteOwned || a == WriteOptional
}

func (a Access) String() string {
	switch a {
	case ReadOwned:
		return "in"
	case WriteOwned:
		return "inout"
	case ReadOptional:
		return "in?"
	case WriteOptional:
		return "inout?"
	}
	return "unknown"
}

// PairRole tells which pair element provides the data of a pair field
type PairRole uint8

const (
	PairNone PairRole = iota
	PairFirst
	PairSecond
)

// Registry resolves Go types and ids against the live id registry
type Registry interface {
	ComponentIDOf(t reflect.Type) ecs.Entity
	TypeOf(id ecs.Id) (reflect.Type, bool)
}

// Spec is the access descriptor of one typed field. It is immutable.
type Spec struct {
	// Type is the Go type read through the field
	Type   reflect.Type
	Access Access
	Pair   PairRole
	IsTag  bool

	first, second reflect.Type
	rel, target   ecs.Entity

	// tag is a *T shared by every row of a tag field
	tag any
	// index returns &col.([]T)[row]
	index func(col any, row int) any
	// length returns len(col.([]T))
	length func(col any) int
}

func newSpec[T any](access Access) Spec {
	t := reflect.TypeOf((*T)(nil)).Elem()
	s := Spec{
		Type:   t,
		Access: access,
		IsTag:  t.Size() == 0,
		index: func(col any, row int) any {
			return &col.([]T)[row]
		},
		length: func(col any) int {
			return len(col.([]T))
		},
	}
	if s.IsTag {
		s.tag = new(T)
	}
	return s
}

// Field declares a field of component type T
func Field[T any](access Access) Spec {
	return newSpec[T](access)
}

// In declares a read-only field
func In[T any]() Spec { return newSpec[T](ReadOwned) }

// Mut declares a mutable field
func Mut[T any]() Spec { return newSpec[T](WriteOwned) }

// Opt declares an optional read-only field
func Opt[T any]() Spec { return newSpec[T](ReadOptional) }

// OptMut declares an optional mutable field
func OptMut[T any]() Spec { return newSpec[T](WriteOptional) }

// Pair declares a field for the pair (R, Tg). The field reads R, or Tg
// when R is a tag. When both are tags the field is a tag.
func Pair[R, Tg any](access Access) Spec {
	r, tg := reflect.TypeOf((*R)(nil)).Elem(), reflect.TypeOf((*Tg)(nil)).Elem()
	var s Spec
	switch {
	case r.Size() != 0:
		s = newSpec[R](access)
		s.Pair = PairFirst
	case tg.Size() != 0:
		s = newSpec[Tg](access)
		s.Pair = PairSecond
	default:
		s = newSpec[R](access)
		s.Pair = PairFirst
	}
	s.first, s.second = r, tg
	return s
}

// PairTo declares a field for the pair (R, target) where target is only
// known at runtime
func PairTo[R any](access Access, target ecs.Entity) Spec {
	s := newSpec[R](access)
	s.Pair = PairFirst
	s.first = s.Type
	s.target = target
	return s
}

// PairIDs declares a field of type T for a pair of runtime ids. The pair
// must be backed by a T component.
func PairIDs[T any](access Access, rel, target ecs.Entity) Spec {
	s := newSpec[T](access)
	s.Pair = PairFirst
	s.rel, s.target = rel, target
	return s
}

// TagOnly matches the field's id without reading its data
func (s Spec) TagOnly() Spec {
	if !s.IsTag {
		s.IsTag = true
		s.tag = reflect.New(s.Type).Interface()
	}
	return s
}

// Index returns a *T pointer to row of a []T column
func (s Spec) Index(col any, row int) any {
	return s.index(col, row)
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %s", s.Access, s.Type)
}

// ID resolves the component or pair id of the field
func (s Spec) ID(reg Registry) ecs.Id {
	switch {
	case s.rel != 0:
		return ecs.Pair(s.rel, s.target)
	case s.first != nil && s.second != nil:
		return ecs.Pair(reg.ComponentIDOf(s.first), reg.ComponentIDOf(s.second))
	case s.first != nil:
		return ecs.Pair(reg.ComponentIDOf(s.first), s.target)
	}
	return reg.ComponentIDOf(s.Type).ID()
}

// Populate resolves the specs against the registry and returns one term per
// spec, in declaration order. It runs once per query.
func Populate(reg Registry, specs []Spec) ([]query.Term, error) {
	if len(specs) > MaxFields {
		return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, -1,
			"%d fields exceed the maximum of %d", len(specs), MaxFields)
	}
	terms := make([]query.Term, 0, len(specs))
	for i, s := range specs {
		id := s.ID(reg)
		if !s.IsTag {
			typ, ok := reg.TypeOf(id)
			if !ok || typ != s.Type {
				if id.IsPair() {
					return nil, ecs.NewBuildError(ecs.ErrInvalidOperation, i,
						"pair %s is not a (data) component of type %s", id, s.Type)
				}
				return nil, ecs.NewBuildError(ecs.ErrInvalidOperation, i,
					"%s is not a data component of type %s", id, s.Type)
			}
		}

		t := query.NewTerm(id)
		switch {
		case s.IsTag:
			t.InOut = query.InOutNone
		case s.Access.Mutable():
			t.InOut = query.InOutBoth
		default:
			t.InOut = query.In
		}
		if s.Access.Optional() {
			t.Oper = query.Optional
		}
		terms = append(terms, t)
	}
	return terms, nil
}
