package query

import (
	"strings"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

// CacheKind selects whether matched tables are cached between iterations
type CacheKind uint8

const (
	// CacheDefault behaves as CacheAuto
	CacheDefault CacheKind = iota
	// CacheAuto caches when the query uses group_by or cascade
	CacheAuto
	// CacheAll always caches
	CacheAll
	// CacheNone never caches. Not valid with group_by or cascade.
	CacheNone
)

func (k CacheKind) String() string {
	switch k {
	case CacheAuto:
		return "auto"
	case CacheAll:
		return "all"
	case CacheNone:
		return "none"
	}
	return "default"
}

// GroupByFunc computes the group key of a matched table
type GroupByFunc func(w *storage.World, t *storage.Table, id ecs.Id, ctx any) uint64

// GroupCreateFunc is called when a group is first populated. The returned
// value is stored as the group context.
type GroupCreateFunc func(w *storage.World, group uint64, ctx any) any

// GroupDeleteFunc is called when a group becomes empty
type GroupDeleteFunc func(w *storage.World, group uint64, groupCtx any, ctx any)

// GroupBy configures the group-by engine of a query
type GroupBy struct {
	// ID is the relationship passed to the key function
	ID       ecs.Entity
	Fn       GroupByFunc
	Ctx      any
	OnCreate GroupCreateFunc
	OnDelete GroupDeleteFunc
	// Desc visits groups in descending key order
	Desc bool
}

// IsSet reports whether grouping is configured
func (g GroupBy) IsSet() bool {
	return g.ID != 0 || g.Fn != nil
}

// Desc is a query descriptor. It is built incrementally by a Builder and
// treated as immutable once handed to the compiler.
type Desc struct {
	Name      string
	Terms     []Term
	Expr      string
	CacheKind CacheKind
	GroupBy   GroupBy
}

// Validate checks the terms for construction errors that do not need a world
func (d *Desc) Validate() error {
	for i, t := range d.Terms {
		if !t.IsInitialized() {
			return ecs.NewBuildError(ecs.ErrInvalidParameter, i, "term is uninitialized")
		}
		if t.Oper == Or && i == len(d.Terms)-1 && d.Expr == "" {
			return ecs.NewBuildError(ecs.ErrInvalidParameter, i, "or chain is not terminated")
		}
	}
	if d.CacheKind == CacheNone && d.GroupBy.IsSet() {
		return ecs.NewBuildError(ecs.ErrInvalidParameter, -1, "group_by requires a cached query")
	}
	return nil
}

// Cascades reports whether any term uses cascade ordering
func (d *Desc) Cascades() bool {
	for _, t := range d.Terms {
		if t.Src.Flags&RefCascade != 0 {
			return true
		}
	}
	return false
}

// String formats the terms as a query expression
func (d *Desc) String() string {
	var sb strings.Builder
	for i, t := range d.Terms {
		if i > 0 {
			if d.Terms[i-1].Oper == Or {
				sb.WriteString(" || ")
			} else {
				sb.WriteString(", ")
			}
		}
		sb.WriteString(t.String())
	}
	if d.Expr != "" {
		if len(d.Terms) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Expr)
	}
	return sb.String()
}
