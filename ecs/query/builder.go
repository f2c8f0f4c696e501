package query

import (
	"strings"

	"github.com/wbrown/janus-ecs/ecs"
)

type refKind uint8

const (
	refSrc refKind = iota
	refFirst
	refSecond
)

type orderTarget uint8

const (
	orderNone orderTarget = iota
	orderCascade
	orderGroup
)

// Builder accumulates a query descriptor. Every chaining operation applies
// to the current term, which is the last added term or the one selected
// with TermAt. The first error is recorded and returned by Build.
//
// Q is the type of the finalized query, produced by the compile function.
type Builder[Q any] struct {
	desc    Desc
	cur     int
	ref     refKind
	order   orderTarget
	cascade int
	compile func(*Desc) (Q, error)
	err     error
	built   bool
}

// NewBuilder creates a builder that finalizes with compile
func NewBuilder[Q any](compile func(*Desc) (Q, error)) *Builder[Q] {
	return &Builder[Q]{cur: -1, cascade: -1, compile: compile}
}

// Descriptor returns the descriptor under construction
func (b *Builder[Q]) Descriptor() *Desc {
	return &b.desc
}

// Err returns the first recorded construction error
func (b *Builder[Q]) Err() error {
	return b.err
}

// Fail records a construction error. Only the first error is kept.
func (b *Builder[Q]) Fail(err error) *Builder[Q] {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder[Q]) current() *Term {
	if b.cur < 0 || b.cur >= len(b.desc.Terms) {
		b.Fail(ecs.NewBuildError(ecs.ErrInvalidOperation, -1, "no current term"))
		return nil
	}
	return &b.desc.Terms[b.cur]
}

func (b *Builder[Q]) selected() *TermRef {
	t := b.current()
	if t == nil {
		return nil
	}
	switch b.ref {
	case refFirst:
		return &t.First
	case refSecond:
		return &t.Second
	}
	return &t.Src
}

// AddTerm appends a term and makes it current
func (b *Builder[Q]) AddTerm(t Term) *Builder[Q] {
	t.Field = -1
	b.desc.Terms = append(b.desc.Terms, t)
	b.cur = len(b.desc.Terms) - 1
	b.ref = refSrc
	return b
}

// With adds a term for a component, tag or pair id
func (b *Builder[Q]) With(id ecs.Id) *Builder[Q] {
	return b.AddTerm(NewTerm(id))
}

// WithPair adds a term for the pair (first, second)
func (b *Builder[Q]) WithPair(first, second ecs.Entity) *Builder[Q] {
	return b.With(ecs.Pair(first, second))
}

// WithName adds a term for a named entity, resolved at build time
func (b *Builder[Q]) WithName(name string) *Builder[Q] {
	return b.AddTerm(Term{First: parseRef(name)})
}

// WithPairNames adds a pair term from names. Either element may be a
// variable ("$X") or a wildcard ("*", "_").
func (b *Builder[Q]) WithPairNames(first, second string) *Builder[Q] {
	return b.AddTerm(Term{First: parseRef(first), Second: parseRef(second)})
}

// Without adds a negated term
func (b *Builder[Q]) Without(id ecs.Id) *Builder[Q] {
	return b.With(id).Not()
}

// Term adds an empty term to be filled in by the following calls
func (b *Builder[Q]) Term() *Builder[Q] {
	return b.AddTerm(Term{})
}

// TermAt makes the term at index i current
func (b *Builder[Q]) TermAt(i int) *Builder[Q] {
	if i < 0 || i >= len(b.desc.Terms) {
		return b.Fail(ecs.NewBuildError(ecs.ErrInvalidParameter, i, "term index out of range"))
	}
	b.cur = i
	b.ref = refSrc
	return b
}

// Expr appends terms from a query expression, parsed at build time.
// Expression terms follow all builder terms.
func (b *Builder[Q]) Expr(expr string) *Builder[Q] {
	if b.desc.Expr != "" {
		b.desc.Expr += ", " + expr
	} else {
		b.desc.Expr = expr
	}
	return b
}

// SetOper sets the operator of the current term
func (b *Builder[Q]) SetOper(op Oper) *Builder[Q] {
	if t := b.current(); t != nil {
		t.Oper = op
	}
	return b
}

func (b *Builder[Q]) And() *Builder[Q]      { return b.SetOper(And) }
func (b *Builder[Q]) Or() *Builder[Q]       { return b.SetOper(Or) }
func (b *Builder[Q]) Not() *Builder[Q]      { return b.SetOper(Not) }
func (b *Builder[Q]) Optional() *Builder[Q] { return b.SetOper(Optional) }
func (b *Builder[Q]) AndFrom() *Builder[Q]  { return b.SetOper(AndFrom) }
func (b *Builder[Q]) OrFrom() *Builder[Q]   { return b.SetOper(OrFrom) }
func (b *Builder[Q]) NotFrom() *Builder[Q]  { return b.SetOper(NotFrom) }

// Src selects the source of the current term for SetID, SetVar and SetName
func (b *Builder[Q]) Src() *Builder[Q] {
	b.ref = refSrc
	return b
}

// First selects the first element of the current term
func (b *Builder[Q]) First() *Builder[Q] {
	b.ref = refFirst
	return b
}

// Second selects the second element of the current term
func (b *Builder[Q]) Second() *Builder[Q] {
	b.ref = refSecond
	return b
}

// SetID sets the selected reference to a fixed entity
func (b *Builder[Q]) SetID(e ecs.Entity) *Builder[Q] {
	if r := b.selected(); r != nil {
		*r = TermRef{ID: e, Flags: r.Flags&(RefSelf|RefUp|RefCascade|RefDesc) | RefEntity}
	}
	return b
}

// SetVar sets the selected reference to a variable
func (b *Builder[Q]) SetVar(name string) *Builder[Q] {
	if r := b.selected(); r != nil {
		name = strings.TrimPrefix(name, "$")
		ref := TermRef{Name: name, Flags: r.Flags&(RefSelf|RefUp|RefCascade|RefDesc) | RefVariable}
		if name == "this" {
			ref.ID = ecs.This
		}
		*r = ref
	}
	return b
}

// SetName sets the selected reference to a named entity
func (b *Builder[Q]) SetName(name string) *Builder[Q] {
	if r := b.selected(); r != nil {
		*r = TermRef{Name: name, Flags: r.Flags&(RefSelf|RefUp|RefCascade|RefDesc) | RefName}
	}
	return b
}

// SrcID sets the source of the current term to a fixed entity
func (b *Builder[Q]) SrcID(e ecs.Entity) *Builder[Q] {
	return b.Src().SetID(e)
}

// SrcVar sets the source of the current term to a variable
func (b *Builder[Q]) SrcVar(name string) *Builder[Q] {
	return b.Src().SetVar(name)
}

// SecondID sets the target of the current term
func (b *Builder[Q]) SecondID(e ecs.Entity) *Builder[Q] {
	return b.Second().SetID(e)
}

// SecondVar sets the target of the current term to a variable
func (b *Builder[Q]) SecondVar(name string) *Builder[Q] {
	return b.Second().SetVar(name)
}

// Singleton matches the current term on the component entity itself
func (b *Builder[Q]) Singleton() *Builder[Q] {
	t := b.current()
	if t == nil {
		return b
	}
	if t.First.Flags&RefName != 0 {
		t.Src = TermRef{Name: t.First.Name, Flags: RefName}
	} else {
		t.Src = TermRef{ID: t.ID.First(), Flags: RefEntity}
	}
	b.ref = refSrc
	return b
}

// Self matches the current term on the source itself. Combined with Up the
// source is tried first.
func (b *Builder[Q]) Self() *Builder[Q] {
	if t := b.current(); t != nil {
		t.Src.Flags |= RefSelf
	}
	return b
}

// Up matches the current term by traversing rel upwards from the source.
// A zero rel traverses ChildOf.
func (b *Builder[Q]) Up(rel ecs.Entity) *Builder[Q] {
	if t := b.current(); t != nil {
		if rel == 0 {
			rel = ecs.ChildOf
		}
		t.Src.Flags |= RefUp
		t.Trav = rel
	}
	return b
}

// Cascade is Up with results ordered by traversal depth, shallowest first
func (b *Builder[Q]) Cascade(rel ecs.Entity) *Builder[Q] {
	if t := b.current(); t != nil {
		if rel == 0 {
			rel = ecs.ChildOf
		}
		t.Src.Flags |= RefCascade
		t.Trav = rel
		b.order = orderCascade
		b.cascade = b.cur
	}
	return b
}

// Desc reverses the most recent ordering modifier, cascade or group_by
func (b *Builder[Q]) Desc() *Builder[Q] {
	switch b.order {
	case orderCascade:
		b.desc.Terms[b.cascade].Src.Flags |= RefDesc
	case orderGroup:
		b.desc.GroupBy.Desc = true
	default:
		b.Fail(ecs.NewBuildError(ecs.ErrInvalidOperation, b.cur, "desc requires cascade or group_by"))
	}
	return b
}

// SetInOut sets the access of the current term
func (b *Builder[Q]) SetInOut(io InOut) *Builder[Q] {
	if t := b.current(); t != nil {
		t.InOut = io
	}
	return b
}

func (b *Builder[Q]) In() *Builder[Q]        { return b.SetInOut(In) }
func (b *Builder[Q]) Out() *Builder[Q]       { return b.SetInOut(Out) }
func (b *Builder[Q]) InOut() *Builder[Q]     { return b.SetInOut(InOutBoth) }
func (b *Builder[Q]) InOutNone() *Builder[Q] { return b.SetInOut(InOutNone) }
func (b *Builder[Q]) Filter() *Builder[Q]    { return b.SetInOut(Filter) }

// GroupBy groups matched tables by the target of (rel, *)
func (b *Builder[Q]) GroupBy(rel ecs.Entity) *Builder[Q] {
	b.desc.GroupBy.ID = rel
	b.order = orderGroup
	return b
}

// GroupByFn groups matched tables with a custom key function
func (b *Builder[Q]) GroupByFn(rel ecs.Entity, fn GroupByFunc) *Builder[Q] {
	b.desc.GroupBy.Fn = fn
	return b.GroupBy(rel)
}

// GroupByCtx sets the context passed to the group callbacks
func (b *Builder[Q]) GroupByCtx(ctx any) *Builder[Q] {
	b.desc.GroupBy.Ctx = ctx
	return b
}

// OnGroupCreate sets the callback invoked when a group is first populated
func (b *Builder[Q]) OnGroupCreate(fn GroupCreateFunc) *Builder[Q] {
	b.desc.GroupBy.OnCreate = fn
	return b
}

// OnGroupDelete sets the callback invoked when a group is emptied
func (b *Builder[Q]) OnGroupDelete(fn GroupDeleteFunc) *Builder[Q] {
	b.desc.GroupBy.OnDelete = fn
	return b
}

// SetCacheKind sets the caching policy
func (b *Builder[Q]) SetCacheKind(k CacheKind) *Builder[Q] {
	b.desc.CacheKind = k
	return b
}

// Cached always caches matched tables
func (b *Builder[Q]) Cached() *Builder[Q] {
	return b.SetCacheKind(CacheAll)
}

// Named sets the query name used in annotations
func (b *Builder[Q]) Named(name string) *Builder[Q] {
	b.desc.Name = name
	return b
}

// Build finalizes the descriptor and compiles it. A builder builds once.
func (b *Builder[Q]) Build() (Q, error) {
	var zero Q
	if b.built {
		return zero, ecs.NewBuildError(ecs.ErrInvalidOperation, -1, "query already built")
	}
	b.built = true
	if b.err != nil {
		return zero, b.err
	}
	if err := b.desc.Validate(); err != nil {
		return zero, err
	}
	return b.compile(&b.desc)
}

// MustBuild is Build that panics on a construction error
func (b *Builder[Q]) MustBuild() Q {
	q, err := b.Build()
	if err != nil {
		panic(err)
	}
	return q
}

// parseRef converts a name into a reference. "$X" is a variable, "*" and
// "_" are the wildcards.
func parseRef(name string) TermRef {
	switch {
	case name == "$this":
		return TermRef{ID: ecs.This, Name: "this", Flags: RefVariable}
	case strings.HasPrefix(name, "$"):
		return TermRef{Name: name[1:], Flags: RefVariable}
	}
	if e, ok := ecs.BuiltinByName(name); ok {
		return TermRef{ID: e, Flags: RefEntity}
	}
	return TermRef{Name: name, Flags: RefName}
}
