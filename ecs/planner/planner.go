// Package planner compiles query descriptors against a world and matches
// them to tables.
//
// File organization:
//   - planner.go: Planner, Options, Plan and Compile
//   - match.go: per table term matching with variables and traversal
//   - cache.go: the matched table cache of a query and the shared plan cache
//   - groups.go: group-by engine and cascade ordering
package planner

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/fields"
	"github.com/wbrown/janus-ecs/ecs/parser"
	"github.com/wbrown/janus-ecs/ecs/query"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

// Options configures a Planner
type Options struct {
	// DefaultCacheKind is used for descriptors with CacheDefault
	DefaultCacheKind query.CacheKind
	// Cache shares compiled plans between identical descriptors (optional)
	Cache *PlanCache
}

// Planner compiles descriptors for one world
type Planner struct {
	world   *storage.World
	options Options
	cache   *PlanCache
}

// NewPlanner creates a planner for w
func NewPlanner(w *storage.World, options Options) *Planner {
	return &Planner{world: w, options: options, cache: options.Cache}
}

// Options returns the planner options
func (p *Planner) Options() Options {
	return p.options
}

// step is a unit of evaluation: a single term, or an Or chain
type step struct {
	from, to int
}

// Plan is a compiled descriptor
type Plan struct {
	Name  string
	Terms []query.Term
	// FieldCount is the number of fields. Or chains share one field.
	FieldCount int
	// Vars holds variable names; index 0 is always "this"
	Vars []string
	// Cascade is the index of the cascade term, or -1
	Cascade int
	Cached  bool
	HasThis bool
	GroupBy query.GroupBy

	steps       []step
	fieldTerm   []int
	matchPrefab bool
	expr        string
}

// FindVar returns the index of a variable
func (p *Plan) FindVar(name string) (int, bool) {
	name = strings.TrimPrefix(name, "$")
	for i, v := range p.Vars {
		if v == name {
			return i, true
		}
	}
	return -1, false
}

// FieldTerm returns the first term of field i
func (p *Plan) FieldTerm(i int) query.Term {
	return p.Terms[p.fieldTerm[i]]
}

// String formats the plan as a query expression
func (p *Plan) String() string {
	return p.expr
}

// Compile resolves names, parses the expression, assigns field indices and
// validates the descriptor. All errors are *ecs.BuildError.
func (p *Planner) Compile(desc *query.Desc) (*Plan, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	cacheable := p.cache != nil && desc.GroupBy.Fn == nil && desc.GroupBy.Ctx == nil &&
		desc.GroupBy.OnCreate == nil && desc.GroupBy.OnDelete == nil
	if cacheable {
		if plan, ok := p.cache.Get(p.world, desc, p.options); ok {
			return plan, nil
		}
	}

	plan, err := p.compile(desc)
	if err != nil {
		return nil, err
	}
	if cacheable {
		p.cache.Set(p.world, desc, plan, p.options)
	}
	return plan, nil
}

func (p *Planner) compile(desc *query.Desc) (*Plan, error) {
	terms := make([]query.Term, len(desc.Terms), len(desc.Terms)+4)
	copy(terms, desc.Terms)

	if desc.Expr != "" {
		parsed, err := parser.Parse(desc.Expr, p.world)
		if err != nil {
			return nil, &ecs.BuildError{Kind: ecs.ErrParse, Term: -1, Msg: err.Error()}
		}
		terms = append(terms, parsed...)
	}
	if len(terms) == 0 {
		return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, -1, "query has no terms")
	}

	plan := &Plan{
		Name:    desc.Name,
		Vars:    []string{"this"},
		Cascade: -1,
		GroupBy: desc.GroupBy,
	}

	for i := range terms {
		t := &terms[i]
		if !t.IsInitialized() {
			return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, i, "term is uninitialized")
		}
		for _, ref := range []*query.TermRef{&t.First, &t.Second, &t.Src} {
			if err := p.resolveRef(i, ref); err != nil {
				return nil, err
			}
		}
		if t.First.IsSet() {
			t.ID = t.PatternID()
		}
		if t.ID == 0 {
			return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, i, "term has no id")
		}

		if !t.Src.IsSet() {
			t.Src = query.TermRef{ID: ecs.This, Name: "this", Flags: t.Src.Flags | query.RefVariable}
		}
		if t.Src.IsThis() && !t.Src.Traverses() && t.Src.Flags&query.RefSelf == 0 &&
			p.world.IsInheritable(t.ID) {
			t.Src.Flags |= query.RefSelf | query.RefUp
			t.Trav = ecs.IsA
		}
		if t.Src.Traverses() && t.Trav == 0 {
			t.Trav = ecs.ChildOf
		}
		if t.Src.IsThis() {
			plan.HasThis = true
		}

		if t.Src.Flags&query.RefCascade != 0 {
			if plan.Cascade >= 0 {
				return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, i, "query has more than one cascade term")
			}
			if !t.Src.IsThis() {
				return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, i, "cascade requires $this as source")
			}
			plan.Cascade = i
		}
		if t.ID.First() == ecs.Prefab || t.ID.Second() == ecs.Prefab {
			plan.matchPrefab = true
		}

		for _, ref := range []query.TermRef{t.First, t.Second, t.Src} {
			if ref.IsVar() && !ref.IsThis() {
				if _, ok := plan.FindVar(ref.Name); !ok {
					plan.Vars = append(plan.Vars, ref.Name)
				}
			}
		}
	}

	// Field indices: an Or chain is the run of Or terms plus the term that
	// terminates it, and shares one field.
	field := 0
	for i := range terms {
		terms[i].Field = field
		if i == 0 || terms[i-1].Oper != query.Or {
			plan.fieldTerm = append(plan.fieldTerm, i)
		}
		if terms[i].Oper != query.Or {
			field++
		}
	}
	if terms[len(terms)-1].Oper == query.Or {
		return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, len(terms)-1, "or chain is not terminated")
	}
	if field > fields.MaxFields {
		return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, -1,
			"%d fields exceed the maximum of %d", field, fields.MaxFields)
	}
	plan.FieldCount = field
	plan.Terms = terms

	steps, err := buildSteps(terms)
	if err != nil {
		return nil, err
	}
	plan.steps = steps

	switch kind := desc.CacheKind; {
	case kind == query.CacheDefault && p.options.DefaultCacheKind != query.CacheDefault:
		plan.Cached = cacheFor(p.options.DefaultCacheKind, desc)
	default:
		plan.Cached = cacheFor(kind, desc)
	}
	if desc.CacheKind == query.CacheNone && plan.Cascade >= 0 {
		return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, plan.Cascade, "cascade requires a cached query")
	}

	plan.expr = (&query.Desc{Terms: terms}).String()
	return plan, nil
}

func cacheFor(kind query.CacheKind, desc *query.Desc) bool {
	switch kind {
	case query.CacheAll:
		return true
	case query.CacheNone:
		return false
	}
	return desc.GroupBy.IsSet() || desc.Cascades()
}

func (p *Planner) resolveRef(term int, ref *query.TermRef) error {
	if ref.Flags&query.RefName == 0 {
		return nil
	}
	e, ok := p.world.Lookup(ref.Name)
	if !ok {
		return ecs.NewBuildError(ecs.ErrInvalidParameter, term, "unresolved identifier %q", ref.Name)
	}
	ref.ID = e
	ref.Flags = ref.Flags&^query.RefName | query.RefEntity
	return nil
}

// buildSteps groups Or chains and moves terms whose source is a variable
// after the terms that can bind it
func buildSteps(terms []query.Term) ([]step, error) {
	var head, tail []step
	for i := 0; i < len(terms); i++ {
		s := step{from: i, to: i}
		for s.to < len(terms)-1 && terms[s.to].Oper == query.Or {
			s.to++
		}
		varSrc := false
		for k := s.from; k <= s.to; k++ {
			if terms[k].Src.IsVar() && !terms[k].Src.IsThis() {
				varSrc = true
			}
		}
		if varSrc && s.to > s.from {
			return nil, ecs.NewBuildError(ecs.ErrInvalidParameter, s.from, "or chain cannot use a variable source")
		}
		if varSrc {
			tail = append(tail, s)
		} else {
			head = append(head, s)
		}
		i = s.to
	}
	return append(head, tail...), nil
}

// Describe formats the plan with entity names of w
func (p *Plan) Describe(w *storage.World) string {
	var sb strings.Builder
	for i, t := range p.Terms {
		fmt.Fprintf(&sb, "%d: field=%d oper=%s id=%s src=%s\n", i, t.Field, t.Oper, w.IDString(t.ID), t.Src)
	}
	return sb.String()
}
