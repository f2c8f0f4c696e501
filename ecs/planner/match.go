package planner

import (
	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/query"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

const maxTraversalDepth = 64

// Match is one result of matching a plan against a table. A table can
// produce several matches when wildcards or variables enumerate ids.
type Match struct {
	// Table is nil for queries without $this terms
	Table *storage.Table
	// IDs holds the matched id of each field
	IDs []ecs.Id
	// Sources holds the source of each field, 0 for $this
	Sources []ecs.Entity
	// Set has bit i set when field i matched
	Set uint32
	// Up has bit i set when field i was matched through traversal
	Up uint32
	// Vars holds the value of each plan variable; Vars[0] ($this) is unused
	Vars []ecs.Entity
	// Depth is the hierarchy depth of the table along the cascade
	// relationship
	Depth int
	// Group is the group key when the query is grouped
	Group uint64
}

// Count returns the number of rows of the match
func (m *Match) Count() int {
	if m.Table == nil {
		return 0
	}
	return m.Table.Count()
}

type candidate struct {
	id  ecs.Id
	src ecs.Entity
	up  bool
}

type state struct {
	ids  []ecs.Id
	srcs []ecs.Entity
	vars []ecs.Entity
	set  uint32
	up   uint32
}

func (s *state) clone() state {
	return state{
		ids:  append([]ecs.Id(nil), s.ids...),
		srcs: append([]ecs.Entity(nil), s.srcs...),
		vars: append([]ecs.Entity(nil), s.vars...),
		set:  s.set,
		up:   s.up,
	}
}

type matcher struct {
	plan  *Plan
	world *storage.World
	table *storage.Table
	depth int
	st    state
	out   []*Match
}

// MatchAll matches the plan against every table of w. fixed holds variable
// values set by the caller, indexed like Plan.Vars; 0 means unbound.
func (p *Plan) MatchAll(w *storage.World, fixed []ecs.Entity) []*Match {
	if !p.HasThis {
		return p.MatchTable(w, nil, fixed)
	}
	var out []*Match
	for _, t := range w.Tables() {
		if len(t.Type()) == 0 {
			continue
		}
		if !p.matchPrefab && t.Has(ecs.Prefab.ID()) {
			continue
		}
		out = append(out, p.MatchTable(w, t, fixed)...)
	}
	return out
}

// MatchTable matches the plan against a single table
func (p *Plan) MatchTable(w *storage.World, t *storage.Table, fixed []ecs.Entity) []*Match {
	m := &matcher{
		plan:  p,
		world: w,
		table: t,
		st: state{
			ids:  make([]ecs.Id, p.FieldCount),
			srcs: make([]ecs.Entity, p.FieldCount),
			vars: make([]ecs.Entity, len(p.Vars)),
		},
	}
	copy(m.st.vars, fixed)
	if p.Cascade >= 0 && t != nil {
		m.depth = hierarchyDepth(w, t, p.Terms[p.Cascade].Trav)
	}
	m.step(0)
	return m.out
}

func (m *matcher) step(si int) {
	if si == len(m.plan.steps) {
		m.emit()
		return
	}
	s := m.plan.steps[si]
	t := &m.plan.Terms[s.from]

	if s.to > s.from {
		for k := s.from; k <= s.to; k++ {
			if cands := m.candidates(&m.plan.Terms[k]); len(cands) > 0 {
				m.each(&m.plan.Terms[k], cands, si)
				return
			}
		}
		return
	}

	switch t.Oper {
	case query.And:
		m.each(t, m.candidates(t), si)
	case query.Optional:
		cands := m.candidates(t)
		if len(cands) == 0 {
			m.unset(t, si)
			return
		}
		m.each(t, cands, si)
	case query.Not:
		if len(m.candidates(t)) == 0 {
			m.unset(t, si)
		}
	case query.AndFrom, query.OrFrom, query.NotFrom:
		m.from(t, si)
	}
}

func (m *matcher) each(t *query.Term, cands []candidate, si int) {
	for _, c := range cands {
		saved := m.st.clone()
		if m.bind(t, c) {
			m.step(si + 1)
		}
		m.st = saved
	}
}

func (m *matcher) unset(t *query.Term, si int) {
	saved := m.st.clone()
	m.st.ids[t.Field] = m.substitute(t)
	m.step(si + 1)
	m.st = saved
}

// bind records a candidate for the term's field and binds its variables
func (m *matcher) bind(t *query.Term, c candidate) bool {
	if !m.bindVar(t.First, c.id.First()) {
		return false
	}
	if t.Second.IsSet() && !m.bindVar(t.Second, c.id.Second()) {
		return false
	}
	f := t.Field
	bit := uint32(1) << uint(f)
	m.st.ids[f] = c.id
	m.st.srcs[f] = c.src
	m.st.set |= bit
	if c.up {
		m.st.up |= bit
	}
	return true
}

func (m *matcher) bindVar(ref query.TermRef, e ecs.Entity) bool {
	if !ref.IsVar() || ref.IsThis() {
		return true
	}
	vi, _ := m.plan.FindVar(ref.Name)
	if cur := m.st.vars[vi]; cur != 0 {
		return cur == e
	}
	m.st.vars[vi] = e
	return true
}

func (m *matcher) varValue(ref query.TermRef) ecs.Entity {
	if !ref.IsVar() || ref.IsThis() {
		return 0
	}
	vi, _ := m.plan.FindVar(ref.Name)
	return m.st.vars[vi]
}

// substitute returns the term id with bound variables replaced by their values
func (m *matcher) substitute(t *query.Term) ecs.Id {
	if !t.First.IsSet() {
		return t.ID
	}
	first := t.ID.First()
	if v := m.varValue(t.First); v != 0 {
		first = v
	}
	if !t.ID.IsPair() {
		return first.ID()
	}
	second := t.ID.Second()
	if v := m.varValue(t.Second); v != 0 {
		second = v
	}
	return ecs.Pair(first, second)
}

// source returns the table that the term is evaluated on
func (m *matcher) source(t *query.Term) (*storage.Table, ecs.Entity, bool) {
	switch {
	case t.Src.IsThis():
		return m.table, 0, m.table != nil
	case t.Src.IsVar():
		e := m.varValue(t.Src)
		if e == 0 {
			return nil, 0, false
		}
		tbl, _, ok := m.world.Location(e)
		return tbl, e, ok
	}
	tbl, _, ok := m.world.Location(t.Src.ID)
	return tbl, t.Src.ID, ok
}

func (m *matcher) candidates(t *query.Term) []candidate {
	tbl, src, ok := m.source(t)
	if !ok {
		return nil
	}
	pattern := m.substitute(t)
	firstOnly := pattern.First() == ecs.Any || (pattern.IsPair() && pattern.Second() == ecs.Any)

	var out []candidate
	if t.Src.Flags&query.RefSelf != 0 || !t.Src.Traverses() {
		for _, id := range tbl.SearchAll(pattern) {
			out = append(out, candidate{id: id, src: src})
			if firstOnly {
				return out
			}
		}
	}
	if len(out) == 0 && t.Src.Traverses() {
		out = m.up(tbl, pattern, t.Trav, 1, out)
		if firstOnly && len(out) > 1 {
			out = out[:1]
		}
	}
	return out
}

// up searches pattern on the targets of (trav, *) and recurses into the
// targets that do not have it
func (m *matcher) up(tbl *storage.Table, pattern ecs.Id, trav ecs.Entity, depth int, out []candidate) []candidate {
	if depth > maxTraversalDepth {
		return out
	}
	for _, rel := range tbl.SearchAll(ecs.Pair(trav, ecs.Wildcard)) {
		target := rel.Second()
		ttbl, _, ok := m.world.Location(target)
		if !ok {
			continue
		}
		found := ttbl.SearchAll(pattern)
		for _, id := range found {
			if !containsID(out, id) {
				out = append(out, candidate{id: id, src: target, up: true})
			}
		}
		if len(found) == 0 {
			out = m.up(ttbl, pattern, trav, depth+1, out)
		}
	}
	return out
}

// hierarchyDepth counts the (trav, *) links from the table up to a root
func hierarchyDepth(w *storage.World, t *storage.Table, trav ecs.Entity) int {
	depth := 0
	for depth < maxTraversalDepth {
		rel, ok := t.Search(ecs.Pair(trav, ecs.Wildcard))
		if !ok {
			break
		}
		next, _, ok := w.Location(rel.Second())
		if !ok {
			break
		}
		depth++
		t = next
	}
	return depth
}

func containsID(cands []candidate, id ecs.Id) bool {
	for _, c := range cands {
		if c.id == id {
			return true
		}
	}
	return false
}

// from evaluates AndFrom, OrFrom and NotFrom against the components of the
// term's entity
func (m *matcher) from(t *query.Term, si int) {
	tbl, src, ok := m.source(t)
	if !ok {
		return
	}
	list, _, ok := m.world.Location(t.ID.First())
	if !ok {
		return
	}
	found := 0
	for _, id := range list.Type() {
		if tbl.Has(id) {
			found++
		}
	}
	n := len(list.Type())
	var match bool
	switch t.Oper {
	case query.AndFrom:
		match = found == n
	case query.OrFrom:
		match = found > 0
	case query.NotFrom:
		match = found == 0
	}
	if !match {
		return
	}
	saved := m.st.clone()
	f := t.Field
	m.st.ids[f] = t.ID
	m.st.srcs[f] = src
	if t.Oper != query.NotFrom {
		m.st.set |= 1 << uint(f)
	}
	m.step(si + 1)
	m.st = saved
}

func (m *matcher) emit() {
	st := m.st.clone()
	m.out = append(m.out, &Match{
		Table:   m.table,
		IDs:     st.ids,
		Sources: st.srcs,
		Set:     st.set,
		Up:      st.up,
		Vars:    st.vars,
		Depth:   m.depth,
	})
}
