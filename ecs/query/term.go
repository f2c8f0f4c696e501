package query

import (
	"strings"

	"github.com/wbrown/janus-ecs/ecs"
)

// Oper is the operator of a term
type Oper uint8

const (
	And Oper = iota
	// Or chains a term with the term that follows it. A chain shares one field.
	Or
	Not
	Optional
	// AndFrom matches all components of the term's entity
	AndFrom
	// OrFrom matches at least one component of the term's entity
	OrFrom
	// NotFrom matches none of the components of the term's entity
	NotFrom
)

func (o Oper) String() string {
	switch o {
	case And:
		return "and"
	case Or:
		return "or"
	case Not:
		return "not"
	case Optional:
		return "optional"
	case AndFrom:
		return "and_from"
	case OrFrom:
		return "or_from"
	case NotFrom:
		return "not_from"
	}
	return "unknown"
}

// InOut is the declared access of a term
type InOut uint8

const (
	InOutDefault InOut = iota
	InOutNone
	In
	Out
	InOutBoth
	// Filter matches without providing data
	Filter
)

func (io InOut) String() string {
	switch io {
	case InOutNone:
		return "none"
	case In:
		return "in"
	case Out:
		return "out"
	case InOutBoth:
		return "inout"
	case Filter:
		return "filter"
	}
	return ""
}

// RefFlags qualify a term reference
type RefFlags uint32

const (
	// RefSelf matches the id on the source itself
	RefSelf RefFlags = 1 << iota
	// RefUp matches the id by traversing the term's relationship upwards
	RefUp
	// RefCascade is RefUp plus breadth-first ordering by traversal depth
	RefCascade
	// RefDesc reverses cascade ordering
	RefDesc
	// RefVariable marks the reference as a query variable
	RefVariable
	// RefEntity marks the reference as a fixed entity
	RefEntity
	// RefName marks the reference as a name still to be resolved
	RefName
)

// TermRef is the source, first or second element of a term
type TermRef struct {
	ID    ecs.Entity
	Name  string
	Flags RefFlags
}

// IsSet reports whether the reference carries an id, a variable or a name
func (r TermRef) IsSet() bool {
	return r.ID != 0 || r.Name != ""
}

// IsVar reports whether the reference is a variable
func (r TermRef) IsVar() bool {
	return r.Flags&RefVariable != 0
}

// IsThis reports whether the reference is the $this variable
func (r TermRef) IsThis() bool {
	return r.IsVar() && (r.Name == "this" || r.ID == ecs.This)
}

// Traverses reports whether the reference matches through a relationship
func (r TermRef) Traverses() bool {
	return r.Flags&(RefUp|RefCascade) != 0
}

func (r TermRef) String() string {
	switch {
	case r.IsThis():
		return "$this"
	case r.IsVar():
		return "$" + r.Name
	case r.Name != "":
		return r.Name
	case r.ID != 0:
		return r.ID.String()
	}
	return "0"
}

// Term is a single query constraint
type Term struct {
	// ID is the matched (component or pair) id. Variables resolve to Wildcard.
	ID     ecs.Id
	Src    TermRef
	First  TermRef
	Second TermRef
	// Trav is the relationship followed by Up and Cascade sources
	Trav  ecs.Entity
	Oper  Oper
	InOut InOut
	// Field is the field index of the term, assigned at compile time
	Field int
}

// NewTerm creates a term for a component or pair id
func NewTerm(id ecs.Id) Term {
	t := Term{ID: id, Field: -1}
	t.First = TermRef{ID: id.First(), Flags: RefEntity}
	if id.IsPair() {
		t.Second = TermRef{ID: id.Second(), Flags: RefEntity}
	}
	return t
}

// IsInitialized reports whether the term carries an id, a source or a target
func (t Term) IsInitialized() bool {
	return t.ID != 0 || t.First.IsSet() || t.Second.IsSet() || t.Src.IsSet()
}

// IsPair reports whether the term matches a pair
func (t Term) IsPair() bool {
	return t.Second.IsSet() || t.ID.IsPair()
}

// IsSelf reports whether the term matches on $this without traversal
func (t Term) IsSelf() bool {
	return (!t.Src.IsSet() || t.Src.IsThis()) && !t.Src.Traverses()
}

// IsFixedSource reports whether the term's source is an entity
func (t Term) IsFixedSource() bool {
	return t.Src.ID != 0 && !t.Src.IsVar()
}

func (t Term) String() string {
	var sb strings.Builder
	if t.InOut != InOutDefault {
		sb.WriteString("[" + t.InOut.String() + "] ")
	}
	switch t.Oper {
	case Not:
		sb.WriteString("!")
	case Optional:
		sb.WriteString("?")
	case AndFrom:
		sb.WriteString("and|")
	case OrFrom:
		sb.WriteString("or|")
	case NotFrom:
		sb.WriteString("not|")
	}

	first := t.First
	if !first.IsSet() {
		first = TermRef{ID: t.ID.First()}
	}
	second := t.Second
	if !second.IsSet() && t.ID.IsPair() {
		second = TermRef{ID: t.ID.Second()}
	}

	src := formatSrc(t)
	switch {
	case src == "" && second.IsSet():
		sb.WriteString("(" + first.String() + ", " + second.String() + ")")
	case src == "":
		sb.WriteString(first.String())
	case second.IsSet():
		sb.WriteString(first.String() + "(" + src + ", " + second.String() + ")")
	default:
		sb.WriteString(first.String() + "(" + src + ")")
	}
	return sb.String()
}

func formatSrc(t Term) string {
	var parts []string
	switch {
	case t.Src.IsThis() || !t.Src.IsSet():
	case t.Src.IsVar():
		parts = append(parts, "$"+t.Src.Name)
	case isSingleton(t):
		parts = append(parts, "$")
	default:
		parts = append(parts, t.Src.String())
	}
	if t.Src.Flags&RefSelf != 0 {
		parts = append(parts, "self")
	}
	var trav string
	if t.Trav != 0 {
		trav = " " + t.Trav.String()
	}
	if t.Src.Flags&RefCascade != 0 {
		parts = append(parts, "cascade"+trav)
	} else if t.Src.Flags&RefUp != 0 {
		parts = append(parts, "up"+trav)
	}
	if t.Src.Flags&RefDesc != 0 {
		parts = append(parts, "desc")
	}
	return strings.Join(parts, "|")
}

// isSingleton reports whether the term's source is its own component
func isSingleton(t Term) bool {
	if t.Second.IsSet() || t.ID.IsPair() {
		return false
	}
	if t.Src.ID != 0 {
		return t.Src.ID == t.ID.First()
	}
	return t.Src.Name != "" && t.Src.Name == t.First.Name
}

// PatternID computes the id matched by the term from its first and second
// elements. Variables and unresolved names become Wildcard.
func (t Term) PatternID() ecs.Id {
	if !t.First.IsSet() {
		return t.ID
	}
	first := refEntity(t.First)
	if !t.Second.IsSet() {
		return first.ID()
	}
	return ecs.Pair(first, refEntity(t.Second))
}

func refEntity(r TermRef) ecs.Entity {
	if r.IsVar() || r.ID == 0 {
		return ecs.Wildcard
	}
	return r.ID
}
