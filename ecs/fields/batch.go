package fields

import (
	"fmt"

	"github.com/wbrown/janus-ecs/ecs"
)

// Batch is one matched table as reported by the host iterator. Field
// indices follow the order of the specs.
type Batch interface {
	// Count returns the number of rows
	Count() int
	// RefFields has bit i set when field i is shared by all rows
	RefFields() uint32
	// UpFields has bit i set when field i was matched by traversal
	UpFields() uint32
	// RowFields has bit i set when field i must be fetched per row
	RowFields() uint32
	// IsSet reports whether field i matched
	IsSet(i int) bool
	// Src returns the source entity of field i, 0 for $this
	Src(i int) ecs.Entity
	// Column returns field i as a []T view, one element long for shared
	// fields, nil when the field has no data
	Column(i int) any
	// FieldAt returns a *T to field i for row, or nil
	FieldAt(i, row int) any
}

// Kind classifies a field within one batch
type Kind uint8

const (
	// Unset fields did not match. Only optional fields are unset.
	Unset Kind = iota
	// Owned fields are indexed by row
	Owned
	// Broadcast fields have one value for every row
	Broadcast
	// RowFetch fields are fetched from the host for every row
	RowFetch
	// Tag fields carry no data
	Tag
)

func (k Kind) String() string {
	switch k {
	case Unset:
		return "unset"
	case Owned:
		return "owned"
	case Broadcast:
		return "broadcast"
	case RowFetch:
		return "row"
	case Tag:
		return "tag"
	}
	return "unknown"
}

// Path is the materialization path selected once per batch
type Path uint8

const (
	// PathSelf is the plain path entered without ref and row detection
	PathSelf Path = iota
	// PathPlain indexes every field by row
	PathPlain
	// PathRef reads broadcast fields at index 0
	PathRef
	// PathRow fetches row fields from the host
	PathRow
)

func (p Path) String() string {
	switch p {
	case PathSelf:
		return "self"
	case PathPlain:
		return "plain"
	case PathRef:
		return "ref"
	case PathRow:
		return "row"
	}
	return "unknown"
}

// Column is the per batch binding of one field
type Column struct {
	Kind Kind
	// data is the []T view of an Owned field
	data any
	// ptr is the *T of a Broadcast field
	ptr any
	// field is the host field index of a RowFetch field
	field int
}

// Pointers resolves batches for a fixed list of specs. It is reused across
// batches and rows and does not allocate after construction.
type Pointers struct {
	specs []Spec
	cols  [MaxFields]Column
	path  Path
}

// NewPointers creates a resolver for specs
func NewPointers(specs []Spec) *Pointers {
	if len(specs) > MaxFields {
		panic(fmt.Sprintf("fields: %d fields exceed the maximum of %d", len(specs), MaxFields))
	}
	return &Pointers{specs: specs}
}

// Len returns the number of fields
func (p *Pointers) Len() int {
	return len(p.specs)
}

// Path returns the path selected by the last Resolve
func (p *Pointers) Path() Path {
	return p.path
}

// Column returns the binding of field i from the last Resolve
func (p *Pointers) Column(i int) Column {
	return p.cols[i]
}

// Resolve classifies every field of b and selects the materialization path
// for all of its rows: row > ref > plain.
func (p *Pointers) Resolve(b Batch) Path {
	if b.RefFields()|b.UpFields()|b.RowFields() == 0 {
		p.resolveSelf(b)
		p.path = PathSelf
		return p.path
	}

	anyRef, anyRow := false, false
	rows := b.RowFields()
	for i := range p.specs {
		s := &p.specs[i]
		col := &p.cols[i]
		*col = Column{}
		switch {
		case rows&(1<<uint(i)) != 0:
			col.Kind = RowFetch
			col.field = i
			anyRow = true
		case !b.IsSet(i):
			col.Kind = Unset
		case s.IsTag:
			col.Kind = Tag
		case b.Src(i) != 0:
			data := b.Column(i)
			if data == nil {
				col.Kind = Unset
				break
			}
			col.Kind = Broadcast
			col.ptr = s.index(data, 0)
			anyRef = true
		default:
			col.data = b.Column(i)
			col.Kind = Owned
			if col.data == nil {
				col.Kind = Unset
			}
		}
		if debug {
			p.checkColumn(b, i)
		}
	}

	switch {
	case anyRow:
		p.path = PathRow
	case anyRef:
		p.path = PathRef
	default:
		p.path = PathPlain
	}
	return p.path
}

// resolveSelf binds every field as owned by $this
func (p *Pointers) resolveSelf(b Batch) {
	for i := range p.specs {
		if debug && b.Src(i) != 0 {
			panic(fmt.Sprintf("fields: unexpected source %s for field %d", b.Src(i), i))
		}
		col := &p.cols[i]
		*col = Column{}
		switch {
		case !b.IsSet(i):
			col.Kind = Unset
		case p.specs[i].IsTag:
			col.Kind = Tag
		default:
			col.data = b.Column(i)
			col.Kind = Owned
			if col.data == nil {
				col.Kind = Unset
			}
		}
		if debug {
			p.checkColumn(b, i)
		}
	}
}

// Row materializes row of the last resolved batch into t
func (p *Pointers) Row(b Batch, row int, t *Tuple) {
	t.n = len(p.specs)
	switch p.path {
	case PathRow:
		for i := range p.specs {
			t.cells[i] = p.rowCell(b, i, row)
		}
	case PathRef:
		for i := range p.specs {
			t.cells[i] = p.refCell(i, row)
		}
	default:
		for i := range p.specs {
			t.cells[i] = p.plainCell(i, row)
		}
	}
	if debug {
		p.checkTuple(t)
	}
}

func (p *Pointers) plainCell(i, row int) any {
	col := &p.cols[i]
	switch col.Kind {
	case Owned:
		return p.specs[i].index(col.data, row)
	case Tag:
		return p.specs[i].tag
	}
	return nil
}

func (p *Pointers) refCell(i, row int) any {
	if col := &p.cols[i]; col.Kind == Broadcast {
		return col.ptr
	}
	return p.plainCell(i, row)
}

func (p *Pointers) rowCell(b Batch, i, row int) any {
	col := &p.cols[i]
	if col.Kind != RowFetch {
		return p.refCell(i, row)
	}
	ptr := b.FieldAt(col.field, row)
	if ptr == nil {
		return nil
	}
	if p.specs[i].IsTag {
		return p.specs[i].tag
	}
	return ptr
}
