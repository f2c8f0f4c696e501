package fields

// Tuple is one materialized row. Each cell holds a *T into storage owned by
// the host, valid for the duration of the row callback, or nil for an
// absent optional field.
type Tuple struct {
	cells [MaxFields]any
	n     int
}

// Len returns the number of fields
func (t *Tuple) Len() int {
	return t.n
}

// IsSet reports whether field i is present
func (t *Tuple) IsSet(i int) bool {
	return t.cells[i] != nil
}

// Cell returns field i as a *T in an interface, or nil
func (t *Tuple) Cell(i int) any {
	return t.cells[i]
}

// Get returns field i as *T. It returns nil for an absent optional field.
func Get[T any](t *Tuple, i int) *T {
	p, _ := t.cells[i].(*T)
	return p
}

// Lookup returns field i as *T and whether it is present
func Lookup[T any](t *Tuple, i int) (*T, bool) {
	p, ok := t.cells[i].(*T)
	return p, ok && p != nil
}
