//go:build ecsdebug

package fields

import "fmt"

const debug = true

func (p *Pointers) checkColumn(b Batch, i int) {
	col := &p.cols[i]
	if col.Kind == Owned {
		if n := p.specs[i].length(col.data); n < b.Count() {
			panic(fmt.Sprintf("fields: column %d has %d rows, batch has %d", i, n, b.Count()))
		}
	}
}

func (p *Pointers) checkTuple(t *Tuple) {
	for i := range p.specs {
		if t.cells[i] == nil && !p.specs[i].Access.Optional() {
			panic(fmt.Sprintf("fields: required field %d (%s) is absent", i, p.specs[i]))
		}
	}
}
