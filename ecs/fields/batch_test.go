package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-ecs/ecs"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Gravity struct {
	Value float64
}

type Frozen struct{}

// fakeBatch is a hand-built host batch
type fakeBatch struct {
	count        int
	ref, up, row uint32
	unset        uint32
	srcs         map[int]ecs.Entity
	cols         map[int]any
	fetch        func(i, row int) any
	fetched      int
}

func (b *fakeBatch) Count() int        { return b.count }
func (b *fakeBatch) RefFields() uint32 { return b.ref }
func (b *fakeBatch) UpFields() uint32  { return b.up }
func (b *fakeBatch) RowFields() uint32 { return b.row }
func (b *fakeBatch) IsSet(i int) bool  { return b.unset&(1<<uint(i)) == 0 }
func (b *fakeBatch) Src(i int) ecs.Entity {
	return b.srcs[i]
}
func (b *fakeBatch) Column(i int) any {
	return b.cols[i]
}
func (b *fakeBatch) FieldAt(i, row int) any {
	b.fetched++
	if b.fetch == nil {
		return nil
	}
	return b.fetch(i, row)
}

func TestResolveSelfPath(t *testing.T) {
	ptrs := NewPointers([]Spec{Mut[Position](), In[Velocity]()})
	b := &fakeBatch{
		count: 2,
		cols: map[int]any{
			0: []Position{{X: 1}, {X: 2}},
			1: []Velocity{{X: 10}, {X: 20}},
		},
	}
	require.Equal(t, PathSelf, ptrs.Resolve(b))
	assert.Equal(t, Owned, ptrs.Column(0).Kind)
	assert.Equal(t, Owned, ptrs.Column(1).Kind)

	var tup Tuple
	for row := 0; row < b.Count(); row++ {
		ptrs.Row(b, row, &tup)
		p, v := Get[Position](&tup, 0), Get[Velocity](&tup, 1)
		p.X += v.X
	}
	assert.Equal(t, []Position{{X: 11}, {X: 22}}, b.cols[0], "writes go to the column")
	assert.Equal(t, 2, tup.Len())
	assert.Zero(t, b.fetched)
}

func TestResolveBroadcast(t *testing.T) {
	ptrs := NewPointers([]Spec{In[Position](), In[Gravity]()})
	gravity := []Gravity{{Value: 9.8}}
	b := &fakeBatch{
		count: 3,
		ref:   1 << 1,
		srcs:  map[int]ecs.Entity{1: 500},
		cols: map[int]any{
			0: []Position{{X: 1}, {X: 2}, {X: 3}},
			1: gravity,
		},
	}
	require.Equal(t, PathRef, ptrs.Resolve(b))
	assert.Equal(t, Broadcast, ptrs.Column(1).Kind)

	var tup Tuple
	for row := 0; row < b.Count(); row++ {
		ptrs.Row(b, row, &tup)
		assert.Equal(t, float64(row+1), Get[Position](&tup, 0).X)
		assert.Same(t, &gravity[0], Get[Gravity](&tup, 1), "row %d reads the shared value", row)
	}
}

func TestResolveOptionalAbsent(t *testing.T) {
	ptrs := NewPointers([]Spec{In[Position](), Opt[Velocity]()})
	b := &fakeBatch{
		count: 2,
		unset: 1 << 1,
		cols:  map[int]any{0: []Position{{X: 1}, {X: 2}}},
	}
	require.Equal(t, PathSelf, ptrs.Resolve(b))
	assert.Equal(t, Unset, ptrs.Column(1).Kind)

	var tup Tuple
	ptrs.Row(b, 1, &tup)
	assert.True(t, tup.IsSet(0))
	assert.False(t, tup.IsSet(1))
	assert.Nil(t, Get[Velocity](&tup, 1))
	_, ok := Lookup[Velocity](&tup, 1)
	assert.False(t, ok)
}

func TestResolveOptionalAbsentOnRefPath(t *testing.T) {
	ptrs := NewPointers([]Spec{In[Position](), Opt[Velocity](), In[Gravity]()})
	b := &fakeBatch{
		count: 1,
		ref:   1 << 2,
		unset: 1 << 1,
		srcs:  map[int]ecs.Entity{2: 500},
		cols: map[int]any{
			0: []Position{{X: 1}},
			2: []Gravity{{Value: 1}},
		},
	}
	require.Equal(t, PathRef, ptrs.Resolve(b))
	var tup Tuple
	ptrs.Row(b, 0, &tup)
	assert.Nil(t, tup.Cell(1))
	assert.NotNil(t, Get[Gravity](&tup, 2))
}

func TestResolveRowFetchWins(t *testing.T) {
	ptrs := NewPointers([]Spec{In[Position](), In[Gravity](), In[Velocity]()})
	sparse := []Velocity{{X: 5}, {X: 6}}
	b := &fakeBatch{
		count: 2,
		ref:   1<<1 | 1<<2,
		row:   1 << 2,
		srcs:  map[int]ecs.Entity{1: 500},
		cols: map[int]any{
			0: []Position{{X: 1}, {X: 2}},
			1: []Gravity{{Value: 3}},
		},
		fetch: func(i, row int) any {
			if i != 2 {
				return nil
			}
			return &sparse[row]
		},
	}
	require.Equal(t, PathRow, ptrs.Resolve(b), "row beats ref")
	assert.Equal(t, RowFetch, ptrs.Column(2).Kind)
	assert.Equal(t, Broadcast, ptrs.Column(1).Kind)

	var tup Tuple
	for row := 0; row < 2; row++ {
		ptrs.Row(b, row, &tup)
		assert.Same(t, &sparse[row], Get[Velocity](&tup, 2))
		assert.Equal(t, 3.0, Get[Gravity](&tup, 1).Value)
		assert.Equal(t, float64(row+1), Get[Position](&tup, 0).X)
	}
	assert.Equal(t, 2, b.fetched, "only row fields are fetched")
}

func TestResolveUpWithoutRef(t *testing.T) {
	ptrs := NewPointers([]Spec{In[Position]()})
	b := &fakeBatch{
		count: 1,
		up:    1,
		cols:  map[int]any{0: []Position{{X: 4}}},
	}
	assert.Equal(t, PathPlain, ptrs.Resolve(b), "up without a source still leaves the fast path")
	var tup Tuple
	ptrs.Row(b, 0, &tup)
	assert.Equal(t, 4.0, Get[Position](&tup, 0).X)
}

func TestResolveTag(t *testing.T) {
	ptrs := NewPointers([]Spec{In[Position](), In[Frozen]()})
	b := &fakeBatch{
		count: 2,
		cols:  map[int]any{0: []Position{{}, {}}},
	}
	ptrs.Resolve(b)
	assert.Equal(t, Tag, ptrs.Column(1).Kind)

	var tup Tuple
	ptrs.Row(b, 0, &tup)
	assert.True(t, tup.IsSet(1))
	assert.NotNil(t, Get[Frozen](&tup, 1))
}

func TestPointersReuseAcrossBatches(t *testing.T) {
	ptrs := NewPointers([]Spec{In[Position](), In[Gravity]()})
	shared := &fakeBatch{
		count: 1,
		ref:   1 << 1,
		srcs:  map[int]ecs.Entity{1: 500},
		cols:  map[int]any{0: []Position{{X: 1}}, 1: []Gravity{{Value: 1}}},
	}
	owned := &fakeBatch{
		count: 1,
		cols:  map[int]any{0: []Position{{X: 2}}, 1: []Gravity{{Value: 2}}},
	}
	assert.Equal(t, PathRef, ptrs.Resolve(shared))
	assert.Equal(t, PathSelf, ptrs.Resolve(owned))
	assert.Equal(t, Owned, ptrs.Column(1).Kind, "classification is recomputed per batch")

	var tup Tuple
	ptrs.Row(owned, 0, &tup)
	assert.Equal(t, 2.0, Get[Gravity](&tup, 1).Value)
}

func TestNewPointersLimit(t *testing.T) {
	specs := make([]Spec, MaxFields+1)
	for i := range specs {
		specs[i] = In[Position]()
	}
	assert.Panics(t, func() { NewPointers(specs) })
	assert.NotPanics(t, func() { NewPointers(specs[:MaxFields]) })
}

func TestKindAndPathStrings(t *testing.T) {
	assert.Equal(t, "broadcast", Broadcast.String())
	assert.Equal(t, "row", RowFetch.String())
	assert.Equal(t, "ref", PathRef.String())
	assert.Equal(t, "self", PathSelf.String())
}
