package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/annotations"
	"github.com/wbrown/janus-ecs/ecs/fields"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

type Position struct{ X, Y float64 }
type Velocity struct{ X, Y float64 }
type Gravity struct{ Value float64 }
type Health struct{ Points int }
type Mass struct{ Value float64 }
type Amount struct{ Value int }
type Damaged struct{}

func newWorld() *storage.World {
	return storage.NewWorld(storage.DefaultOptions())
}

// movers creates two moving entities and one static entity
func movers(t *testing.T, w *storage.World) (ecs.Entity, ecs.Entity, ecs.Entity) {
	e1 := w.NewNamed("First")
	require.NoError(t, storage.Set(w, e1, Position{0, 0}))
	require.NoError(t, storage.Set(w, e1, Velocity{1, 2}))
	e2 := w.NewNamed("Second")
	require.NoError(t, storage.Set(w, e2, Position{10, 10}))
	require.NoError(t, storage.Set(w, e2, Velocity{-1, 0}))
	e3 := w.NewNamed("Static")
	require.NoError(t, storage.Set(w, e3, Position{5, 5}))
	return e1, e2, e3
}

func TestEachEntityWritesThroughFields(t *testing.T) {
	w := newWorld()
	e1, e2, _ := movers(t, w)

	q, err := New(w, fields.Mut[Position](), fields.In[Velocity]()).Build()
	require.NoError(t, err)
	assert.Equal(t, 2, q.FieldCount())
	assert.Equal(t, 2, q.Count())
	assert.True(t, q.IsTrue())

	var seen []ecs.Entity
	err = q.EachEntity(func(e ecs.Entity, tp *fields.Tuple) {
		p := fields.Get[Position](tp, 0)
		v := fields.Get[Velocity](tp, 1)
		p.X += v.X
		p.Y += v.Y
		seen = append(seen, e)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []ecs.Entity{e1, e2}, seen)

	p, ok := storage.Get[Position](w, e1)
	require.True(t, ok)
	assert.Equal(t, Position{1, 2}, *p)
	p, ok = storage.Get[Position](w, e2)
	require.True(t, ok)
	assert.Equal(t, Position{9, 10}, *p)
}

func TestEachIterSelfPath(t *testing.T) {
	w := newWorld()
	movers(t, w)

	q, err := New(w, fields.In[Position](), fields.In[Velocity]()).Build()
	require.NoError(t, err)

	rows := 0
	err = q.EachIter(func(it *Iter, row int, tp *fields.Tuple) {
		assert.Equal(t, fields.PathSelf, it.Path())
		assert.True(t, it.IsSelf(0))
		assert.Equal(t, ecs.Entity(0), it.Src(1))
		assert.Same(t, &Field[Position](it, 0)[row], fields.Get[Position](tp, 0))
		assert.Same(t, FieldAt[Velocity](it, 1, row), fields.Get[Velocity](tp, 1))
		rows++
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
}

func TestOptionalField(t *testing.T) {
	w := newWorld()
	_, _, static := movers(t, w)

	q, err := New(w, fields.In[Position](), fields.Opt[Velocity]()).Build()
	require.NoError(t, err)
	assert.Equal(t, 3, q.Count())

	err = q.EachEntity(func(e ecs.Entity, tp *fields.Tuple) {
		v, ok := fields.Lookup[Velocity](tp, 1)
		if e == static {
			assert.False(t, ok)
			assert.Nil(t, v)
			assert.False(t, tp.IsSet(1))
		} else {
			assert.True(t, ok)
		}
		assert.True(t, tp.IsSet(0))
		assert.Equal(t, 2, tp.Len())
	})
	require.NoError(t, err)
}

func TestSingletonField(t *testing.T) {
	w := newWorld()
	movers(t, w)
	require.NoError(t, storage.SetSingleton(w, Gravity{9.8}))

	q, err := New(w, fields.Mut[Velocity](), fields.In[Gravity]()).TermAt(1).Singleton().Build()
	require.NoError(t, err)

	var ptrs []*Gravity
	err = q.EachIter(func(it *Iter, row int, tp *fields.Tuple) {
		assert.Equal(t, fields.PathRef, it.Path())
		assert.Equal(t, storage.ComponentID[Gravity](w), it.Src(1))
		g := fields.Get[Gravity](tp, 1)
		fields.Get[Velocity](tp, 0).Y -= g.Value
		ptrs = append(ptrs, g)
	})
	require.NoError(t, err)
	require.Len(t, ptrs, 2)
	assert.Same(t, ptrs[0], ptrs[1])

	g, ok := storage.GetSingleton[Gravity](w)
	require.True(t, ok)
	assert.Same(t, g, ptrs[0])
}

func TestSparseFieldUsesRowPath(t *testing.T) {
	w := newWorld()
	require.NoError(t, w.SetSparse(storage.ComponentID[Health](w)))
	e1, e2, _ := movers(t, w)
	require.NoError(t, storage.Set(w, e1, Health{10}))
	require.NoError(t, storage.Set(w, e2, Health{20}))

	q, err := New(w, fields.In[Position](), fields.Mut[Health]()).Build()
	require.NoError(t, err)

	err = q.EachIter(func(it *Iter, row int, tp *fields.Tuple) {
		assert.Equal(t, fields.PathRow, it.Path())
		assert.Equal(t, uint32(0b10), it.RowFields())
		fields.Get[Health](tp, 1).Points -= 3
	})
	require.NoError(t, err)

	h, ok := storage.Get[Health](w, e1)
	require.True(t, ok)
	assert.Equal(t, 7, h.Points)
	h, ok = storage.Get[Health](w, e2)
	require.True(t, ok)
	assert.Equal(t, 17, h.Points)
}

func TestInheritedField(t *testing.T) {
	w := newWorld()
	require.NoError(t, w.SetInheritable(storage.ComponentID[Mass](w)))
	base := w.New()
	require.NoError(t, storage.Set(w, base, Mass{5}))
	require.NoError(t, w.Add(base, ecs.Prefab.ID()))

	var instances []ecs.Entity
	for i := 0; i < 2; i++ {
		e := w.New()
		require.NoError(t, w.AddPair(e, ecs.IsA, base))
		require.NoError(t, storage.Set(w, e, Position{float64(i), 0}))
		instances = append(instances, e)
	}

	q, err := New(w, fields.In[Position](), fields.In[Mass]()).Build()
	require.NoError(t, err)

	baseMass, ok := storage.Get[Mass](w, base)
	require.True(t, ok)

	var seen []ecs.Entity
	err = q.EachIter(func(it *Iter, row int, tp *fields.Tuple) {
		assert.Equal(t, fields.PathRef, it.Path())
		assert.Equal(t, base, it.Src(1))
		assert.Equal(t, uint32(0b10), it.UpFields())
		assert.Same(t, baseMass, fields.Get[Mass](tp, 1))
		seen = append(seen, it.Entity(row))
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, instances, seen)
}

func TestPairField(t *testing.T) {
	w := newWorld()
	amount := storage.ComponentID[Amount](w)
	apples := w.NewNamed("Apples")
	alice := w.NewNamed("Alice")
	require.NoError(t, storage.SetPair(w, alice, amount, apples, Amount{3}))

	q, err := New(w, fields.PairTo[Amount](fields.ReadOwned, apples)).Build()
	require.NoError(t, err)
	assert.Equal(t, ecs.Pair(amount, apples), q.Term(0).ID)

	var got []int
	require.NoError(t, q.EachEntity(func(e ecs.Entity, tp *fields.Tuple) {
		got = append(got, fields.Get[Amount](tp, 0).Value)
	}))
	assert.Equal(t, []int{3}, got)
}

func TestPopulateFailure(t *testing.T) {
	w := newWorld()
	likes := w.NewNamed("Likes")
	bob := w.NewNamed("Bob")

	_, err := New(w, fields.PairIDs[Position](fields.ReadOwned, likes, bob)).Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ecs.ErrInvalidOperation)
	assert.Contains(t, err.Error(), "is not a (data) component")
}

func TestDeferredMutationDuringIteration(t *testing.T) {
	w := newWorld()
	e1, e2, _ := movers(t, w)

	q, err := New(w, fields.In[Velocity]()).Build()
	require.NoError(t, err)

	err = q.EachEntity(func(e ecs.Entity, _ *fields.Tuple) {
		assert.True(t, w.IsDeferred())
		require.NoError(t, storage.AddTag[Damaged](w, e))
		assert.False(t, storage.HasComponent[Damaged](w, e))
	})
	require.NoError(t, err)
	assert.False(t, w.IsDeferred())
	assert.True(t, storage.HasComponent[Damaged](w, e1))
	assert.True(t, storage.HasComponent[Damaged](w, e2))

	damaged, err := Parse(w, "Damaged")
	require.NoError(t, err)
	assert.Equal(t, 2, damaged.Count())
}

func TestReplayErrorsAreReturned(t *testing.T) {
	w := newWorld()
	e1, _, _ := movers(t, w)

	q, err := New(w, fields.In[Velocity]()).Build()
	require.NoError(t, err)

	err = q.EachEntity(func(e ecs.Entity, _ *fields.Tuple) {
		if e == e1 {
			require.NoError(t, w.Delete(e))
			require.NoError(t, storage.Set(w, e, Mass{1}))
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ecs.ErrNotAlive)
	assert.False(t, w.IsAlive(e1))
}

func TestRunAdvancesManually(t *testing.T) {
	w := newWorld()
	movers(t, w)

	q, err := New(w, fields.In[Position]()).Build()
	require.NoError(t, err)

	total := 0
	err = q.Run(func(it *Iter) {
		for it.Next() {
			ps := Field[Position](it, 0)
			assert.Len(t, ps, it.Count())
			total += it.Count()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestIterAfterExhaustion(t *testing.T) {
	w := newWorld()
	movers(t, w)

	q, err := New(w, fields.In[Position]()).Build()
	require.NoError(t, err)

	err = q.Run(func(it *Iter) {
		for it.Next() {
		}
		assert.Zero(t, it.Count())
		assert.Zero(t, it.UpFields())
		assert.Zero(t, it.RefFields())
		assert.Zero(t, it.RowFields())
		assert.False(t, it.IsSet(0))
		assert.False(t, it.IsSelf(0))
		assert.Zero(t, it.Src(0))
		assert.Zero(t, it.ID(0))
		assert.Nil(t, it.Column(0))
		assert.Nil(t, it.Table())
		assert.Zero(t, it.GroupID())
		assert.Zero(t, it.GetVar(1))
		assert.Nil(t, Field[Position](it, 0))
	})
	require.NoError(t, err)
}

func TestRunPanicClosesDeferredScope(t *testing.T) {
	w := newWorld()
	e1, _, _ := movers(t, w)

	q, err := New(w, fields.In[Position]()).Build()
	require.NoError(t, err)

	assert.PanicsWithValue(t, "boom", func() {
		_ = q.Run(func(it *Iter) {
			require.NoError(t, storage.AddTag[Damaged](w, e1))
			panic("boom")
		})
	})
	assert.False(t, w.IsDeferred())
	assert.True(t, w.Owns(e1, storage.ComponentID[Damaged](w).ID()))

	assert.Equal(t, 3, q.Count())
}

func TestVariables(t *testing.T) {
	w := newWorld()
	likes := w.NewNamed("Likes")
	alice := w.NewNamed("Alice")
	bob := w.NewNamed("Bob")
	carol := w.NewNamed("Carol")
	dan := w.NewNamed("Dan")
	require.NoError(t, w.AddPair(alice, likes, bob))
	require.NoError(t, w.AddPair(carol, likes, dan))

	q, err := Parse(w, "(Likes, $X)")
	require.NoError(t, err)
	assert.Equal(t, 1, q.FieldCount())

	x, ok := q.FindVar("X")
	require.True(t, ok)
	assert.Equal(t, 1, x)
	i, ok := q.FindVar("Nope")
	assert.False(t, ok)
	assert.Equal(t, -1, i)

	got, err := q.Iter().SetVar("$X", bob).Entities()
	require.NoError(t, err)
	assert.Equal(t, []ecs.Entity{alice}, got)

	got, err = q.Iter().SetVarByIndex(x, dan).Entities()
	require.NoError(t, err)
	assert.Equal(t, []ecs.Entity{carol}, got)

	vars := map[ecs.Entity]ecs.Entity{}
	require.NoError(t, q.EachIter(func(it *Iter, row int, _ *fields.Tuple) {
		vars[it.Entity(row)] = it.GetVarByName("X")
		assert.Equal(t, ecs.Entity(0), it.GetVar(0))
	}))
	assert.Equal(t, map[ecs.Entity]ecs.Entity{alice: bob, carol: dan}, vars)

	_, err = q.Iter().SetVar("Nope", bob).Entities()
	assert.ErrorIs(t, err, ecs.ErrInvalidParameter)
	_, err = q.Iter().SetVarByIndex(0, bob).Entities()
	assert.ErrorIs(t, err, ecs.ErrInvalidParameter)
}

func TestOrChainSharesField(t *testing.T) {
	w := newWorld()
	movers(t, w)
	storage.ComponentID[Mass](w)

	q, err := Parse(w, "Position || Velocity, ?Mass")
	require.NoError(t, err)
	assert.Equal(t, 3, q.TermCount())
	assert.Equal(t, 2, q.FieldCount())
	assert.Equal(t, 3, q.Count())
	assert.Equal(t, "Position || Velocity, ?Mass", q.String())
}

func TestQueryWithoutThis(t *testing.T) {
	w := newWorld()
	require.NoError(t, storage.SetSingleton(w, Gravity{9.8}))

	q, err := Parse(w, "Gravity($)")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Count())

	calls := 0
	require.NoError(t, q.EachIter(func(it *Iter, row int, tp *fields.Tuple) {
		assert.Equal(t, ecs.Entity(0), it.Entity(row))
		assert.Nil(t, it.Table())
		g := FieldAt[Gravity](it, 0, row)
		require.NotNil(t, g)
		assert.Equal(t, 9.8, g.Value)
		calls++
	}))
	assert.Equal(t, 1, calls)
}

func TestClosedQuery(t *testing.T) {
	w := newWorld()
	movers(t, w)

	q, err := New(w, fields.In[Position]()).Build()
	require.NoError(t, err)
	q.Close()
	q.Close()

	err = q.EachEntity(func(ecs.Entity, *fields.Tuple) {})
	assert.ErrorIs(t, err, ecs.ErrInvalidOperation)
	assert.Equal(t, 0, q.Count())
	assert.False(t, q.IsTrue())
}

func TestGroupBy(t *testing.T) {
	w := newWorld()
	eats := w.NewNamed("Eats")
	tgtA := w.NewNamed("TgtA")
	tgtB := w.NewNamed("TgtB")
	tgtC := w.NewNamed("TgtC")

	eatsC := w.New()
	require.NoError(t, w.AddPair(eatsC, eats, tgtC))
	eatsA1 := w.New()
	require.NoError(t, w.AddPair(eatsA1, eats, tgtA))
	eatsA2 := w.New()
	require.NoError(t, w.AddPair(eatsA2, eats, tgtA))
	eatsB := w.New()
	require.NoError(t, w.AddPair(eatsB, eats, tgtB))

	var created []uint64
	q, err := New(w).
		WithPair(eats, ecs.Wildcard).
		GroupBy(eats).
		OnGroupCreate(func(w *storage.World, group uint64, ctx any) any {
			created = append(created, group)
			return w.Name(ecs.Entity(group))
		}).
		Build()
	require.NoError(t, err)

	a, b, c := uint64(tgtA), uint64(tgtB), uint64(tgtC)
	var order []uint64
	var entities []ecs.Entity
	require.NoError(t, q.EachIter(func(it *Iter, row int, _ *fields.Tuple) {
		order = append(order, it.GroupID())
		entities = append(entities, it.Entity(row))
	}))
	assert.Equal(t, []uint64{a, a, b, c}, order)
	assert.Equal(t, []ecs.Entity{eatsA1, eatsA2, eatsB, eatsC}, entities)
	assert.Equal(t, []uint64{a, b, c}, created)
	assert.Equal(t, []uint64{a, b, c}, q.Groups())

	ctx, ok := q.GroupContext(b)
	assert.True(t, ok)
	assert.Equal(t, "TgtB", ctx)

	got, err := q.Iter().SetGroup(b).Entities()
	require.NoError(t, err)
	assert.Equal(t, []ecs.Entity{eatsB}, got)

	got, err = q.Iter().SetGroup(a).Entities()
	require.NoError(t, err)
	assert.Equal(t, []ecs.Entity{eatsA1, eatsA2}, got)

	got, err = q.Iter().SetGroup(12345).Entities()
	require.NoError(t, err)
	assert.Empty(t, got)

	ungrouped, err := Parse(w, "(Eats, *)")
	require.NoError(t, err)
	_, err = ungrouped.Iter().SetGroup(a).Entities()
	assert.ErrorIs(t, err, ecs.ErrInvalidOperation)

	q.Close()
	assert.Empty(t, q.Groups())
}

func TestAnnotations(t *testing.T) {
	var events []annotations.Event
	w := storage.NewWorld(storage.Options{Handler: func(e annotations.Event) {
		events = append(events, e)
	}})
	movers(t, w)

	names := func() []string {
		var out []string
		for _, e := range events {
			out = append(out, e.Name)
		}
		return out
	}

	q, err := New(w, fields.In[Position]()).Named("positions").Build()
	require.NoError(t, err)
	assert.Contains(t, names(), annotations.QueryBuilt)

	events = nil
	require.NoError(t, q.EachEntity(func(e ecs.Entity, _ *fields.Tuple) {
		require.NoError(t, storage.AddTag[Damaged](w, e))
	}))
	assert.Contains(t, names(), annotations.BatchResolved)
	assert.Contains(t, names(), annotations.DeferFlushed)
	assert.Contains(t, names(), annotations.QueryIterated)

	for _, e := range events {
		switch e.Name {
		case annotations.BatchResolved:
			assert.Equal(t, "self", e.Data["path"])
			assert.Equal(t, q.ID().String(), e.Data["query.id"])
		case annotations.QueryIterated:
			assert.Equal(t, "positions", e.Data["name"])
			assert.Equal(t, 3, e.Data["rows"])
		case annotations.DeferFlushed:
			assert.Equal(t, 3, e.Data["commands"])
		}
	}

	events = nil
	_, err = Parse(w, "Nope")
	require.Error(t, err)
	assert.Equal(t, []string{annotations.QueryBuildFailed}, names())

	events = nil
	q.Close()
	assert.Equal(t, []string{annotations.QueryClosed}, names())
}
