package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/query"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

type Position struct{ X, Y float64 }
type Velocity struct{ X, Y float64 }
type Mass struct{ Value float64 }
type Enemy struct{}

func newWorld() *storage.World {
	w := storage.NewWorld(storage.DefaultOptions())
	storage.ComponentID[Position](w)
	storage.ComponentID[Velocity](w)
	storage.ComponentID[Mass](w)
	storage.ComponentID[Enemy](w)
	return w
}

func newBuilder(w *storage.World) *query.Builder[*Plan] {
	return query.NewBuilder(NewPlanner(w, Options{}).Compile)
}

func compileExpr(t *testing.T, w *storage.World, expr string) *Plan {
	t.Helper()
	plan, err := newBuilder(w).Expr(expr).Build()
	require.NoError(t, err)
	return plan
}

func TestCompileFields(t *testing.T) {
	w := newWorld()
	plan := compileExpr(t, w, "Position, Velocity || Mass, !Enemy")

	assert.Equal(t, 3, plan.FieldCount)
	require.Len(t, plan.Terms, 4)
	assert.Equal(t, []int{0, 1, 1, 2}, []int{
		plan.Terms[0].Field, plan.Terms[1].Field, plan.Terms[2].Field, plan.Terms[3].Field,
	})
	assert.Equal(t, storage.ComponentID[Velocity](w).ID(), plan.FieldTerm(1).ID)
	assert.Equal(t, storage.ComponentID[Enemy](w).ID(), plan.FieldTerm(2).ID)
	assert.True(t, plan.HasThis)
	assert.False(t, plan.Cached)
	assert.Equal(t, -1, plan.Cascade)
	assert.Equal(t, "Position, Velocity || Mass, !Enemy", plan.String())
}

func TestCompileBuilderTermsPrecedeExpr(t *testing.T) {
	w := newWorld()
	plan, err := newBuilder(w).Expr("Velocity").WithName("Position").Build()
	require.NoError(t, err)

	require.Len(t, plan.Terms, 2)
	assert.Equal(t, storage.ComponentID[Position](w).ID(), plan.Terms[0].ID)
	assert.Equal(t, storage.ComponentID[Velocity](w).ID(), plan.Terms[1].ID)
	assert.True(t, plan.Terms[0].Src.IsThis())
}

func TestCompileVariables(t *testing.T) {
	w := newWorld()
	w.NewNamed("Likes")
	plan := compileExpr(t, w, "(Likes, $X), Likes($X, $this)")

	assert.Equal(t, []string{"this", "X"}, plan.Vars)
	i, ok := plan.FindVar("$X")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	i, ok = plan.FindVar("this")
	assert.True(t, ok)
	assert.Equal(t, 0, i)
	i, ok = plan.FindVar("Y")
	assert.False(t, ok)
	assert.Equal(t, -1, i)

	require.Len(t, plan.steps, 2)
	assert.Equal(t, step{0, 0}, plan.steps[0])
	assert.Equal(t, step{1, 1}, plan.steps[1])
}

func TestCompileOrdersVariableSourcesLast(t *testing.T) {
	w := newWorld()
	w.NewNamed("Likes")
	plan := compileExpr(t, w, "Position($X), (Likes, $X)")

	require.Len(t, plan.steps, 2)
	assert.Equal(t, step{1, 1}, plan.steps[0])
	assert.Equal(t, step{0, 0}, plan.steps[1])
	assert.True(t, plan.HasThis)
}

func TestCompileInheritableDefaultsToUp(t *testing.T) {
	w := newWorld()
	require.NoError(t, w.SetInheritable(storage.ComponentID[Mass](w)))

	plan := compileExpr(t, w, "Mass, Position")
	assert.Equal(t, query.RefSelf|query.RefUp|query.RefVariable, plan.Terms[0].Src.Flags)
	assert.Equal(t, ecs.IsA, plan.Terms[0].Trav)
	assert.False(t, plan.Terms[1].Src.Traverses())
}

func TestCompileCacheKinds(t *testing.T) {
	w := newWorld()

	plan, err := newBuilder(w).WithName("Position").Cascade(0).Build()
	require.NoError(t, err)
	assert.True(t, plan.Cached)
	assert.Equal(t, 0, plan.Cascade)

	plan, err = newBuilder(w).WithName("Position").Cached().Build()
	require.NoError(t, err)
	assert.True(t, plan.Cached)

	p := NewPlanner(w, Options{DefaultCacheKind: query.CacheAll})
	plan, err = query.NewBuilder(p.Compile).WithName("Position").Build()
	require.NoError(t, err)
	assert.True(t, plan.Cached)
	assert.Equal(t, query.CacheAll, p.Options().DefaultCacheKind)
}

func TestCompileErrors(t *testing.T) {
	w := newWorld()
	sun := w.NewNamed("Sun")

	tooMany := newBuilder(w)
	for i := 0; i < 33; i++ {
		tooMany.With(storage.ComponentID[Position](w).ID())
	}

	cases := []struct {
		name string
		b    *query.Builder[*Plan]
		kind error
		msg  string
	}{
		{"unresolved name", newBuilder(w).WithName("Nope"),
			ecs.ErrInvalidParameter, "unresolved identifier \"Nope\""},
		{"parse error", newBuilder(w).Expr("Position,"),
			ecs.ErrParse, "expected identifier or variable"},
		{"no terms", newBuilder(w),
			ecs.ErrInvalidParameter, "query has no terms"},
		{"two cascades", newBuilder(w).WithName("Position").Cascade(0).WithName("Velocity").Cascade(0),
			ecs.ErrInvalidParameter, "more than one cascade term"},
		{"cascade on fixed source", newBuilder(w).WithName("Position").SrcID(sun).Cascade(0),
			ecs.ErrInvalidParameter, "cascade requires $this as source"},
		{"uncached cascade", newBuilder(w).WithName("Position").Cascade(0).SetCacheKind(query.CacheNone),
			ecs.ErrInvalidParameter, "cascade requires a cached query"},
		{"or chain with variable source", newBuilder(w).Expr("Position($X) || Velocity"),
			ecs.ErrInvalidParameter, "or chain cannot use a variable source"},
		{"too many fields", tooMany,
			ecs.ErrInvalidParameter, "33 fields exceed the maximum of 32"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.b.Build()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestDescribe(t *testing.T) {
	w := newWorld()
	plan := compileExpr(t, w, "Position, ?Velocity")
	out := plan.Describe(w)
	assert.Contains(t, out, "0: field=0 oper=and id=Position src=$this")
	assert.Contains(t, out, "1: field=1 oper=optional id=Velocity src=$this")
}
