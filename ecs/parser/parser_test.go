package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/query"
)

type mapResolver map[string]ecs.Entity

func (m mapResolver) Lookup(name string) (ecs.Entity, bool) {
	e, ok := m[name]
	return e, ok
}

const (
	position ecs.Entity = ecs.FirstUserEntity + iota
	velocity
	mass
	gravity
	enemy
	likes
	earth
	set
)

var names = mapResolver{
	"Position": position,
	"Velocity": velocity,
	"Mass":     mass,
	"Gravity":  gravity,
	"Enemy":    enemy,
	"Likes":    likes,
	"Earth":    earth,
	"Set":      set,
}

func TestLexer(t *testing.T) {
	l := NewLexer("(Likes, $X) || !A($)")
	require.NoError(t, l.Lex())

	var types []TokenType
	for _, tok := range l.Tokens() {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TokenLeftParen, TokenIdent, TokenComma, TokenVariable, TokenRightParen,
		TokenOrOr, TokenBang, TokenIdent, TokenLeftParen, TokenDollar, TokenRightParen,
		TokenEOF,
	}, types)

	tokens := l.Tokens()
	assert.Equal(t, "Likes", tokens[1].Value)
	assert.Equal(t, "X", tokens[3].Value)
	assert.Equal(t, 9, tokens[3].Col)
	assert.Equal(t, "Variable[1:9]:$X", tokens[3].String())

	assert.Equal(t, tokens[0], l.PeekToken())
	assert.Equal(t, tokens[0], l.NextToken())
	assert.Equal(t, tokens[2], l.PeekN(1))
}

func TestLexerRejectsUnknownCharacters(t *testing.T) {
	err := NewLexer("Position @").Lex()
	require.Error(t, err)
	assert.ErrorIs(t, err, ecs.ErrParse)
	assert.Contains(t, err.Error(), "at 1:10")
}

func TestParseComponents(t *testing.T) {
	terms, err := Parse("Position, Velocity", names)
	require.NoError(t, err)
	require.Len(t, terms, 2)

	assert.Equal(t, position.ID(), terms[0].ID)
	assert.Equal(t, "Position", terms[0].First.Name)
	assert.Equal(t, query.RefEntity, terms[0].First.Flags)
	assert.Equal(t, query.And, terms[0].Oper)
	assert.Equal(t, -1, terms[0].Field)
	assert.True(t, terms[0].IsSelf())
	assert.Equal(t, velocity.ID(), terms[1].ID)
}

func TestParseOperators(t *testing.T) {
	terms, err := Parse("!Enemy, ?Velocity, Position || Mass, and|Set, or|Set, not|Set", names)
	require.NoError(t, err)
	require.Len(t, terms, 7)

	assert.Equal(t, query.Not, terms[0].Oper)
	assert.Equal(t, query.Optional, terms[1].Oper)
	assert.Equal(t, query.Or, terms[2].Oper)
	assert.Equal(t, query.And, terms[3].Oper)
	assert.Equal(t, query.AndFrom, terms[4].Oper)
	assert.Equal(t, query.OrFrom, terms[5].Oper)
	assert.Equal(t, query.NotFrom, terms[6].Oper)
	assert.Equal(t, set.ID(), terms[6].ID)
}

func TestParseInOut(t *testing.T) {
	cases := map[string]query.InOut{
		"[in] Position":     query.In,
		"[out] Position":    query.Out,
		"[inout] Position":  query.InOutBoth,
		"[none] Position":   query.InOutNone,
		"[filter] Position": query.Filter,
	}
	for expr, want := range cases {
		t.Run(expr, func(t *testing.T) {
			terms, err := Parse(expr, names)
			require.NoError(t, err)
			require.Len(t, terms, 1)
			assert.Equal(t, want, terms[0].InOut)
		})
	}
}

func TestParsePairs(t *testing.T) {
	terms, err := Parse("(Likes, Earth), (Likes, *), (Likes, $X), Likes($X, $this)", names)
	require.NoError(t, err)
	require.Len(t, terms, 4)

	assert.Equal(t, ecs.Pair(likes, earth), terms[0].ID)
	assert.Equal(t, ecs.Pair(likes, ecs.Wildcard), terms[1].ID)
	assert.Empty(t, terms[1].Second.Name)
	assert.Equal(t, ecs.Wildcard, terms[1].Second.ID)

	assert.Equal(t, ecs.Pair(likes, ecs.Wildcard), terms[2].ID)
	assert.True(t, terms[2].Second.IsVar())
	assert.Equal(t, "X", terms[2].Second.Name)

	assert.Equal(t, ecs.Pair(likes, ecs.Wildcard), terms[3].ID)
	assert.True(t, terms[3].Src.IsVar())
	assert.Equal(t, "X", terms[3].Src.Name)
	assert.True(t, terms[3].Second.IsThis())
	assert.Equal(t, ecs.This, terms[3].Second.ID)
}

func TestParseSources(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		terms, err := Parse("Position(Earth)", names)
		require.NoError(t, err)
		assert.Equal(t, earth, terms[0].Src.ID)
		assert.True(t, terms[0].IsFixedSource())
		assert.False(t, terms[0].IsSelf())
	})

	t.Run("singleton", func(t *testing.T) {
		terms, err := Parse("Gravity($)", names)
		require.NoError(t, err)
		assert.Equal(t, gravity, terms[0].Src.ID)
		assert.Equal(t, query.RefEntity, terms[0].Src.Flags)
	})

	t.Run("up defaults to ChildOf", func(t *testing.T) {
		terms, err := Parse("Position(up)", names)
		require.NoError(t, err)
		assert.Equal(t, query.RefUp, terms[0].Src.Flags)
		assert.Equal(t, ecs.ChildOf, terms[0].Trav)
	})

	t.Run("self and up with relationship", func(t *testing.T) {
		terms, err := Parse("Mass(self|up IsA)", names)
		require.NoError(t, err)
		assert.Equal(t, query.RefSelf|query.RefUp, terms[0].Src.Flags)
		assert.Equal(t, ecs.IsA, terms[0].Trav)
	})

	t.Run("cascade desc", func(t *testing.T) {
		terms, err := Parse("Position(cascade|desc)", names)
		require.NoError(t, err)
		assert.Equal(t, query.RefCascade|query.RefDesc, terms[0].Src.Flags)
		assert.Equal(t, ecs.ChildOf, terms[0].Trav)
	})
}

func TestParseRoundTrip(t *testing.T) {
	exprs := []string{
		"Position",
		"[in] Position",
		"!Enemy",
		"?Velocity",
		"and|Set",
		"(Likes, Earth)",
		"(Likes, $X)",
		"Likes($X, $this)",
		"Position(Earth)",
		"Gravity($)",
		"Mass(self|up IsA)",
		"Mass(self)",
		"Position(Earth|self)",
		"Position(cascade ChildOf)",
		"Position(cascade ChildOf|desc)",
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			terms, err := Parse(expr, names)
			require.NoError(t, err)
			require.Len(t, terms, 1)
			assert.Equal(t, expr, terms[0].String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		expr string
		msg  string
	}{
		{"", "empty expression"},
		{"Position, Nope", "unresolved identifier \"Nope\" at 1:11"},
		{"!Enemy || Position", "cannot combine not with or"},
		{"Position(", "expected identifier or variable"},
		{"(Likes Earth)", "expected ','"},
		{"[maybe] Position", "unknown inout kind"},
		{"$X($)", "singleton source requires a fixed component"},
		{"Position Velocity", "expected ',' or '||'"},
		{"xor|Set", "unknown operator"},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := Parse(tc.expr, names)
			require.Error(t, err)
			assert.ErrorIs(t, err, ecs.ErrParse)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestParseWithoutResolver(t *testing.T) {
	terms, err := Parse("(ChildOf, *), Prefab", nil)
	require.NoError(t, err)
	assert.Equal(t, ecs.Pair(ecs.ChildOf, ecs.Wildcard), terms[0].ID)
	assert.Equal(t, ecs.Prefab.ID(), terms[1].ID)
	assert.Empty(t, terms[1].First.Name)
}
