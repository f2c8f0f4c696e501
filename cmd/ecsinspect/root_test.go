package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-ecs/ecs/query"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--color", "never"))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "ecsinspect", cmd.Use)

	for _, name := range []string{"demo", "query", "repl"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	for _, flag := range []string{"config", "verbose", "metrics", "color", "cache"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("", nil)
		require.NoError(t, err)
		assert.Equal(t, "auto", cfg.Color)
		assert.Equal(t, "default", cfg.Cache)
		assert.False(t, cfg.Verbose)
		kind, err := cfg.CacheKind()
		require.NoError(t, err)
		assert.Equal(t, query.CacheDefault, kind)
	})

	t.Run("file then env then flags", func(t *testing.T) {
		path := writeFile(t, "ecsinspect.yaml", "color: never\ncache: none\nverbose: true\n")
		t.Setenv("ECSINSPECT_CACHE", "all")

		cmd := NewRootCommand()
		require.NoError(t, cmd.ParseFlags([]string{"--color", "always"}))

		cfg, err := LoadConfig(path, cmd)
		require.NoError(t, err)
		assert.True(t, cfg.Verbose)
		assert.Equal(t, "all", cfg.Cache)
		assert.Equal(t, "always", cfg.Color)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Setenv("ECSINSPECT_CACHE", "sometimes")
		_, err := LoadConfig("", nil)
		assert.ErrorContains(t, err, "invalid cache kind")

		t.Setenv("ECSINSPECT_CACHE", "")
		t.Setenv("ECSINSPECT_COLOR", "purple")
		_, err = LoadConfig("", nil)
		assert.ErrorContains(t, err, "invalid color")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		assert.ErrorContains(t, err, "read config")
	})
}

func TestDemoCommand(t *testing.T) {
	out, err := execute(t, "", "demo", "--metrics")
	require.NoError(t, err)

	for _, heading := range []string{
		"=== Movement ===",
		"=== Prefab inheritance ===",
		"=== Singleton ===",
		"=== Sparse health ===",
		"=== Mutual likes ===",
		"=== Hierarchy (cascade) ===",
		"=== Grouped by food ===",
		"=== Deferred mutations ===",
		"=== Metrics ===",
	} {
		assert.Contains(t, out, heading)
	}
	assert.Contains(t, out, "Voyager")
	assert.Contains(t, out, "total weight:")
	assert.Contains(t, out, "eaters of Apples: 2")
	assert.Contains(t, out, "eaters of Pears: 1")
	assert.Contains(t, out, "ecs_queries_built_total")
}

func TestQueryCommand(t *testing.T) {
	scenario := writeFile(t, "world.yaml", `
entities:
  - name: Alice
    pairs: [{rel: Likes, target: Bob}]
  - name: Bob
    pairs: [{rel: Likes, target: Alice}]
  - name: Carol
    pairs: [{rel: Likes, target: Alice}]
`)

	t.Run("bound variable", func(t *testing.T) {
		out, err := execute(t, "", "query", "(Likes, $X)", "-s", scenario, "--var", "X=Alice", "--plan")
		require.NoError(t, err)
		assert.Contains(t, out, "=== Plan ===")
		assert.Contains(t, out, "Bob")
		assert.Contains(t, out, "Carol")
		assert.Contains(t, out, "_2 rows_")
	})

	t.Run("grouped", func(t *testing.T) {
		out, err := execute(t, "", "query", "(Likes, *)", "-s", scenario, "--group-by", "Likes")
		require.NoError(t, err)
		assert.Contains(t, out, "group Alice: 2")
		assert.Contains(t, out, "group Bob: 1")
	})

	t.Run("errors", func(t *testing.T) {
		_, err := execute(t, "", "query", "(Likes, $X)", "-s", scenario, "--var", "X")
		assert.ErrorContains(t, err, "expected X=name")

		_, err = execute(t, "", "query", "(Likes, $X)", "-s", scenario, "--var", "X=Nobody")
		assert.ErrorContains(t, err, "unknown entity")

		_, err = execute(t, "", "query", "Position,", "-s", scenario)
		assert.Error(t, err)

		_, err = execute(t, "", "query")
		assert.Error(t, err)
	})
}

func TestReplCommand(t *testing.T) {
	scenario := writeFile(t, "world.yaml", "entities:\n  - name: Alice\n    position: {x: 1, y: 2}\n")
	in := "\n.help\n.bogus\n.tables\nPosition\nVelocity\nNope\n.exit\nignored\n"

	out, err := execute(t, in, "repl", "-s", scenario)
	require.NoError(t, err)
	assert.Contains(t, out, "=== ecsinspect ===")
	assert.Contains(t, out, "Enter query expressions")
	assert.Contains(t, out, "Unknown command")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "_1 rows_")
	assert.Contains(t, out, "_No rows_")
	assert.Contains(t, out, "Parse error:")
}
