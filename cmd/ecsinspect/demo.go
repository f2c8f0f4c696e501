package main

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/executor"
	"github.com/wbrown/janus-ecs/ecs/fields"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

//go:embed scenarios/demo.yaml
var demoScenario []byte

// NewDemoCommand creates the demo command
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the built-in demo queries",
		Long: `Build the demo world and run typed queries over it: movement,
prefab inheritance, singletons, sparse components, variables, cascade
ordering, grouping and deferred mutations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			if err := runDemo(s); err != nil {
				return err
			}
			return s.printMetrics()
		},
	}
}

func runDemo(s *session) error {
	sc, err := ReadScenario(bytes.NewReader(demoScenario))
	if err != nil {
		return err
	}
	if err := sc.Apply(s.world); err != nil {
		return err
	}
	for _, step := range []struct {
		title string
		run   func(*session) error
	}{
		{"Movement", demoMovement},
		{"Prefab inheritance", demoInheritance},
		{"Singleton", demoSingleton},
		{"Sparse health", demoSparse},
		{"Mutual likes", demoVariables},
		{"Hierarchy (cascade)", demoCascade},
		{"Grouped by food", demoGroups},
		{"Deferred mutations", demoDeferred},
	} {
		s.heading("=== %s ===", step.title)
		if err := step.run(s); err != nil {
			return fmt.Errorf("%s: %w", step.title, err)
		}
		fmt.Fprintln(s.out)
	}
	return nil
}

func (s *session) print(q *executor.Query) error {
	out, err := executor.NewTableFormatter().FormatQuery(q)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, out)
	return nil
}

func demoMovement(s *session) error {
	q, err := executor.NewWithOptions(s.world, s.options,
		fields.Mut[Position](), fields.In[Velocity]()).Build()
	if err != nil {
		return err
	}
	defer q.Close()

	err = q.EachEntity(func(e ecs.Entity, t *fields.Tuple) {
		p, v := fields.Get[Position](t, 0), fields.Get[Velocity](t, 1)
		p.X += v.X
		p.Y += v.Y
	})
	if err != nil {
		return err
	}
	return s.print(q)
}

func demoInheritance(s *session) error {
	q, err := executor.NewWithOptions(s.world, s.options, fields.In[Mass]()).Build()
	if err != nil {
		return err
	}
	defer q.Close()
	return s.print(q)
}

func demoSingleton(s *session) error {
	q, err := executor.NewWithOptions(s.world, s.options,
		fields.In[Position](), fields.In[Gravity]()).
		TermAt(1).Singleton().
		Build()
	if err != nil {
		return err
	}
	defer q.Close()

	var weight float64
	err = q.EachEntity(func(e ecs.Entity, t *fields.Tuple) {
		if m, ok := storage.Get[Mass](s.world, e); ok {
			weight += m.Value * fields.Get[Gravity](t, 1).Value
		}
	})
	if err != nil {
		return err
	}
	if err := s.print(q); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "total weight: %.1f\n", weight)
	return nil
}

func demoSparse(s *session) error {
	q, err := executor.NewWithOptions(s.world, s.options,
		fields.In[Health](), fields.In[Position]()).Build()
	if err != nil {
		return err
	}
	defer q.Close()
	return s.print(q)
}

func demoVariables(s *session) error {
	q, err := executor.NewWithOptions(s.world, s.options).
		Expr("(Likes, $X), Likes($X, $this)").
		Build()
	if err != nil {
		return err
	}
	defer q.Close()
	return s.print(q)
}

func demoCascade(s *session) error {
	q, err := executor.NewWithOptions(s.world, s.options,
		fields.In[Position](), fields.Opt[Position]()).
		TermAt(1).Cascade(ecs.ChildOf).
		Build()
	if err != nil {
		return err
	}
	defer q.Close()
	return s.print(q)
}

func demoGroups(s *session) error {
	eats, ok := s.world.Lookup("Eats")
	if !ok {
		return fmt.Errorf("no Eats relationship in the demo world")
	}
	q, err := executor.NewWithOptions(s.world, s.options).
		WithPair(eats, ecs.Wildcard).
		GroupBy(eats).
		OnGroupCreate(func(w *storage.World, group uint64, _ any) any {
			return "eaters of " + w.Name(ecs.Entity(group))
		}).
		Build()
	if err != nil {
		return err
	}
	defer q.Close()

	if err := s.print(q); err != nil {
		return err
	}
	for _, g := range q.Groups() {
		label, _ := q.GroupContext(g)
		n := q.Iter().SetGroup(g).Count()
		fmt.Fprintf(s.out, "%s: %d\n", label, n)
	}
	return nil
}

func demoDeferred(s *session) error {
	damaged := s.world.NewNamed("Damaged")
	q, err := executor.NewWithOptions(s.world, s.options, fields.In[Health]()).Build()
	if err != nil {
		return err
	}
	defer q.Close()

	err = q.EachEntity(func(e ecs.Entity, t *fields.Tuple) {
		if fields.Get[Health](t, 0).Points < 70 {
			// queued until the iteration ends
			_ = s.world.Add(e, damaged.ID())
		}
	})
	if err != nil {
		return err
	}

	tagged, err := executor.Parse(s.world, "Damaged")
	if err != nil {
		return err
	}
	defer tagged.Close()
	return s.print(tagged)
}
