package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/executor"
)

// QueryOptions holds the flags of the query command
type QueryOptions struct {
	Scenario string
	GroupBy  string
	Desc     bool
	Vars     []string
	Plan     bool
}

// NewQueryCommand creates the query command
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{}
	cmd := &cobra.Command{
		Use:   "query <expr>",
		Short: "Run a query expression against a scenario",
		Long: `Load a scenario and run a query expression such as
"Position, (Likes, $X), !Planet". Matched rows are printed as a table.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			if opts.Scenario == "" {
				opts.Scenario = s.cfg.Scenario
			}
			if err := runQuery(s, opts, args[0]); err != nil {
				return err
			}
			return s.printMetrics()
		},
	}
	cmd.Flags().StringVarP(&opts.Scenario, "scenario", "s", "", "scenario file (yaml)")
	cmd.Flags().StringVar(&opts.GroupBy, "group-by", "", "group results by the target of this relationship")
	cmd.Flags().BoolVar(&opts.Desc, "desc", false, "visit groups in descending order")
	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "bind a variable (X=name), repeatable")
	cmd.Flags().BoolVar(&opts.Plan, "plan", false, "print the compiled plan")
	return cmd
}

func runQuery(s *session, opts *QueryOptions, expr string) error {
	if opts.Scenario != "" {
		sc, err := LoadScenario(opts.Scenario)
		if err != nil {
			return err
		}
		if err := sc.Apply(s.world); err != nil {
			return err
		}
	}

	b := executor.NewWithOptions(s.world, s.options).Expr(expr)
	if opts.GroupBy != "" {
		rel, ok := s.world.Lookup(opts.GroupBy)
		if !ok {
			return fmt.Errorf("group by %q: unknown relationship: %w", opts.GroupBy, ecs.ErrInvalidParameter)
		}
		b.GroupBy(rel)
		if opts.Desc {
			b.Desc()
		}
	}
	q, err := b.Build()
	if err != nil {
		return err
	}
	defer q.Close()

	if opts.Plan {
		s.heading("=== Plan ===")
		fmt.Fprint(s.out, q.Plan().Describe(s.world))
		fmt.Fprintln(s.out)
	}

	it := q.Iter()
	for _, v := range opts.Vars {
		name, value, ok := strings.Cut(v, "=")
		if !ok {
			return fmt.Errorf("variable %q: expected X=name: %w", v, ecs.ErrInvalidParameter)
		}
		e, ok := s.world.Lookup(value)
		if !ok {
			return fmt.Errorf("variable %s: unknown entity %q: %w", name, value, ecs.ErrInvalidParameter)
		}
		it.SetVar(name, e)
	}

	s.heading("=== %s ===", q.String())
	out, err := executor.NewTableFormatter().FormatIterable(it)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, out)

	if opts.GroupBy != "" {
		for _, g := range q.Groups() {
			n := q.Iter().SetGroup(g).Count()
			fmt.Fprintf(s.out, "group %s: %d\n", s.world.Name(ecs.Entity(g)), n)
		}
	}
	return nil
}
