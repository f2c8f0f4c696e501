package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wbrown/janus-ecs/ecs/executor"
)

// NewReplCommand creates the interactive command
func NewReplCommand(rootOpts *RootOptions) *cobra.Command {
	var scenario string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Run query expressions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			if scenario == "" {
				scenario = s.cfg.Scenario
			}
			if scenario != "" {
				sc, err := LoadScenario(scenario)
				if err != nil {
					return err
				}
				if err := sc.Apply(s.world); err != nil {
					return err
				}
			}
			runRepl(s, cmd.InOrStdin())
			return s.printMetrics()
		},
	}
	cmd.Flags().StringVarP(&scenario, "scenario", "s", "", "scenario file (yaml)")
	return cmd
}

func runRepl(s *session, in io.Reader) {
	s.heading("=== ecsinspect ===")
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  .help    - Show help")
	fmt.Fprintln(s.out, "  .tables  - List tables")
	fmt.Fprintln(s.out, "  .exit    - Exit")
	fmt.Fprintln(s.out, "  <expr>   - Run a query expression")
	fmt.Fprintln(s.out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == ".exit" || line == ".quit":
			return
		case line == ".help":
			fmt.Fprintln(s.out, "Enter query expressions, e.g. Position, (Likes, $X), !Planet")
		case line == ".tables":
			for _, t := range s.world.Tables() {
				fmt.Fprintf(s.out, "%d: %s %d\n", t.ID(), t, t.Count())
			}
		case strings.HasPrefix(line, "."):
			fmt.Fprintln(s.out, "Unknown command. Use .help for help.")
		default:
			replQuery(s, line)
		}
	}
}

func replQuery(s *session, expr string) {
	q, err := executor.NewWithOptions(s.world, s.options).Expr(expr).Build()
	if err != nil {
		fmt.Fprintf(s.out, "Parse error: %v\n", err)
		return
	}
	defer q.Close()
	out, err := executor.NewTableFormatter().FormatQuery(q)
	if err != nil {
		fmt.Fprintf(s.out, "Execution error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, out)
}
