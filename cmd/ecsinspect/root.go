package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/wbrown/janus-ecs/ecs/annotations"
	"github.com/wbrown/janus-ecs/ecs/executor"
	"github.com/wbrown/janus-ecs/ecs/planner"
	"github.com/wbrown/janus-ecs/ecs/storage"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Metrics    bool
	Color      string
	Cache      string

	cfg *Config
}

// NewRootCommand creates the root command of ecsinspect
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ecsinspect",
		Short: "Inspect ECS worlds and queries",
		Long: `Build entity worlds from YAML scenarios and run query expressions
against them. Results are printed as markdown tables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.ConfigFile, cmd)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print query annotations")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print metrics after the run")
	cmd.PersistentFlags().StringVar(&opts.Color, "color", "auto", "color output (auto|always|never)")
	cmd.PersistentFlags().StringVar(&opts.Cache, "cache", "default", "default query cache kind (default|auto|all|none)")

	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewReplCommand(opts))

	return cmd
}

// session is the runtime shared by a single command invocation
type session struct {
	cfg     *Config
	out     io.Writer
	errOut  io.Writer
	reg     *prometheus.Registry
	world   *storage.World
	options executor.Options
}

func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg := opts.cfg
	if cfg == nil {
		var err error
		if cfg, err = LoadConfig(opts.ConfigFile, cmd); err != nil {
			return nil, err
		}
	}
	kind, err := cfg.CacheKind()
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:    cfg,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		options: executor.Options{
			Planner: planner.Options{DefaultCacheKind: kind, Cache: planner.NewPlanCache(0, 0)},
		},
	}
	switch cfg.Color {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	}

	var handlers []annotations.Handler
	if cfg.Verbose {
		f := annotations.NewOutputFormatter(s.errOut)
		if cfg.Color == "always" {
			f.SetColor(true)
		}
		handlers = append(handlers, f.Handle)
	}
	if cfg.Metrics {
		s.reg = prometheus.NewRegistry()
		handlers = append(handlers, annotations.NewMetrics(s.reg).Handle)
	}
	s.world = storage.NewWorld(storage.Options{Handler: annotations.Tee(handlers...)})
	return s, nil
}

func (s *session) heading(format string, args ...any) {
	fmt.Fprintln(s.out, color.New(color.FgCyan, color.Bold).Sprintf(format, args...))
}

// printMetrics writes the gathered counters, sorted by name
func (s *session) printMetrics() error {
	if s.reg == nil {
		return nil
	}
	families, err := s.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })

	s.heading("=== Metrics ===")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			label := ""
			for _, lp := range m.GetLabel() {
				label += fmt.Sprintf("{%s=%q}", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(s.out, "%s%s %g\n", mf.GetName(), label, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(s.out, "%s%s count=%d sum=%gs\n", mf.GetName(), label, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}
