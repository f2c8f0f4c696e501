package executor

import "github.com/wbrown/janus-ecs/ecs/planner"

// Options configures query construction
type Options struct {
	// Planner configures descriptor compilation
	Planner planner.Options
	// Columns lists the header of each field in TableFormatter output.
	// Missing headers default to the term expression.
	Columns []string
}
