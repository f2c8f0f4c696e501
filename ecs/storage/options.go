package storage

import "github.com/wbrown/janus-ecs/ecs/annotations"

// Options configures a World
type Options struct {
	// Handler receives annotation events. Nil disables annotations.
	Handler annotations.Handler

	// ColumnCapacity is the initial capacity of new table columns
	ColumnCapacity int
}

// DefaultOptions returns the default world options
func DefaultOptions() Options {
	return Options{ColumnCapacity: 8}
}
