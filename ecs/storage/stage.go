package storage

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/annotations"
)

// DeferState is the state of a stage's command queue
type DeferState uint8

const (
	// Active applies commands immediately
	Active DeferState = iota
	// Deferred buffers commands until the outermost End
	Deferred
	// Suspended applies commands immediately inside a deferred scope
	Suspended
)

func (s DeferState) String() string {
	switch s {
	case Deferred:
		return "deferred"
	case Suspended:
		return "suspended"
	}
	return "active"
}

// CommandKind is the operation of a queued command
type CommandKind uint8

const (
	CmdAdd CommandKind = iota
	CmdRemove
	CmdSet
	CmdClear
	CmdDelete
)

func (k CommandKind) String() string {
	switch k {
	case CmdAdd:
		return "add"
	case CmdRemove:
		return "remove"
	case CmdSet:
		return "set"
	case CmdClear:
		return "clear"
	case CmdDelete:
		return "delete"
	}
	return "unknown"
}

// Command is a queued structural mutation
type Command struct {
	Kind   CommandKind
	Entity ecs.Entity
	ID     ecs.Id
	// Value is the payload of a set command
	Value reflect.Value
}

func (c Command) String() string {
	switch c.Kind {
	case CmdClear, CmdDelete:
		return fmt.Sprintf("%s %s", c.Kind, c.Entity)
	}
	return fmt.Sprintf("%s %s %s", c.Kind, c.Entity, c.ID)
}

// Stage is the deferred command state machine of a world. Begin and End
// nest; the queue flushes when the outermost End is reached. Suspend and
// Resume bypass buffering without touching the nesting depth.
type Stage struct {
	depth     int
	suspended bool
	readonly  bool
	queue     []Command
}

// NewStage creates an active stage
func NewStage() *Stage {
	return &Stage{}
}

// State returns the current state
func (s *Stage) State() DeferState {
	switch {
	case s.depth == 0:
		return Active
	case s.suspended:
		return Suspended
	}
	return Deferred
}

// Depth returns the defer nesting depth
func (s *Stage) Depth() int {
	return s.depth
}

// Deferring reports whether mutations are currently buffered
func (s *Stage) Deferring() bool {
	return s.depth > 0 && !s.suspended
}

// Readonly reports whether the stage is in a readonly phase
func (s *Stage) Readonly() bool {
	return s.readonly
}

// Pending returns the number of queued commands
func (s *Stage) Pending() int {
	return len(s.queue)
}

// Begin enters a deferred scope. It reports whether buffering started.
func (s *Stage) Begin() bool {
	s.depth++
	return s.depth == 1
}

// End leaves a deferred scope. It reports whether the queue must be
// flushed. Ending an unbalanced or suspended scope panics.
func (s *Stage) End() bool {
	if s.depth == 0 {
		panic(fmt.Errorf("defer end without defer begin: %w", ecs.ErrInvalidOperation))
	}
	if s.depth == 1 && s.suspended {
		panic(fmt.Errorf("defer end while suspended: %w", ecs.ErrInvalidOperation))
	}
	s.depth--
	return s.depth == 0
}

// Suspend applies commands immediately until Resume
func (s *Stage) Suspend() {
	switch {
	case s.readonly:
		panic(fmt.Errorf("defer suspend: %w", ecs.ErrReadonly))
	case s.depth == 0:
		panic(fmt.Errorf("defer suspend outside deferred scope: %w", ecs.ErrInvalidOperation))
	case s.suspended:
		panic(fmt.Errorf("defer suspend while suspended: %w", ecs.ErrInvalidOperation))
	}
	s.suspended = true
}

// Resume restores buffering after Suspend
func (s *Stage) Resume() {
	if !s.suspended {
		panic(fmt.Errorf("defer resume without suspend: %w", ecs.ErrInvalidOperation))
	}
	s.suspended = false
}

// Enqueue appends a command to the queue
func (s *Stage) Enqueue(c Command) {
	s.queue = append(s.queue, c)
}

func (s *Stage) drain() []Command {
	q := s.queue
	s.queue = nil
	return q
}

// DeferBegin starts buffering structural mutations. It reports whether this
// call entered the outermost deferred scope.
func (w *World) DeferBegin() bool {
	return w.stage.Begin()
}

// DeferEnd leaves a deferred scope. Leaving the outermost scope replays the
// queue in enqueue order; replay errors are joined and returned.
func (w *World) DeferEnd() error {
	if !w.stage.End() {
		return nil
	}
	return w.flush()
}

// DeferSuspend makes mutations take effect immediately inside a deferred
// scope. Panics outside a deferred scope and in readonly phases.
func (w *World) DeferSuspend() {
	w.stage.Suspend()
}

// DeferResume resumes buffering after DeferSuspend
func (w *World) DeferResume() {
	w.stage.Resume()
}

// IsDeferred reports whether mutations are currently buffered
func (w *World) IsDeferred() bool {
	return w.stage.Deferring()
}

// Defer runs fn in a deferred scope
func (w *World) Defer(fn func()) error {
	w.DeferBegin()
	fn()
	return w.DeferEnd()
}

// ReadonlyBegin enters a readonly phase. All mutations are queued until
// ReadonlyEnd and the phase cannot be suspended.
func (w *World) ReadonlyBegin() {
	w.stage.readonly = true
	w.stage.Begin()
}

// ReadonlyEnd leaves the readonly phase and applies queued mutations
func (w *World) ReadonlyEnd() error {
	if !w.stage.readonly {
		return fmt.Errorf("readonly end without readonly begin: %w", ecs.ErrInvalidOperation)
	}
	w.stage.readonly = false
	return w.DeferEnd()
}

// IsReadonly reports whether the world is in a readonly phase
func (w *World) IsReadonly() bool {
	return w.stage.readonly
}

// flush replays the queue. Commands enqueued by observers during replay are
// applied in the same flush, after the commands already queued.
func (w *World) flush() error {
	start := time.Now()
	var errs []error
	applied := 0
	for {
		cmds := w.stage.drain()
		if len(cmds) == 0 {
			break
		}
		w.stage.Begin()
		for _, c := range cmds {
			if err := w.apply(c); err != nil {
				errs = append(errs, err)
				if w.collector.Enabled() {
					w.collector.Add(annotations.Event{
						Name:  annotations.ErrorReplay,
						Start: time.Now(),
						End:   time.Now(),
						Data:  map[string]any{"command": c.String(), "error": err},
					})
				}
			}
			applied++
		}
		w.stage.depth--
	}
	if w.collector.Enabled() && applied > 0 {
		w.collector.AddTiming(annotations.DeferFlushed, start, map[string]any{
			"commands": applied,
			"errors":   len(errs),
		})
	}
	return errors.Join(errs...)
}

func (w *World) apply(c Command) error {
	switch c.Kind {
	case CmdAdd:
		return w.add(c.Entity, c.ID)
	case CmdRemove:
		return w.remove(c.Entity, c.ID)
	case CmdSet:
		return w.set(c.Entity, c.ID, c.Value)
	case CmdClear:
		return w.clear(c.Entity)
	case CmdDelete:
		return w.delete(c.Entity)
	}
	return fmt.Errorf("apply %s: %w", c, ecs.ErrInvalidParameter)
}
