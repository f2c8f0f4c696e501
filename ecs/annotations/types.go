// Package annotations traces query construction, iteration and deferred
// command replay through a stream of timed events.
//
// A Collector with a nil handler is disabled and costs a branch per event.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following a hierarchical naming pattern
const (
	// Query lifecycle
	QueryBuilt       = "query/built"
	QueryBuildFailed = "query/build.failed"
	QueryIterated    = "query/iterated"
	QueryClosed      = "query/closed"

	// Per batch
	BatchResolved = "batch/resolved"

	// Query cache
	CacheRebuilt = "cache/rebuilt"

	// Group-by engine
	GroupCreated = "group/created"
	GroupDeleted = "group/deleted"

	// Deferred command queue
	DeferFlushed = "defer/flushed"

	// Observers
	ObserverTriggered = "observer/triggered"

	// Errors
	ErrorReplay = "error/replay"
)

// Event is a single annotation
type Event struct {
	Name    string         // Event name using the constants above
	Start   time.Time      // Start timestamp
	End     time.Time      // End timestamp
	Latency time.Duration  // End - Start
	Data    map[string]any // Event specific data
}

// Handler processes events as they occur
type Handler func(event Event)

// Tee fans an event out to several handlers. Nil handlers are skipped.
func Tee(handlers ...Handler) Handler {
	var hs []Handler
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	switch len(hs) {
	case 0:
		return nil
	case 1:
		return hs[0]
	}
	return func(event Event) {
		for _, h := range hs {
			h(event)
		}
	}
}

// Collector accumulates events and forwards them to a handler
type Collector struct {
	enabled bool
	handler Handler
	keep    bool
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a collector forwarding to handler. Events are not
// retained; use NewRecorder to keep them.
func NewCollector(handler Handler) *Collector {
	return &Collector{enabled: handler != nil, handler: handler}
}

// NewRecorder creates a collector that retains every event it sees in
// addition to forwarding it to handler, which may be nil.
func NewRecorder(handler Handler) *Collector {
	return &Collector{enabled: true, handler: handler, keep: true, events: make([]Event, 0, 64)}
}

// Enabled reports whether events are being recorded
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Handler returns the underlying event handler
func (c *Collector) Handler() Handler {
	if c == nil {
		return nil
	}
	return c.handler
}

// Add records an event
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}
	if c.keep {
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	}
	if c.handler != nil {
		c.handler(event)
	}
}

// AddTiming records an event that started at start and ends now
func (c *Collector) AddTiming(name string, start time.Time, data map[string]any) {
	if !c.Enabled() {
		return
	}
	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of the retained events
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Named returns the retained events with the given name
func (c *Collector) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the retained events
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
