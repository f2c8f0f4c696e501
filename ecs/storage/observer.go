package storage

import "github.com/wbrown/janus-ecs/ecs"

// Event is an observable storage event
type Event uint8

const (
	OnAdd Event = iota
	OnSet
	OnRemove
)

func (e Event) String() string {
	switch e {
	case OnAdd:
		return "OnAdd"
	case OnSet:
		return "OnSet"
	case OnRemove:
		return "OnRemove"
	}
	return "unknown"
}

// ObserverFunc is called when a matching event is applied to an entity
type ObserverFunc func(w *World, e ecs.Entity, id ecs.Id)

// ObserverHandle identifies a registered observer
type ObserverHandle uint64

type observer struct {
	handle ObserverHandle
	event  Event
	id     ecs.Id
	fn     ObserverFunc
}

// Observe registers fn for event on ids matching id, which may be a
// wildcard. Observers run when the mutation is applied, so mutations made
// in a deferred scope are observed at flush, in issue order.
func (w *World) Observe(event Event, id ecs.Id, fn ObserverFunc) ObserverHandle {
	w.lastObserver++
	w.observers = append(w.observers, observer{handle: w.lastObserver, event: event, id: id, fn: fn})
	return w.lastObserver
}

// Unobserve removes a registered observer. It reports whether h was found.
func (w *World) Unobserve(h ObserverHandle) bool {
	for i, o := range w.observers {
		if o.handle == h {
			kept := make([]observer, 0, len(w.observers)-1)
			kept = append(kept, w.observers[:i]...)
			w.observers = append(kept, w.observers[i+1:]...)
			return true
		}
	}
	return false
}

func (w *World) emit(event Event, e ecs.Entity, id ecs.Id) {
	for _, o := range w.observers {
		if o.event == event && o.id.Matches(id) {
			o.fn(w, e, id)
		}
	}
}
