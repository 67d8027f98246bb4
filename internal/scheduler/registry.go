package scheduler

import (
	"context"
	"fmt"
)

// lostEventName is the sentinel event type substituted for any persisted
// event whose original type name is no longer registered.
const lostEventName = "_lost_event_"

// Registry interns EventTypes by name and issues pointer-stable handles.
// Names are unique among the currently registered types; handles remain
// valid until UnregisterAll clears it, after which a name may be
// registered again and gets a new handle.
//
// Registration is a startup-only contract: registering after events have
// been scheduled against earlier types would silently break save-state
// compatibility, since the serializer resolves events by name.
type Registry struct {
	types map[string]*EventType
	lost  *EventType
}

// NewRegistry returns a Registry with the "_lost_event_" sentinel already
// registered.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]*EventType)}
	r.lost = r.Register(lostEventName, func(context.Context, any, uint64, int64) {})
	return r
}

// Register interns a new named callback and returns a pointer-stable
// handle. It panics if name is already registered: callers are expected
// to register only during initialization.
func (r *Registry) Register(name string, callback TimedCallback) *EventType {
	if _, exists := r.types[name]; exists {
		panic(fmt.Sprintf("scheduler: event type %q is already registered; "+
			"events must only be registered during init to avoid breaking save states", name))
	}
	et := &EventType{Name: name, Callback: callback}
	r.types[name] = et
	return et
}

// Lookup resolves a persisted type name back to a handle, or reports ok
// false if the name is unknown.
func (r *Registry) Lookup(name string) (et *EventType, ok bool) {
	et, ok = r.types[name]
	return et, ok
}

// Lost returns the "_lost_event_" sentinel type.
func (r *Registry) Lost() *EventType {
	return r.lost
}

// UnregisterAll clears every registered type. The caller must guarantee
// the event heap is empty first; Registry has no visibility into the
// heap to enforce this itself.
func (r *Registry) UnregisterAll() {
	r.types = make(map[string]*EventType)
	r.lost = nil
}
