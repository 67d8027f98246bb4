// Package scheduler implements the deterministic, cycle-driven event
// queue that interleaves timed callbacks with the execution of an
// emulated CPU. See the package-level components in registry.go, heap.go,
// inbox.go, collaborators.go and scheduler.go.
package scheduler

import "context"

// MaxSliceLength bounds how many virtual cycles the CPU may run before
// control must return to Advance, regardless of how far away the next
// event is.
const MaxSliceLength = 20_000

// TimedCallback is invoked when a scheduled Event's deadline has been
// reached. ctx carries CPU-thread identity for the duration of dispatch,
// so a callback that reschedules itself via ScheduleEvent can pass ctx
// straight through; sys is the owning system value (threaded through
// explicitly rather than reached via a global, see DESIGN.md); userdata
// is the opaque value passed to ScheduleEvent; cyclesLate is how far past
// the deadline the callback is actually firing (always >= 0 in practice,
// but kept signed to mirror the source contract).
type TimedCallback func(ctx context.Context, sys any, userdata uint64, cyclesLate int64)

// EventType is a registered, named callback. Its identity is the pointer
// to this struct: two EventTypes are equal iff they are the same pointer,
// never by comparing Name, since names may legally be reused across a
// full Unregister/Register cycle.
type EventType struct {
	Name     string
	Callback TimedCallback
}

// Event is a single scheduled occurrence.
type Event struct {
	// Deadline is the global-timer cycle count at which Callback should
	// fire.
	Deadline int64
	// Sequence is the monotonic tie-breaker assigned when the event
	// enters the heap.
	Sequence uint64
	// Userdata is opaque; it must never be treated as a pointer, since
	// it is persisted verbatim by the serializer.
	Userdata uint64
	// Type identifies the callback to invoke.
	Type *EventType
}

// less orders two events lexicographically, ascending: deadline first,
// then sequence as a tie-breaker for equal deadlines.
func less(a, b Event) bool {
	if a.Deadline != b.Deadline {
		return a.Deadline < b.Deadline
	}
	return a.Sequence < b.Sequence
}

// FromThread tags the caller of ScheduleEvent so the scheduler can pick
// the hot lock-free path (CPU) or the locked cross-thread path (NonCPU)
// without touching thread-local state on every call.
type FromThread int

const (
	// FromCPU asserts the call originates on the CPU thread.
	FromCPU FromThread = iota
	// FromNonCPU asserts the call originates off the CPU thread.
	FromNonCPU
	// FromAny defers to the CPU collaborator's thread-identity check.
	FromAny
)

func (f FromThread) String() string {
	switch f {
	case FromCPU:
		return "CPU"
	case FromNonCPU:
		return "NON_CPU"
	case FromAny:
		return "ANY"
	default:
		return "UNKNOWN"
	}
}
