package scheduler

import "github.com/coretiming/scheduler/internal/state"

const (
	markerData   = "CoreTimingData"
	markerEvents = "CoreTimingEvents"
)

// SaveState serializes the scheduler's persisted fields and pending
// events into a checksummed byte blob: slice_length, global_timer,
// idled_cycles, the fake decrementer/TB anchors, last_oc_factor,
// sequence_counter, a marker, the event queue (deadline/sequence/
// userdata/type-name quadruples), and a closing marker. The inbox is
// drained and locked for the duration so its contents aren't lost and
// aren't captured twice.
func (s *Scheduler) SaveState() []byte {
	s.inbox.Lock()
	defer s.inbox.Unlock()
	s.MoveEvents()

	w := state.NewWriter()
	state.Scalar32(w, s.state.sliceLength)
	state.Scalar64(w, s.state.globalTimer)
	state.Scalar64(w, s.state.idledCycles)
	state.Scalar32(w, s.state.fakeDecStartValue)
	state.Scalar64(w, s.state.fakeDecStartTicks)
	state.Scalar64(w, s.state.fakeTBStartValue)
	state.Scalar64(w, s.state.fakeTBStartTicks)
	state.Scalar32(w, s.state.lastOCFactor)
	state.Scalar64(w, s.state.sequenceCounter)
	w.Marker(markerData)

	state.EachElement(w, []Event(s.heap), func(w *state.Writer, ev Event) {
		state.Scalar64(w, ev.Deadline)
		state.Scalar64(w, ev.Sequence)
		state.Scalar64(w, ev.Userdata)
		w.String(ev.Type.Name)
	})
	w.Marker(markerEvents)

	return w.Finish()
}

// LoadState restores a blob produced by SaveState. Persisted events whose
// type name is no longer registered are remapped to the "_lost_event_"
// sentinel and logged at warning level. The heap is rebuilt afterward,
// since the layout persisted by an unordered element list is not itself
// heap-ordered.
func (s *Scheduler) LoadState(blob []byte) error {
	body, ok := state.Verify(blob)
	if !ok {
		return errChecksumMismatch
	}

	s.inbox.Lock()
	defer s.inbox.Unlock()

	r := state.NewReader(body)
	s.state.sliceLength = state.ScalarRead32[int32](r)
	s.state.globalTimer = state.ScalarRead64[int64](r)
	s.state.idledCycles = state.ScalarRead64[int64](r)
	s.state.fakeDecStartValue = state.ScalarRead32[uint32](r)
	s.state.fakeDecStartTicks = state.ScalarRead64[uint64](r)
	s.state.fakeTBStartValue = state.ScalarRead64[uint64](r)
	s.state.fakeTBStartTicks = state.ScalarRead64[uint64](r)
	s.state.lastOCFactor = state.ScalarRead32[float32](r)
	s.state.lastOCInverted = 1 / s.state.lastOCFactor
	s.state.sequenceCounter = state.ScalarRead64[uint64](r)

	if !r.Marker(markerData) {
		return errMarkerMismatch(markerData)
	}

	events := state.ReadEachElement(r, func(r *state.Reader) Event {
		deadline := state.ScalarRead64[int64](r)
		sequence := state.ScalarRead64[uint64](r)
		userdata := state.ScalarRead64[uint64](r)
		name := r.String()

		et, ok := s.registry.Lookup(name)
		if !ok {
			s.log.Warnf("lost event from savestate because its type, %q, has not been registered", name)
			et = s.registry.Lost()
		}
		return Event{Deadline: deadline, Sequence: sequence, Userdata: userdata, Type: et}
	})

	if !r.Marker(markerEvents) {
		return errMarkerMismatch(markerEvents)
	}

	s.heap = events
	s.heap.rebuild()
	return nil
}

type marshalError string

func (e marshalError) Error() string { return string(e) }

const errChecksumMismatch = marshalError("scheduler: savestate checksum mismatch")

func errMarkerMismatch(want string) error {
	return marshalError("scheduler: savestate marker mismatch, expected " + want)
}
