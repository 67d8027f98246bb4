package scheduler

import (
	"context"
	"fmt"

	"github.com/coretiming/scheduler/pkg/log"
)

// globalState holds everything that must be either persisted or frozen
// for the duration of a slice. It is deliberately a plain struct (not an
// exported type) so that Scheduler is the only thing that can mutate it.
type globalState struct {
	globalTimer    int64
	sliceLength    int32
	lastOCFactor   float32
	lastOCInverted float32

	idledCycles int64

	fakeDecStartValue uint32
	fakeDecStartTicks uint64
	fakeTBStartValue  uint64
	fakeTBStartTicks  uint64

	isGlobalTimerSane bool
	sequenceCounter   uint64

	configOCFactor    float32
	configOCInvFactor float32
	syncOnSkipIdle    bool
}

// Scheduler is the deterministic event queue: it owns the registry, the
// heap, the cross-thread inbox, and the global timer/slice bookkeeping,
// and bridges cycles to the CPU's scaled downcount register.
type Scheduler struct {
	registry *Registry
	heap     eventHeap
	inbox    *Inbox

	cpu  CPU
	fifo FIFO
	cfg  ConfigProvider
	log  log.Logger

	// sys is the owning system value threaded through to callbacks as
	// their first argument. It is set once, after both the Scheduler
	// and its owner exist (see internal/system).
	sys any

	state             globalState
	configCallbackID  int
	hasConfigCallback bool
}

// New constructs a Scheduler bound to the given collaborators. It
// immediately refreshes its configuration snapshot, programs the CPU's
// downcount for a full slice, and registers a callback so that future
// configuration changes are picked up without CoreTiming-style polling.
//
// The Scheduler considers itself inside the (conceptual) slice -1/0
// boundary until the first call to Advance, matching the source's
// is_global_timer_sane bootstrap.
func New(cpu CPU, fifo FIFO, cfg ConfigProvider, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNull()
	}
	s := &Scheduler{
		registry: NewRegistry(),
		inbox:    NewInbox(),
		cpu:      cpu,
		fifo:     fifo,
		cfg:      cfg,
		log:      logger,
	}
	s.RefreshConfig()
	s.state.lastOCFactor = s.state.configOCFactor
	s.state.lastOCInverted = s.state.configOCInvFactor
	s.state.sliceLength = MaxSliceLength
	s.state.isGlobalTimerSane = true
	cpu.SetDowncount(s.cyclesToDowncount(MaxSliceLength))

	if cfg != nil {
		s.configCallbackID = cfg.OnConfigChanged(s.RefreshConfig)
		s.hasConfigCallback = true
	}
	return s
}

// SetSystem sets the value passed as the first argument to every event
// callback. Call once, after the owning value has finished constructing
// itself around this Scheduler.
func (s *Scheduler) SetSystem(sys any) { s.sys = sys }

// Shutdown drains the inbox, discards all pending events, unregisters
// every event type, and removes the configuration-changed callback. The
// scheduler must not be used afterward.
func (s *Scheduler) Shutdown() {
	s.inbox.Lock()
	defer s.inbox.Unlock()
	for {
		if _, ok := s.inbox.Pop(); !ok {
			break
		}
	}
	s.ClearPendingEvents()
	s.registry.UnregisterAll()
	if s.hasConfigCallback && s.cfg != nil {
		s.cfg.RemoveConfigChangedCallback(s.configCallbackID)
		s.hasConfigCallback = false
	}
}

// RefreshConfig re-reads the configuration collaborator's scalars into
// the scheduler's snapshot. It does not affect last_oc_factor/inverted,
// which are only refreshed at the start of Advance so a mid-slice
// configuration change cannot cause intra-slice drift.
func (s *Scheduler) RefreshConfig() {
	if s.cfg == nil {
		s.state.configOCFactor = 1
		s.state.configOCInvFactor = 1
		s.state.syncOnSkipIdle = false
		return
	}
	if s.cfg.OverclockEnabled() {
		s.state.configOCFactor = s.cfg.Overclock()
	} else {
		s.state.configOCFactor = 1
	}
	s.state.configOCInvFactor = 1 / s.state.configOCFactor
	s.state.syncOnSkipIdle = s.cfg.SyncOnSkipIdle()
}

// downcountToCycles converts a downcount value into unscaled cycles
// using the factor frozen for the current slice.
func (s *Scheduler) downcountToCycles(downcount int32) int32 {
	return int32(float32(downcount) * s.state.lastOCInverted)
}

// cyclesToDowncount converts unscaled cycles into a downcount value
// using the factor frozen for the current slice.
func (s *Scheduler) cyclesToDowncount(cycles int32) int32 {
	return int32(float32(cycles) * s.state.lastOCFactor)
}

// RegisterEvent interns a new named callback. Only call during
// initialization: see Registry.Register.
func (s *Scheduler) RegisterEvent(name string, callback TimedCallback) *EventType {
	return s.registry.Register(name, callback)
}

// UnregisterAllEvents clears the event type registry. Panics if any
// event is still pending on the heap; events still in the inbox are not
// checked.
func (s *Scheduler) UnregisterAllEvents() {
	if len(s.heap) != 0 {
		panic("scheduler: cannot unregister events with events pending on the heap")
	}
	s.registry.UnregisterAll()
}

// GetTicks returns the current virtual-cycle count as observed by the
// guest. Only meaningful when called from the CPU thread.
func (s *Scheduler) GetTicks() uint64 {
	ticks := s.state.globalTimer
	if !s.state.isGlobalTimerSane {
		downcount := s.downcountToCycles(s.cpu.Downcount())
		ticks += int64(s.state.sliceLength) - int64(downcount)
	}
	return uint64(ticks)
}

// GetIdleTicks returns the cumulative number of cycles banked by Idle.
func (s *Scheduler) GetIdleTicks() uint64 { return uint64(s.state.idledCycles) }

// nextSequence allocates the next monotonic FIFO tie-breaker.
func (s *Scheduler) nextSequence() uint64 {
	seq := s.state.sequenceCounter
	s.state.sequenceCounter++
	return seq
}

// ScheduleEvent schedules eventType to fire deltaCycles cycles from now,
// carrying userdata, asserting it originates from origin. ctx is the
// caller's context: when origin is FromCPU or FromNonCPU, ctx's
// CPU-thread identity (per CPU.IsCPUThread) must agree with the
// declaration or ScheduleEvent panics. A negative deltaCycles fires on
// the very next Advance (or immediately, if called from inside a
// callback whose deadline has already passed).
func (s *Scheduler) ScheduleEvent(ctx context.Context, deltaCycles int64, eventType *EventType, userdata uint64, origin FromThread) {
	if eventType == nil {
		panic("scheduler: event type is nil")
	}

	var fromCPU bool
	switch origin {
	case FromAny:
		fromCPU = s.cpu.IsCPUThread(ctx)
	default:
		fromCPU = origin == FromCPU
		if fromCPU != s.cpu.IsCPUThread(ctx) {
			panic(fmt.Sprintf("scheduler: a %q event was scheduled from the wrong thread (declared %s)",
				eventType.Name, origin))
		}
	}

	if fromCPU {
		deadline := int64(s.GetTicks()) + deltaCycles
		if !s.state.isGlobalTimerSane {
			s.ForceExceptionCheck(deltaCycles)
		}
		s.heap.push(Event{Deadline: deadline, Sequence: s.nextSequence(), Userdata: userdata, Type: eventType})
		return
	}

	if s.cpu.WantsDeterminism() {
		s.log.Errorf("off-thread event %q scheduled while determinism is required; this risks a desync", eventType.Name)
	}
	s.inbox.Push(Event{Deadline: s.state.globalTimer + deltaCycles, Sequence: 0, Userdata: userdata, Type: eventType})
}

// MoveEvents drains the inbox into the heap, assigning each drained event
// a fresh sequence number at the moment it becomes visible to the heap.
func (s *Scheduler) MoveEvents() {
	for {
		ev, ok := s.inbox.Pop()
		if !ok {
			return
		}
		ev.Sequence = s.nextSequence()
		s.heap.push(ev)
	}
}

// RemoveEvent erases every pending heap event of the given type. Events
// still sitting in the inbox are unaffected; use RemoveAllEvents to catch
// those too.
func (s *Scheduler) RemoveEvent(eventType *EventType) {
	s.heap.eraseIf(func(e Event) bool { return e.Type == eventType })
}

// RemoveAllEvents drains the inbox first, then erases every pending event
// of the given type, wherever it was queued.
func (s *Scheduler) RemoveAllEvents(eventType *EventType) {
	s.MoveEvents()
	s.RemoveEvent(eventType)
}

// ClearPendingEvents drops every pending heap event regardless of type.
// Used during shutdown; distinct from RemoveAllEvents, which targets one
// type.
func (s *Scheduler) ClearPendingEvents() {
	s.heap = s.heap[:0]
}

// ForceExceptionCheck clamps cycles to zero, then shortens the current
// slice so that the CPU returns to Advance no later than cycles cycles
// from now. Idempotent when called with a value at or above the current
// remaining cycle count.
func (s *Scheduler) ForceExceptionCheck(cycles int64) {
	if cycles < 0 {
		cycles = 0
	}
	remaining := s.downcountToCycles(s.cpu.Downcount())
	if int64(remaining) > cycles {
		s.state.sliceLength -= int32(int64(remaining) - cycles)
		s.cpu.SetDowncount(s.cyclesToDowncount(int32(cycles)))
	}
}

// Advance is the scheduler's heart, called by the CPU thread at every
// slice boundary: it banks the cycles executed since the last call,
// fires every event whose deadline has now passed, then reprograms the
// CPU's downcount for however many cycles remain until the next one.
// ctx must carry this call's CPU-thread identity; it is passed through
// unchanged to every fired callback so a callback that reschedules
// itself via ScheduleEvent needs no thread-identity workaround.
func (s *Scheduler) Advance(ctx context.Context) {
	s.MoveEvents()

	executed := s.state.sliceLength - s.downcountToCycles(s.cpu.Downcount())
	s.state.globalTimer += int64(executed)

	s.state.lastOCFactor = s.state.configOCFactor
	s.state.lastOCInverted = s.state.configOCInvFactor
	s.state.sliceLength = MaxSliceLength

	s.state.isGlobalTimerSane = true

	for len(s.heap) > 0 && s.heap.peekMin().Deadline <= s.state.globalTimer {
		ev := s.heap.popMin()
		ev.Type.Callback(ctx, s.sys, ev.Userdata, s.state.globalTimer-ev.Deadline)
	}

	s.state.isGlobalTimerSane = false

	if len(s.heap) > 0 {
		next := s.heap.peekMin().Deadline - s.state.globalTimer
		if next > MaxSliceLength {
			next = MaxSliceLength
		}
		s.state.sliceLength = int32(next)
	}

	s.cpu.SetDowncount(s.cyclesToDowncount(s.state.sliceLength))

	// Must happen after event dispatch: callbacks that raise interrupts
	// must not be delayed a full slice.
	s.cpu.CheckExternalExceptions()
}

// Idle is called by the CPU when it would otherwise busy-wait. It banks
// the remaining slice as idle cycles and forces the next instruction
// boundary to re-enter Advance.
func (s *Scheduler) Idle() {
	if s.state.syncOnSkipIdle && s.fifo != nil {
		s.fifo.FlushGPU()
	}

	downcount := s.cpu.Downcount()
	s.cpu.UpdatePerformanceMonitor(downcount, 0, 0)
	s.state.idledCycles += int64(s.downcountToCycles(downcount))
	s.cpu.SetDowncount(0)
}

// AdjustEventQueueTimes rescales every pending heap event's deadline by
// newClock/oldClock, keeping deadlines already at or after the global
// timer at or after it. Must be called from the CPU thread; the inbox is
// untouched, so callers that need the rescale to also cover in-flight
// off-thread events must MoveEvents first.
func (s *Scheduler) AdjustEventQueueTimes(newClock, oldClock uint32) {
	for i := range s.heap {
		ev := &s.heap[i]
		ticks := (ev.Deadline - s.state.globalTimer) * int64(newClock) / int64(oldClock)
		ev.Deadline = s.state.globalTimer + ticks
	}
}

// GetScheduledEventsSummary returns a human-readable, time-sorted dump of
// every pending heap event, for diagnostics.
func (s *Scheduler) GetScheduledEventsSummary() string {
	text := "Scheduled events\n"
	for _, ev := range s.heap.snapshot() {
		text += fmt.Sprintf("%s : %d %016x\n", ev.Type.Name, ev.Deadline, ev.Userdata)
	}
	return text
}

// LogPendingEvents logs every pending heap event at info level, one line
// per event in deadline order, each with the current global timer, its
// deadline and its type name.
func (s *Scheduler) LogPendingEvents() {
	now := s.state.globalTimer
	for _, ev := range s.heap.snapshot() {
		s.log.Infof("PENDING: Now: %d Pending: %d Type: %s", now, ev.Deadline, ev.Type.Name)
	}
}

// GetFakeDecStartValue, SetFakeDecStartValue, GetFakeDecStartTicks and
// SetFakeDecStartTicks carry the guest-visible decrementer anchor. The
// scheduler treats its contents as opaque; only the serializer and the
// CPU's decrementer emulation care what it means.
func (s *Scheduler) GetFakeDecStartValue() uint32       { return s.state.fakeDecStartValue }
func (s *Scheduler) SetFakeDecStartValue(v uint32)      { s.state.fakeDecStartValue = v }
func (s *Scheduler) GetFakeDecStartTicks() uint64       { return s.state.fakeDecStartTicks }
func (s *Scheduler) SetFakeDecStartTicks(v uint64)      { s.state.fakeDecStartTicks = v }
func (s *Scheduler) GetFakeTBStartValue() uint64        { return s.state.fakeTBStartValue }
func (s *Scheduler) SetFakeTBStartValue(v uint64)       { s.state.fakeTBStartValue = v }
func (s *Scheduler) GetFakeTBStartTicks() uint64        { return s.state.fakeTBStartTicks }
func (s *Scheduler) SetFakeTBStartTicks(v uint64)       { s.state.fakeTBStartTicks = v }

// SliceLength returns the cycle budget programmed for the current slice.
func (s *Scheduler) SliceLength() int32 { return s.state.sliceLength }

// GlobalTimer returns the raw global timer value, without the mid-slice
// adjustment GetTicks applies. Mainly useful for tests and diagnostics.
func (s *Scheduler) GlobalTimer() int64 { return s.state.globalTimer }

// SequenceCounter returns the next sequence number that will be handed
// out. Exposed for diagnostics such as the netplay determinism digest.
func (s *Scheduler) SequenceCounter() uint64 { return s.state.sequenceCounter }

// Registry exposes the event-type registry, e.g. so the serializer can
// resolve persisted names back to handles.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Inbox exposes the cross-thread inbox, e.g. so the serializer can lock
// producers out for the duration of a save/restore.
func (s *Scheduler) Inbox() *Inbox { return s.inbox }
