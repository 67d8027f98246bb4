// Package cpu provides the scheduler's CPU collaborator: a downcount
// register and the handful of hooks Advance/Idle/ScheduleEvent consume.
// Instruction decoding and execution are out of scope for this module;
// what's modeled here is exactly the surface the scheduler touches.
package cpu

import (
	"context"
	"sync/atomic"

	"github.com/coretiming/scheduler/pkg/log"
)

// CPU is a minimal stand-in for the guest processor.
type CPU struct {
	downcount int32

	determinism atomic.Bool

	exceptionChecks uint64
	lastPerfMonitor perfSample

	log log.Logger
}

type perfSample struct {
	downcount               int32
	numLoadStores, numFPIns int
}

type cpuThreadKey struct{}

// New returns a CPU with its downcount at zero and determinism disabled.
func New(logger log.Logger) *CPU {
	if logger == nil {
		logger = log.NewNull()
	}
	return &CPU{log: logger}
}

// RunOnCPUThread runs fn with a context carrying CPU-thread identity for
// the lifetime of this call chain. Identity travels with ctx rather than
// living in a package-global flag, so it follows the call chain fn is
// part of and nothing else: a goroutine fn spawns without handing it ctx
// is correctly not the CPU thread, and two goroutines each inside their
// own RunOnCPUThread call don't see each other's identity.
func (c *CPU) RunOnCPUThread(ctx context.Context, fn func(ctx context.Context)) {
	fn(context.WithValue(ctx, cpuThreadKey{}, true))
}

// SetDeterminism toggles whether netplay/movie-replay determinism is
// currently required.
func (c *CPU) SetDeterminism(want bool) { c.determinism.Store(want) }

// Downcount returns the remaining scaled cycles in the current slice.
func (c *CPU) Downcount() int32 { return c.downcount }

// SetDowncount reprograms the remaining scaled cycles.
func (c *CPU) SetDowncount(v int32) { c.downcount = v }

// IsCPUThread reports whether ctx descends from a RunOnCPUThread call.
func (c *CPU) IsCPUThread(ctx context.Context) bool {
	onCPU, _ := ctx.Value(cpuThreadKey{}).(bool)
	return onCPU
}

// WantsDeterminism reports the value last set by SetDeterminism.
func (c *CPU) WantsDeterminism() bool { return c.determinism.Load() }

// CheckExternalExceptions counts the call; a real interpreter would
// inspect its pending-interrupt state here.
func (c *CPU) CheckExternalExceptions() {
	c.exceptionChecks++
}

// ExceptionChecks returns how many times CheckExternalExceptions has run,
// for tests asserting Advance calls it exactly once per slice.
func (c *CPU) ExceptionChecks() uint64 { return c.exceptionChecks }

// UpdatePerformanceMonitor records the sample Idle reports when it skips
// cycles.
func (c *CPU) UpdatePerformanceMonitor(downcount int32, numLoadStores, numFPInsns int) {
	c.lastPerfMonitor = perfSample{downcount, numLoadStores, numFPInsns}
	c.log.Debugf("perfmon: downcount=%d loadStores=%d fpInsns=%d", downcount, numLoadStores, numFPInsns)
}
