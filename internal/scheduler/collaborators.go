package scheduler

import "context"

// CPU is the subset of the guest processor the scheduler consumes: its
// downcount register and a handful of thread-identity/exception hooks.
// Everything else about instruction execution is an external concern.
type CPU interface {
	// Downcount returns the remaining scaled cycles in the current
	// slice.
	Downcount() int32
	// SetDowncount reprograms the remaining scaled cycles.
	SetDowncount(int32)
	// IsCPUThread reports whether ctx descends from a RunOnCPUThread
	// call, i.e. whether it identifies the privileged CPU thread's call
	// chain.
	IsCPUThread(ctx context.Context) bool
	// WantsDeterminism reports whether replay/netplay determinism is
	// currently required.
	WantsDeterminism() bool
	// CheckExternalExceptions is invoked once at the end of Advance,
	// after event dispatch, so that callbacks raising interrupts are
	// not delayed a full slice.
	CheckExternalExceptions()
	// UpdatePerformanceMonitor is invoked from Idle with the downcount
	// value at the moment cycles were skipped.
	UpdatePerformanceMonitor(downcount int32, numLoadStores, numFPInsns int)
}

// FIFO is the GPU command-stream collaborator. Only a blocking flush is
// consumed, used by Idle under strict video/CPU sync.
type FIFO interface {
	FlushGPU()
}

// ConfigProvider is the configuration collaborator: the three scalars the
// scheduler reads, plus change notification.
type ConfigProvider interface {
	OverclockEnabled() bool
	Overclock() float32
	SyncOnSkipIdle() bool
	// OnConfigChanged registers fn to be called whenever the
	// configuration changes, and returns an id usable with
	// RemoveConfigChangedCallback.
	OnConfigChanged(fn func()) int
	RemoveConfigChangedCallback(id int)
}
