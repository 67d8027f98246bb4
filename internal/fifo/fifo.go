// Package fifo provides the GPU command-stream collaborator: a blocking
// flush operation, consumed by the scheduler's Idle when strict
// video/CPU synchronization is configured. Actual GPU command
// processing is out of scope for this module.
package fifo

import "github.com/coretiming/scheduler/pkg/log"

// FIFO tracks how many times the GPU command stream has been flushed.
// A real backend would drain a command buffer here; this module only
// needs the synchronization point.
type FIFO struct {
	flushes uint64
	log     log.Logger
}

// New returns an idle FIFO collaborator.
func New(logger log.Logger) *FIFO {
	if logger == nil {
		logger = log.NewNull()
	}
	return &FIFO{log: logger}
}

// FlushGPU blocks until any queued GPU commands have been processed.
func (f *FIFO) FlushGPU() {
	f.flushes++
	f.log.Debugf("fifo: flush #%d", f.flushes)
}

// Flushes returns how many times FlushGPU has been called.
func (f *FIFO) Flushes() uint64 { return f.flushes }
