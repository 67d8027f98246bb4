// Package system is the explicit owning value that threads the CPU,
// FIFO, config and scheduler collaborators together, rather than
// reaching them through a process-wide singleton. It is constructed once
// and passed as the first argument to every event callback.
package system

import (
	"context"
	"errors"

	"github.com/coretiming/scheduler/internal/config"
	"github.com/coretiming/scheduler/internal/cpu"
	"github.com/coretiming/scheduler/internal/fifo"
	"github.com/coretiming/scheduler/internal/netplay"
	"github.com/coretiming/scheduler/internal/savestate"
	"github.com/coretiming/scheduler/internal/scheduler"
	"github.com/coretiming/scheduler/pkg/log"
)

// ErrNoSaveStore is returned by SaveTo/LoadFrom when no savestate.Store
// has been attached with AttachSaves.
var ErrNoSaveStore = errors.New("system: no savestate store attached")

// System owns one CPU, one FIFO, one Scheduler, one determinism
// broadcaster, and optionally one save-slot store.
type System struct {
	CPU       *cpu.CPU
	FIFO      *fifo.FIFO
	Config    *config.Config
	Scheduler *scheduler.Scheduler
	Netplay   *netplay.Broadcaster

	saves *savestate.Store
	log   log.Logger
}

// New constructs a System around cfg (which may be nil to use neutral
// defaults: no overclock, no sync-on-skip-idle).
func New(cfg *config.Config, logger log.Logger) *System {
	if logger == nil {
		logger = log.NewNull()
	}
	c := cpu.New(logger)
	f := fifo.New(logger)

	var provider scheduler.ConfigProvider
	if cfg != nil {
		provider = cfg
	}

	sys := &System{
		CPU:       c,
		FIFO:      f,
		Config:    cfg,
		Scheduler: scheduler.New(c, f, provider, logger),
		Netplay:   netplay.NewBroadcaster(logger),
		log:       logger,
	}
	sys.Scheduler.SetSystem(sys)
	return sys
}

// AttachSaves wires a save-slot store into the system, enabling
// SaveTo/LoadFrom.
func (sys *System) AttachSaves(store *savestate.Store) {
	sys.saves = store
}

// Advance runs one scheduler slice on the CPU thread, then, if any
// netplay peers are attached and determinism is required, broadcasts
// this tick's digest.
func (sys *System) Advance(ctx context.Context) {
	sys.CPU.RunOnCPUThread(ctx, func(ctx context.Context) {
		sys.Scheduler.Advance(ctx)
	})

	if sys.Netplay.PeerCount() == 0 || !sys.CPU.WantsDeterminism() {
		return
	}
	tick := sys.Scheduler.GlobalTimer()
	hash := netplay.Digest(tick, sys.Scheduler.SequenceCounter())
	sys.Netplay.BroadcastTick(uint64(tick), hash)
}

// SaveTo serializes the scheduler and writes it to the named slot in the
// attached save store.
func (sys *System) SaveTo(slot string) error {
	if sys.saves == nil {
		return ErrNoSaveStore
	}
	return sys.saves.Save(slot, sys.Scheduler.SaveState())
}

// LoadFrom reads the newest generation of the named slot and restores the
// scheduler from it.
func (sys *System) LoadFrom(slot string) error {
	if sys.saves == nil {
		return ErrNoSaveStore
	}
	blob, err := sys.saves.Load(slot)
	if err != nil {
		return err
	}
	return sys.Scheduler.LoadState(blob)
}

// Close shuts the scheduler down, stops the config watcher, and closes
// the save store, in that order.
func (sys *System) Close() error {
	sys.Scheduler.Shutdown()
	if sys.Config != nil {
		if err := sys.Config.Close(); err != nil {
			return err
		}
	}
	if sys.saves != nil {
		return sys.saves.Close()
	}
	return nil
}
