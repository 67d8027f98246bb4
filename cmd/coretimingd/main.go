// Command coretimingd is a small, flag-driven demonstration of the
// scheduler: it registers one event type, schedules (or restores) a
// pending event, runs a fixed number of slices, and optionally saves the
// resulting state. It is not a product surface, just a runnable exercise
// of registration, scheduling, Advance and save/restore; it does not call
// Idle, RemoveEvent, AdjustEventQueueTimes or ForceExceptionCheck.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/coretiming/scheduler/internal/config"
	"github.com/coretiming/scheduler/internal/savestate"
	"github.com/coretiming/scheduler/internal/scheduler"
	"github.com/coretiming/scheduler/internal/system"
	"github.com/coretiming/scheduler/pkg/log"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overclock_enable, overclock, sync_on_skip_idle)")
	saveDBPath := flag.String("savedb", "", "path to a bbolt savestate database")
	slices := flag.Int("slices", 10, "number of scheduler slices to run")
	saveSlot := flag.String("save", "", "save the final state to this slot name before exiting")
	loadSlot := flag.String("load", "", "load this slot name before running, instead of scheduling a fresh demo event")
	flag.Parse()

	logger := log.New("coretimingd")

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath, logger)
	} else {
		cfg = config.Static(false, 1.0, false)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sys := system.New(cfg, logger)
	defer sys.Close()

	demoEvent := sys.Scheduler.RegisterEvent("demo.tick", func(_ context.Context, _ any, userdata uint64, cyclesLate int64) {
		logger.Infof("demo.tick fired: userdata=%d cyclesLate=%d", userdata, cyclesLate)
	})

	if *saveDBPath != "" {
		store, err := savestate.Open(*saveDBPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer store.Close()
		sys.AttachSaves(store)
	}

	if *loadSlot != "" {
		if err := sys.LoadFrom(*loadSlot); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	} else {
		sys.CPU.RunOnCPUThread(context.Background(), func(ctx context.Context) {
			sys.Scheduler.ScheduleEvent(ctx, 100, demoEvent, 42, scheduler.FromCPU)
		})
	}

	for i := 0; i < *slices; i++ {
		sys.Advance(context.Background())
	}

	if *saveSlot != "" {
		if err := sys.SaveTo(*saveSlot); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Infof("saved state to slot %q", *saveSlot)
	}
}
