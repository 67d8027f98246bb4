package cpu

import (
	"context"
	"sync"
	"testing"
)

func TestRunOnCPUThreadScoping(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	if c.IsCPUThread(ctx) {
		t.Fatal("expected a bare background context not to carry CPU-thread identity")
	}
	var sawInside bool
	c.RunOnCPUThread(ctx, func(ctx context.Context) {
		sawInside = c.IsCPUThread(ctx)
	})
	if !sawInside {
		t.Fatal("expected IsCPUThread to report true on the context RunOnCPUThread hands to fn")
	}
}

func TestRunOnCPUThreadDoesNotLeakToUnrelatedContexts(t *testing.T) {
	c := New(nil)
	var sawOutside bool
	c.RunOnCPUThread(context.Background(), func(ctx context.Context) {
		sawOutside = c.IsCPUThread(context.Background())
	})
	if sawOutside {
		t.Fatal("a context not derived from RunOnCPUThread should never carry CPU-thread identity")
	}
}

func TestRunOnCPUThreadIsPerGoroutine(t *testing.T) {
	c := New(nil)
	var wg sync.WaitGroup
	var sawOutside bool
	wg.Add(1)
	c.RunOnCPUThread(context.Background(), func(ctx context.Context) {
		go func() {
			defer wg.Done()
			// This goroutine was not handed ctx, so it must not observe
			// CPU-thread identity even though it runs concurrently with
			// a RunOnCPUThread call still in progress.
			sawOutside = c.IsCPUThread(context.Background())
		}()
		wg.Wait()
	})
	if sawOutside {
		t.Fatal("a goroutine not carrying the derived context should not inherit CPU-thread identity")
	}
}

func TestRunOnCPUThreadCallsConcurrentlyDoNotInterfere(t *testing.T) {
	c := New(nil)
	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RunOnCPUThread(context.Background(), func(ctx context.Context) {
				results[i] = c.IsCPUThread(ctx)
			})
		}(i)
	}
	wg.Wait()
	for i, got := range results {
		if !got {
			t.Fatalf("call %d: expected its own context to carry CPU-thread identity", i)
		}
	}
}

func TestDowncount(t *testing.T) {
	c := New(nil)
	if c.Downcount() != 0 {
		t.Fatalf("expected zero downcount initially, got %d", c.Downcount())
	}
	c.SetDowncount(500)
	if c.Downcount() != 500 {
		t.Fatalf("expected 500, got %d", c.Downcount())
	}
}

func TestDeterminism(t *testing.T) {
	c := New(nil)
	if c.WantsDeterminism() {
		t.Fatal("expected determinism off by default")
	}
	c.SetDeterminism(true)
	if !c.WantsDeterminism() {
		t.Fatal("expected determinism on after SetDeterminism(true)")
	}
}

func TestExceptionChecksCounted(t *testing.T) {
	c := New(nil)
	c.CheckExternalExceptions()
	c.CheckExternalExceptions()
	if c.ExceptionChecks() != 2 {
		t.Fatalf("expected 2 checks, got %d", c.ExceptionChecks())
	}
}

func TestUpdatePerformanceMonitorDoesNotPanic(t *testing.T) {
	c := New(nil)
	c.UpdatePerformanceMonitor(100, 2, 3)
}
