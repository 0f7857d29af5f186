package flow

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestInactivityMonitorFiresAfterDelay(t *testing.T) {
	fired := make(chan string, 1)
	m := NewInactivityMonitor(20*time.Millisecond, func(identity string) {
		fired <- identity
	})
	defer m.Shutdown()

	m.Reset("111111")

	select {
	case identity := <-fired:
		if identity != "111111" {
			t.Errorf("close-out fired for %q, want 111111", identity)
		}
	case <-time.After(time.Second):
		t.Fatal("close-out did not fire")
	}

	if m.Active("111111") {
		t.Error("entry must be removed once the close-out fires")
	}
}

func TestInactivityMonitorResetSupersedesPrevious(t *testing.T) {
	var fires atomic.Int32
	m := NewInactivityMonitor(40*time.Millisecond, func(identity string) {
		fires.Add(1)
	})
	defer m.Shutdown()

	// Keep resetting faster than the delay; no close-out may fire meanwhile.
	for i := 0; i < 5; i++ {
		m.Reset("222222")
		time.Sleep(10 * time.Millisecond)
	}
	if got := fires.Load(); got != 0 {
		t.Fatalf("close-out fired %d times during active resets, want 0", got)
	}

	// Now go quiet and expect exactly one fire.
	time.Sleep(150 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Errorf("close-out fired %d times after quiet period, want 1", got)
	}
}

func TestInactivityMonitorCancel(t *testing.T) {
	var fires atomic.Int32
	m := NewInactivityMonitor(20*time.Millisecond, func(identity string) {
		fires.Add(1)
	})
	defer m.Shutdown()

	m.Reset("333333")
	m.Cancel("333333")

	if m.Active("333333") {
		t.Error("Cancel must remove the entry")
	}
	time.Sleep(80 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Errorf("cancelled timer fired %d times, want 0", got)
	}

	// Idempotent.
	m.Cancel("333333")
}

func TestInactivityMonitorAtMostOneTimerUnderConcurrentResets(t *testing.T) {
	var fires atomic.Int32
	m := NewInactivityMonitor(30*time.Millisecond, func(identity string) {
		fires.Add(1)
	})
	defer m.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Reset("444444")
			}
		}()
	}
	wg.Wait()

	time.Sleep(150 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Errorf("close-out fired %d times after concurrent resets, want exactly 1", got)
	}
}

func TestInactivityMonitorEntryRemovedBeforeCallback(t *testing.T) {
	var m *InactivityMonitor
	done := make(chan bool, 1)
	m = NewInactivityMonitor(20*time.Millisecond, func(identity string) {
		done <- m.Active(identity)
	})
	defer m.Shutdown()

	m.Reset("555555")

	select {
	case active := <-done:
		if active {
			t.Error("entry must be removed before the close-out callback runs")
		}
	case <-time.After(time.Second):
		t.Fatal("close-out did not fire")
	}
}

func TestInactivityMonitorShutdownCancelsAll(t *testing.T) {
	var fires atomic.Int32
	m := NewInactivityMonitor(30*time.Millisecond, func(identity string) {
		fires.Add(1)
	})

	m.Reset("666666")
	m.Reset("777777")
	m.Shutdown()

	time.Sleep(100 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Errorf("close-out fired %d times after shutdown, want 0", got)
	}
}

func TestInactivityMonitorEmptyIdentityIgnored(t *testing.T) {
	m := NewInactivityMonitor(time.Hour, nil)
	defer m.Shutdown()
	m.Reset("")
	if m.Active("") {
		t.Error("empty identity must not get a timer")
	}
}

func TestInactivityMonitorDefaultDelay(t *testing.T) {
	m := NewInactivityMonitor(0, nil)
	defer m.Shutdown()
	if m.Delay() != DefaultInactivityDelay {
		t.Errorf("Delay() = %v, want %v", m.Delay(), DefaultInactivityDelay)
	}
}
