// Package flow provides the per-identity inactivity timer registry.
package flow

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultInactivityDelay is the close-out delay used when none is configured.
// Production deployments have run with both 5 and 10 minutes; the delay is a
// single configurable value, not a per-flow setting.
const DefaultInactivityDelay = 10 * time.Minute

// CloseOutFunc is invoked with the identity whose conversation timed out.
// By the time it runs the identity's timer entry has been removed, so a
// subsequent Reset starts clean.
type CloseOutFunc func(identity string)

// inactivityEntry tracks one scheduled close-out. The generation counter
// distinguishes the live timer from an already-superseded one so that a
// callback racing with Reset never fires for a stale schedule.
type inactivityEntry struct {
	timer *time.Timer
	gen   uint64
}

// InactivityMonitor keeps at most one pending close-out timer per identity.
// It is the only mutable state shared across dispatches for different
// identities; all access is guarded by one mutex so reset-is-cancel-then-
// schedule is atomic per identity.
type InactivityMonitor struct {
	mu       sync.Mutex
	timers   map[string]*inactivityEntry
	delay    time.Duration
	closeOut CloseOutFunc
}

// NewInactivityMonitor creates a monitor with the given close-out delay and
// callback. A non-positive delay falls back to DefaultInactivityDelay.
func NewInactivityMonitor(delay time.Duration, closeOut CloseOutFunc) *InactivityMonitor {
	if delay <= 0 {
		delay = DefaultInactivityDelay
	}
	slog.Debug("Creating InactivityMonitor", "delay", delay)
	return &InactivityMonitor{
		timers:   make(map[string]*inactivityEntry),
		delay:    delay,
		closeOut: closeOut,
	}
}

// Reset cancels any pending close-out for the identity and schedules a new
// one after the configured delay. Every successful flow dispatch must call
// this exactly once.
func (m *InactivityMonitor) Reset(identity string) {
	if identity == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var gen uint64 = 1
	if prev, ok := m.timers[identity]; ok {
		prev.timer.Stop()
		gen = prev.gen + 1
	}
	entry := &inactivityEntry{gen: gen}
	entry.timer = time.AfterFunc(m.delay, func() {
		m.expire(identity, gen)
	})
	m.timers[identity] = entry
	slog.Debug("InactivityMonitor timer reset", "identity", identity, "delay", m.delay)
}

// Cancel removes any pending close-out for the identity. Idempotent.
func (m *InactivityMonitor) Cancel(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.timers[identity]; ok {
		entry.timer.Stop()
		delete(m.timers, identity)
		slog.Debug("InactivityMonitor timer cancelled", "identity", identity)
	}
}

// Active reports whether a close-out is currently scheduled for the identity.
func (m *InactivityMonitor) Active(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[identity]
	return ok
}

// Delay returns the configured close-out delay.
func (m *InactivityMonitor) Delay() time.Duration {
	return m.delay
}

// Shutdown cancels all pending close-outs.
func (m *InactivityMonitor) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	slog.Debug("InactivityMonitor shutting down", "pending", len(m.timers))
	for identity, entry := range m.timers {
		entry.timer.Stop()
		delete(m.timers, identity)
	}
}

// expire runs when a scheduled timer fires. A stale generation means the
// timer was superseded by a later Reset between firing and acquiring the
// lock, in which case nothing happens.
func (m *InactivityMonitor) expire(identity string, gen uint64) {
	m.mu.Lock()
	entry, ok := m.timers[identity]
	if !ok || entry.gen != gen {
		m.mu.Unlock()
		slog.Debug("InactivityMonitor ignoring stale timer", "identity", identity, "gen", gen)
		return
	}
	delete(m.timers, identity)
	m.mu.Unlock()

	slog.Info("InactivityMonitor close-out firing", "identity", identity)
	if m.closeOut != nil {
		m.closeOut(identity)
	}
}
