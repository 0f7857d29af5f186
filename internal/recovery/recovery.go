// Package recovery rebuilds the in-memory inactivity timer registry after a
// process restart.
//
// Timers live only in memory, so a restart would otherwise leave mid-flow
// conversations open forever. On startup the recoverer scans persisted
// sessions and re-arms a close-out timer for every conversation that was
// still inside a flow. Conversations whose last message is already older
// than the close-out delay are closed out immediately.
package recovery

import (
	"log/slog"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

// SessionLister is the store subset consumed by the recoverer.
type SessionLister interface {
	ListSessions() ([]models.Session, error)
}

// TimerRegistry is the inactivity monitor subset consumed by the recoverer.
type TimerRegistry interface {
	Reset(identity string)
	Delay() time.Duration
}

// Recoverer re-arms inactivity timers from persisted session state.
type Recoverer struct {
	sessions SessionLister
	timers   TimerRegistry
	closeOut func(identity string)
}

// NewRecoverer creates a Recoverer. closeOut is invoked directly for
// sessions whose inactivity window already elapsed while the process was
// down; it may be nil, in which case those sessions get a fresh timer
// instead.
func NewRecoverer(sessions SessionLister, timers TimerRegistry, closeOut func(identity string)) *Recoverer {
	return &Recoverer{sessions: sessions, timers: timers, closeOut: closeOut}
}

// RecoverTimers scans persisted sessions and restores timer state. Returns
// the number of timers re-armed and the number of sessions closed out
// immediately.
func (r *Recoverer) RecoverTimers() (rearmed, closed int, err error) {
	sessions, err := r.sessions.ListSessions()
	if err != nil {
		return 0, 0, err
	}

	delay := r.timers.Delay()
	now := time.Now()
	for _, sess := range sessions {
		// A session at the root flow has no pending conversation to close.
		if sess.CurrentFlow == "" {
			continue
		}

		elapsed := now.Sub(sess.LastMessageAt)
		if r.closeOut != nil && elapsed >= delay {
			slog.Info("Recovery closing expired conversation",
				"identity", sess.Identity, "flow", sess.CurrentFlow, "idle", elapsed)
			r.closeOut(sess.Identity)
			closed++
			continue
		}

		slog.Debug("Recovery re-arming inactivity timer",
			"identity", sess.Identity, "flow", sess.CurrentFlow, "idle", elapsed)
		r.timers.Reset(sess.Identity)
		rearmed++
	}

	slog.Info("Timer recovery complete", "rearmed", rearmed, "closed", closed, "sessions", len(sessions))
	return rearmed, closed, nil
}
