package recovery

import (
	"errors"
	"testing"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

type fakeLister struct {
	sessions []models.Session
	fail     bool
}

func (f *fakeLister) ListSessions() ([]models.Session, error) {
	if f.fail {
		return nil, errors.New("list failed")
	}
	return f.sessions, nil
}

type fakeTimers struct {
	delay  time.Duration
	resets []string
}

func (f *fakeTimers) Reset(identity string) { f.resets = append(f.resets, identity) }
func (f *fakeTimers) Delay() time.Duration  { return f.delay }

func TestRecoverTimersSkipsRootSessions(t *testing.T) {
	lister := &fakeLister{sessions: []models.Session{
		{Identity: "3001", CurrentFlow: "", LastMessageAt: time.Now()},
	}}
	timers := &fakeTimers{delay: 10 * time.Minute}

	rearmed, closed, err := NewRecoverer(lister, timers, nil).RecoverTimers()
	if err != nil {
		t.Fatal(err)
	}
	if rearmed != 0 || closed != 0 || len(timers.resets) != 0 {
		t.Errorf("rearmed=%d closed=%d resets=%v, want nothing touched", rearmed, closed, timers.resets)
	}
}

func TestRecoverTimersRearmsRecentSessions(t *testing.T) {
	lister := &fakeLister{sessions: []models.Session{
		{Identity: "3001", CurrentFlow: "catalogo", LastMessageAt: time.Now().Add(-time.Minute)},
		{Identity: "3002", CurrentFlow: "cantidad", LastMessageAt: time.Now().Add(-2 * time.Minute)},
	}}
	timers := &fakeTimers{delay: 10 * time.Minute}
	var closedOut []string

	rearmed, closed, err := NewRecoverer(lister, timers, func(id string) { closedOut = append(closedOut, id) }).RecoverTimers()
	if err != nil {
		t.Fatal(err)
	}
	if rearmed != 2 || closed != 0 {
		t.Errorf("rearmed=%d closed=%d, want 2/0", rearmed, closed)
	}
	if len(timers.resets) != 2 || len(closedOut) != 0 {
		t.Errorf("resets=%v closedOut=%v", timers.resets, closedOut)
	}
}

func TestRecoverTimersClosesExpiredSessions(t *testing.T) {
	lister := &fakeLister{sessions: []models.Session{
		{Identity: "3001", CurrentFlow: "catalogo", LastMessageAt: time.Now().Add(-time.Hour)},
		{Identity: "3002", CurrentFlow: "cantidad", LastMessageAt: time.Now().Add(-time.Minute)},
	}}
	timers := &fakeTimers{delay: 10 * time.Minute}
	var closedOut []string

	rearmed, closed, err := NewRecoverer(lister, timers, func(id string) { closedOut = append(closedOut, id) }).RecoverTimers()
	if err != nil {
		t.Fatal(err)
	}
	if rearmed != 1 || closed != 1 {
		t.Errorf("rearmed=%d closed=%d, want 1/1", rearmed, closed)
	}
	if len(closedOut) != 1 || closedOut[0] != "3001" {
		t.Errorf("closedOut = %v, want [3001]", closedOut)
	}
	if len(timers.resets) != 1 || timers.resets[0] != "3002" {
		t.Errorf("resets = %v, want [3002]", timers.resets)
	}
}

func TestRecoverTimersWithoutCloseOutRearmsExpired(t *testing.T) {
	lister := &fakeLister{sessions: []models.Session{
		{Identity: "3001", CurrentFlow: "catalogo", LastMessageAt: time.Now().Add(-time.Hour)},
	}}
	timers := &fakeTimers{delay: 10 * time.Minute}

	rearmed, closed, err := NewRecoverer(lister, timers, nil).RecoverTimers()
	if err != nil {
		t.Fatal(err)
	}
	if rearmed != 1 || closed != 0 || len(timers.resets) != 1 {
		t.Errorf("rearmed=%d closed=%d resets=%v, want expired session re-armed", rearmed, closed, timers.resets)
	}
}

func TestRecoverTimersListFailure(t *testing.T) {
	timers := &fakeTimers{delay: 10 * time.Minute}

	if _, _, err := NewRecoverer(&fakeLister{fail: true}, timers, nil).RecoverTimers(); err == nil {
		t.Error("expected list failure to surface")
	}
}
