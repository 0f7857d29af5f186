package flow

import (
	"testing"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

func TestSessionManagerEnsureCreatesOnFirstContact(t *testing.T) {
	st := newFakeStore()
	sm := NewSessionManager(st)

	sess, err := sm.Ensure("111111")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if sess.Identity != "111111" {
		t.Errorf("identity = %q, want 111111", sess.Identity)
	}
	if sess.StartedAt.IsZero() || sess.LastMessageAt.IsZero() {
		t.Error("new session must have timestamps set")
	}
}

func TestSessionManagerEnsureRefreshesLastMessage(t *testing.T) {
	st := newFakeStore()
	old := time.Now().Add(-time.Hour)
	st.sessions["222222"] = models.Session{Identity: "222222", StartedAt: old, LastMessageAt: old}
	sm := NewSessionManager(st)

	sess, err := sm.Ensure("222222")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !sess.LastMessageAt.After(old) {
		t.Error("LastMessageAt must be refreshed")
	}
	if !sess.StartedAt.Equal(old) {
		t.Error("StartedAt must not change for an existing session")
	}
}

func TestSessionManagerEnsureEmptyIdentity(t *testing.T) {
	sm := NewSessionManager(newFakeStore())
	if _, err := sm.Ensure(""); err == nil {
		t.Error("expected error for empty identity")
	}
}

func TestSessionManagerResetToRootKeepsHistory(t *testing.T) {
	st := newFakeStore()
	st.sessions["333333"] = models.Session{
		Identity:    "333333",
		CurrentFlow: "cantidad",
		Fields:      map[string]string{"city": "Medellín"},
		Cart:        []models.CartItem{{ProductName: "Chorizo artesanal", Quantity: 1, UnitPrice: 8600, Subtotal: 8600}},
	}
	sm := NewSessionManager(st)

	if err := sm.ResetToRoot("333333"); err != nil {
		t.Fatalf("ResetToRoot failed: %v", err)
	}
	sess := st.sessions["333333"]
	if sess.CurrentFlow != "" {
		t.Errorf("current flow = %q, want cleared", sess.CurrentFlow)
	}
	if sess.Fields["city"] != "Medellín" || len(sess.Cart) != 1 {
		t.Error("fields and cart must survive a reset to root")
	}
}

func TestSessionManagerResetToRootUnknownIdentityIsNoop(t *testing.T) {
	sm := NewSessionManager(newFakeStore())
	if err := sm.ResetToRoot("nadie"); err != nil {
		t.Errorf("reset of unknown identity must be a no-op, got %v", err)
	}
}
