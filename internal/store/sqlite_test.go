package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "flowbot.db")
	st, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error without DSN")
	}
}

func TestSQLiteSessionRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetSession("3001112233")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown identity, got %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Second)
	sess := models.Session{Identity: "3001112233", CurrentFlow: "cantidad", StartedAt: now, LastMessageAt: now}
	sess.SetField("client_type", "negocios")
	sess.SetField("business_name", "Asadero El Buen Sabor")
	sess.Cart = []models.CartItem{{ProductName: "Alitas BBQ", Quantity: 2, UnitPrice: 9800, Subtotal: 19600}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	got, err = st.GetSession("3001112233")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("session missing after save")
	}
	if got.CurrentFlow != "cantidad" || got.Field("business_name") != "Asadero El Buen Sabor" {
		t.Errorf("round trip lost data: %+v", got)
	}
	if len(got.Cart) != 1 || got.Cart[0].Subtotal != 19600 {
		t.Errorf("cart lost: %+v", got.Cart)
	}

	// Upsert replaces the row.
	sess.CurrentFlow = ""
	sess.Cart = nil
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}
	got, _ = st.GetSession("3001112233")
	if got.CurrentFlow != "" || len(got.Cart) != 0 {
		t.Errorf("upsert did not replace: %+v", got)
	}
}

func TestSQLiteListSessions(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now().UTC()
	for _, id := range []string{"3002", "3001"} {
		if err := st.SaveSession(models.Session{Identity: id, CurrentFlow: "catalogo", StartedAt: now, LastMessageAt: now}); err != nil {
			t.Fatal(err)
		}
	}
	sessions, err := st.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].Identity != "3001" || sessions[1].Identity != "3002" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestSQLiteConversationAndMilestones(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now().UTC()

	entries := []models.ConversationEntry{
		{Identity: "3001", Role: models.RoleUser, Text: "hola", Timestamp: now},
		{Identity: "3001", Role: models.RoleBot, Text: "¡Hola! 👋", InteractionKind: "text", Timestamp: now.Add(time.Second)},
	}
	for _, e := range entries {
		if err := st.AppendConversationEntry(e); err != nil {
			t.Fatal(err)
		}
	}
	got, err := st.GetConversation("3001")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Text != "hola" || got[1].Role != models.RoleBot {
		t.Errorf("conversation = %+v", got)
	}

	m := models.Milestone{Identity: "3001", Kind: models.MilestoneOrder, Content: "orden=o1", Timestamp: now}
	if err := st.RecordMilestone(m); err != nil {
		t.Fatal(err)
	}
	ms, err := st.GetMilestones("3001")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 || ms[0].Kind != models.MilestoneOrder || ms[0].Content != "orden=o1" {
		t.Errorf("milestones = %+v", ms)
	}
}

func TestSQLiteOrderLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	order := testOrder("o1", now)
	order.ClientType = "hogar"
	if err := st.CreateOrder(order); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetOrder("o1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Total != 9800 || got.ClientType != "hogar" {
		t.Fatalf("GetOrder = %+v", got)
	}
	if len(got.StatusHistory) != 1 || got.StatusHistory[0].Status != models.OrderStatusPending {
		t.Errorf("status history = %+v", got.StatusHistory)
	}
	if missing, _ := st.GetOrder("nope"); missing != nil {
		t.Errorf("expected nil for unknown order, got %+v", missing)
	}

	got.Status = models.OrderStatusProcessed
	got.Notes = "entregado en bodega 14"
	got.StatusHistory = append(got.StatusHistory, models.StatusChange{Status: models.OrderStatusProcessed, At: now.Add(time.Hour)})
	if err := st.UpdateOrder(*got); err != nil {
		t.Fatal(err)
	}
	updated, _ := st.GetOrder("o1")
	if updated.Status != models.OrderStatusProcessed || updated.Notes == "" || len(updated.StatusHistory) != 2 {
		t.Errorf("update lost data: %+v", updated)
	}

	second := testOrder("o2", now.Add(time.Minute))
	if err := st.CreateOrder(second); err != nil {
		t.Fatal(err)
	}
	orders, err := st.ListOrders()
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 || orders[0].ID != "o2" {
		t.Errorf("orders not newest first: %+v", orders)
	}
}

func TestSQLiteNotifications(t *testing.T) {
	st := newTestSQLiteStore(t)
	now := time.Now().UTC()

	n := models.Notification{
		ID:        "n_abc",
		Kind:      models.NotificationNewOrder,
		Message:   "Nuevo pedido de 3001 por $9800",
		Reference: &models.Reference{Kind: models.ReferenceOrder, ID: "o1"},
		CreatedAt: now,
	}
	if err := st.AddNotification(n); err != nil {
		t.Fatal(err)
	}

	ns, err := st.ListNotifications()
	if err != nil {
		t.Fatal(err)
	}
	if len(ns) != 1 || ns[0].ID != "n_abc" || ns[0].Read {
		t.Fatalf("notifications = %+v", ns)
	}
	if ns[0].Reference == nil || ns[0].Reference.ID != "o1" {
		t.Errorf("reference lost: %+v", ns[0].Reference)
	}

	if err := st.MarkNotificationRead("n_abc"); err != nil {
		t.Fatal(err)
	}
	ns, _ = st.ListNotifications()
	if !ns[0].Read {
		t.Error("notification not marked read")
	}
}
