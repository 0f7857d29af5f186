package orders

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/surtifrio/flowbot/internal/models"
)

type fakeStore struct {
	orders        []models.Order
	notifications []models.Notification
	failOrder     bool
	failNotify    bool
}

func (f *fakeStore) CreateOrder(o models.Order) error {
	if f.failOrder {
		return errors.New("create failed")
	}
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeStore) AddNotification(n models.Notification) error {
	if f.failNotify {
		return errors.New("notify failed")
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func sessionWithCart(items ...models.CartItem) *models.Session {
	sess := &models.Session{Identity: "3001112233"}
	sess.SetField("client_type", "negocios")
	sess.SetField("business_name", "Asadero El Buen Sabor")
	sess.SetField("city", "Medellín")
	sess.SetField("contact_person", "Doña Marta")
	sess.Cart = items
	return sess
}

func TestCreateOrderPersistsCartAndFields(t *testing.T) {
	st := &fakeStore{}
	m := NewMaterializer(st, WithCoordinator("Coordinación de pedidos", "+573001112233"))
	sess := sessionWithCart(
		models.CartItem{ProductName: "Pechuga de pollo", Quantity: 2, UnitPrice: 12500, Subtotal: 25000},
		models.CartItem{ProductName: "Huevos AA x30", Quantity: 1, UnitPrice: 17500, Subtotal: 17500},
	)

	order, err := m.CreateOrder(context.Background(), sess, "3001112233")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if len(st.orders) != 1 {
		t.Fatalf("persisted orders = %d, want 1", len(st.orders))
	}
	if order.Total != 42500 {
		t.Errorf("total = %v, want 42500", order.Total)
	}
	if order.Status != models.OrderStatusPending {
		t.Errorf("status = %v, want pending", order.Status)
	}
	if order.BusinessName != "Asadero El Buen Sabor" || order.City != "Medellín" {
		t.Errorf("captured fields not carried over: %+v", order)
	}
	if order.AssignedCoordinator != "Coordinación de pedidos" || order.CoordinatorPhone != "+573001112233" {
		t.Errorf("coordinator assignment missing: %+v", order)
	}
}

func TestCreateOrderRecomputesSubtotals(t *testing.T) {
	st := &fakeStore{}
	m := NewMaterializer(st)
	// Captured subtotal disagrees with quantity times unit price.
	sess := sessionWithCart(models.CartItem{ProductName: "Chorizo artesanal", Quantity: 3, UnitPrice: 8600, Subtotal: 1})

	order, err := m.CreateOrder(context.Background(), sess, "3001112233")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if got := order.LineItems[0].Subtotal; got != 3*8600 {
		t.Errorf("subtotal = %v, want %v", got, 3*8600)
	}
	if order.Total != 3*8600 {
		t.Errorf("total = %v, want %v", order.Total, 3*8600)
	}
	// The session's own cart line stays untouched.
	if sess.Cart[0].Subtotal != 1 {
		t.Errorf("session cart mutated: %v", sess.Cart[0].Subtotal)
	}
}

func TestCreateOrderSeedsStatusHistory(t *testing.T) {
	st := &fakeStore{}
	m := NewMaterializer(st)
	sess := sessionWithCart(models.CartItem{ProductName: "Alitas BBQ", Quantity: 1, UnitPrice: 9800})

	order, err := m.CreateOrder(context.Background(), sess, "3001112233")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if len(order.StatusHistory) != 1 {
		t.Fatalf("status history length = %d, want 1", len(order.StatusHistory))
	}
	entry := order.StatusHistory[0]
	if entry.Status != models.OrderStatusPending {
		t.Errorf("seeded status = %v, want pending", entry.Status)
	}
	if !entry.At.Equal(order.CreatedAt) {
		t.Errorf("seeded At = %v, want CreatedAt %v", entry.At, order.CreatedAt)
	}
}

func TestCreateOrderEmptyCart(t *testing.T) {
	m := NewMaterializer(&fakeStore{})

	_, err := m.CreateOrder(context.Background(), &models.Session{Identity: "3001112233"}, "3001112233")
	if !errors.Is(err, models.ErrNoLineItems) {
		t.Errorf("err = %v, want ErrNoLineItems", err)
	}
}

func TestCreateOrderRejectsInvalidLine(t *testing.T) {
	st := &fakeStore{}
	m := NewMaterializer(st)
	sess := sessionWithCart(models.CartItem{ProductName: "Pechuga de pollo", Quantity: 0, UnitPrice: 12500})

	_, err := m.CreateOrder(context.Background(), sess, "3001112233")
	if err == nil {
		t.Fatal("expected error for zero quantity")
	}
	if len(st.orders) != 0 {
		t.Errorf("invalid order must not persist, got %d", len(st.orders))
	}
}

func TestCreateOrderPersistFailure(t *testing.T) {
	st := &fakeStore{failOrder: true}
	m := NewMaterializer(st)
	sess := sessionWithCart(models.CartItem{ProductName: "Alitas BBQ", Quantity: 1, UnitPrice: 9800})

	if _, err := m.CreateOrder(context.Background(), sess, "3001112233"); err == nil {
		t.Error("expected persist failure to surface")
	}
	if len(st.notifications) != 0 {
		t.Errorf("no notification may be raised without a persisted order, got %d", len(st.notifications))
	}
}

func TestCreateOrderRaisesNotification(t *testing.T) {
	st := &fakeStore{}
	m := NewMaterializer(st)
	sess := sessionWithCart(models.CartItem{ProductName: "Alitas BBQ", Quantity: 2, UnitPrice: 9800})

	order, err := m.CreateOrder(context.Background(), sess, "3001112233")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if len(st.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(st.notifications))
	}
	n := st.notifications[0]
	if n.Kind != models.NotificationNewOrder {
		t.Errorf("kind = %v, want new_order", n.Kind)
	}
	if !strings.HasPrefix(n.ID, "n_") {
		t.Errorf("notification ID = %q, want n_ prefix", n.ID)
	}
	if n.Reference == nil || n.Reference.ID != order.ID || n.Reference.Kind != models.ReferenceOrder {
		t.Errorf("reference = %+v, want order %s", n.Reference, order.ID)
	}
}

func TestCreateOrderNotificationFailureIsNonFatal(t *testing.T) {
	st := &fakeStore{failNotify: true}
	m := NewMaterializer(st)
	sess := sessionWithCart(models.CartItem{ProductName: "Alitas BBQ", Quantity: 1, UnitPrice: 9800})

	order, err := m.CreateOrder(context.Background(), sess, "3001112233")
	if err != nil {
		t.Fatalf("CreateOrder must succeed when only the notification fails: %v", err)
	}
	if len(st.orders) != 1 || st.orders[0].ID != order.ID {
		t.Errorf("order not persisted: %+v", st.orders)
	}
}
