package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
}

func TestSchedulerRejectsInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("not a cron", func() {}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	// 6-field (seconds) expressions are not accepted by the 5-field parser.
	if err := s.AddJob("0 0 3 * * *", func() {}); err == nil {
		t.Error("expected error for 6-field expression")
	}
}

type fakeOrderStore struct {
	orders        []models.Order
	notifications []models.Notification
	failList      bool
}

func (f *fakeOrderStore) ListOrders() ([]models.Order, error) {
	if f.failList {
		return nil, errors.New("list failed")
	}
	return f.orders, nil
}

func (f *fakeOrderStore) AddNotification(n models.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

func pendingOrder(id string, status models.OrderStatus, age time.Duration) models.Order {
	return models.Order{ID: id, Status: status, CreatedAt: time.Now().Add(-age)}
}

func TestPendingOrderReminderRaisesNotification(t *testing.T) {
	st := &fakeOrderStore{orders: []models.Order{
		pendingOrder("o1", models.OrderStatusPending, 48*time.Hour),
		pendingOrder("o2", models.OrderStatusPending, 30*time.Hour),
		pendingOrder("o3", models.OrderStatusPending, time.Hour),
		pendingOrder("o4", models.OrderStatusSent, 48*time.Hour),
	}}

	PendingOrderReminder(st, 24*time.Hour)()

	if len(st.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(st.notifications))
	}
	n := st.notifications[0]
	if n.Kind != models.NotificationPendingOrders {
		t.Errorf("kind = %v, want pending_orders", n.Kind)
	}
	if n.ID == "" {
		t.Error("notification ID must be set")
	}
}

func TestPendingOrderReminderNoStaleOrders(t *testing.T) {
	st := &fakeOrderStore{orders: []models.Order{
		pendingOrder("o1", models.OrderStatusPending, time.Hour),
		pendingOrder("o2", models.OrderStatusProcessed, 48*time.Hour),
	}}

	PendingOrderReminder(st, 24*time.Hour)()

	if len(st.notifications) != 0 {
		t.Errorf("no notification expected, got %+v", st.notifications)
	}
}

func TestPendingOrderReminderListFailure(t *testing.T) {
	st := &fakeOrderStore{failList: true}

	// Must not panic; the job runs unattended under cron.
	PendingOrderReminder(st, 24*time.Hour)()

	if len(st.notifications) != 0 {
		t.Errorf("no notification expected after list failure, got %+v", st.notifications)
	}
}
