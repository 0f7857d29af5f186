// Package orders turns a completed session's captured cart into a persisted
// order and raises the matching admin notification.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/surtifrio/flowbot/internal/models"
	"github.com/surtifrio/flowbot/internal/util"
)

// Store is the subset of the store the materializer writes to.
type Store interface {
	CreateOrder(o models.Order) error
	AddNotification(n models.Notification) error
}

// Opts holds configuration options for the materializer.
type Opts struct {
	Coordinator      string // coordinator assigned to new orders
	CoordinatorPhone string // coordinator contact phone
}

// Option defines a configuration option for the materializer.
type Option func(*Opts)

// WithCoordinator sets the coordinator assigned to new orders.
func WithCoordinator(name, phone string) Option {
	return func(o *Opts) {
		o.Coordinator = name
		o.CoordinatorPhone = phone
	}
}

// Materializer converts captured session carts into persisted orders.
type Materializer struct {
	store Store
	opts  Opts
}

// NewMaterializer creates a Materializer writing to the given store.
func NewMaterializer(store Store, opts ...Option) *Materializer {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating Materializer", "coordinator_set", cfg.Coordinator != "")
	return &Materializer{store: store, opts: cfg}
}

// CreateOrder materializes the session's cart into a pending order. Every
// line's subtotal is recomputed as quantity times unit price before the total
// is summed, so a violating captured entry can never reach the store. The
// order's status history is seeded with its initial status; it is never empty
// at creation time. A new_order notification is raised after the order
// persists.
func (m *Materializer) CreateOrder(ctx context.Context, sess *models.Session, identity string) (*models.Order, error) {
	if len(sess.Cart) == 0 {
		return nil, models.ErrNoLineItems
	}

	now := time.Now()
	items := make([]models.CartItem, len(sess.Cart))
	var total float64
	for i, item := range sess.Cart {
		if err := item.Validate(); err != nil {
			slog.Error("Materializer rejecting cart line", "error", err, "identity", identity, "product", item.ProductName)
			return nil, fmt.Errorf("invalid cart line %q: %w", item.ProductName, err)
		}
		// Recompute rather than trust the captured subtotal.
		item.Subtotal = float64(item.Quantity) * item.UnitPrice
		items[i] = item
		total += item.Subtotal
	}

	order := models.Order{
		ID:                  uuid.NewString(),
		Phone:               identity,
		ClientType:          sess.Field("client_type"),
		BusinessName:        sess.Field("business_name"),
		City:                sess.Field("city"),
		Address:             sess.Field("address"),
		ContactPerson:       sess.Field("contact_person"),
		LineItems:           items,
		Total:               total,
		AssignedCoordinator: m.opts.Coordinator,
		CoordinatorPhone:    m.opts.CoordinatorPhone,
		Status:              models.OrderStatusPending,
		StatusHistory:       []models.StatusChange{{Status: models.OrderStatusPending, At: now}},
		CreatedAt:           now,
	}
	if err := order.Validate(); err != nil {
		slog.Error("Materializer order validation failed", "error", err, "identity", identity)
		return nil, err
	}

	if err := m.store.CreateOrder(order); err != nil {
		slog.Error("Materializer CreateOrder persist failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	notification := models.Notification{
		ID:        util.GenerateNotificationID(),
		Kind:      models.NotificationNewOrder,
		Message:   fmt.Sprintf("Nuevo pedido de %s por $%.0f", identity, total),
		Reference: &models.Reference{Kind: models.ReferenceOrder, ID: order.ID},
		CreatedAt: now,
	}
	if err := m.store.AddNotification(notification); err != nil {
		// The order is already persisted; a missed notification is logged, not fatal.
		slog.Error("Materializer notification failed", "error", err, "orderID", order.ID)
	}

	slog.Info("Materializer order created", "orderID", order.ID, "identity", identity, "total", total, "lines", len(items))
	return &order, nil
}
