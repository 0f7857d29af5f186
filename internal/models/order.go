// Package models defines the core data structures for flowbot.
//
// This file covers cart line items, persisted orders with their status
// history, and admin notifications.
package models

import (
	"errors"
	"time"
)

// Error variables for order validation
var (
	ErrEmptyOrderPhone    = errors.New("order phone cannot be empty")
	ErrNoLineItems        = errors.New("order requires at least one line item")
	ErrEmptyProductName   = errors.New("line item product name cannot be empty")
	ErrInvalidQuantity    = errors.New("line item quantity must be positive")
	ErrInvalidUnitPrice   = errors.New("line item unit price cannot be negative")
	ErrInvalidOrderStatus = errors.New("invalid order status")
	ErrEmptyStatusHistory = errors.New("order status history cannot be empty")
)

// CartItem is one captured cart line. The Subtotal invariant
// (Subtotal == Quantity * UnitPrice) is enforced when the order is
// materialized, not continuously while the cart is being built.
type CartItem struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

// Validate checks a cart line item for well-formedness.
func (c *CartItem) Validate() error {
	if c.ProductName == "" {
		return ErrEmptyProductName
	}
	if c.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if c.UnitPrice < 0 {
		return ErrInvalidUnitPrice
	}
	return nil
}

// OrderStatus represents the processing status of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was created but not yet dispatched.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusSent indicates the order was dispatched to the coordinator.
	OrderStatusSent OrderStatus = "sent"
	// OrderStatusProcessed indicates the order was fulfilled.
	OrderStatusProcessed OrderStatus = "processed"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValidOrderStatus checks if the given order status is supported.
func IsValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusSent, OrderStatusProcessed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// StatusChange is one entry in an order's status history.
type StatusChange struct {
	Status OrderStatus `json:"status"`
	At     time.Time   `json:"at"`
}

// Order is a persisted order materialized from a completed session.
// StatusHistory must contain at least one entry from creation time; the
// backfill-orders CLI repairs legacy rows that predate this invariant.
type Order struct {
	ID                  string         `json:"id"`
	Phone               string         `json:"phone"`
	ClientType          string         `json:"client_type"`
	BusinessName        string         `json:"business_name,omitempty"`
	City                string         `json:"city,omitempty"`
	Address             string         `json:"address,omitempty"`
	ContactPerson       string         `json:"contact_person,omitempty"`
	LineItems           []CartItem     `json:"line_items"`
	Total               float64        `json:"total"`
	AssignedCoordinator string         `json:"assigned_coordinator"`
	CoordinatorPhone    string         `json:"coordinator_phone"`
	Status              OrderStatus    `json:"status"`
	Notes               string         `json:"notes,omitempty"`
	StatusHistory       []StatusChange `json:"status_history"`
	CreatedAt           time.Time      `json:"created_at"`
}

// Validate performs structural validation on an order.
func (o *Order) Validate() error {
	if o.Phone == "" {
		return ErrEmptyOrderPhone
	}
	if len(o.LineItems) == 0 {
		return ErrNoLineItems
	}
	for i := range o.LineItems {
		if err := o.LineItems[i].Validate(); err != nil {
			return err
		}
	}
	if !IsValidOrderStatus(o.Status) {
		return ErrInvalidOrderStatus
	}
	if len(o.StatusHistory) == 0 {
		return ErrEmptyStatusHistory
	}
	return nil
}

// NotificationKind classifies admin dashboard notifications.
type NotificationKind string

const (
	// NotificationNewOrder signals that a new order was submitted.
	NotificationNewOrder NotificationKind = "new_order"
	// NotificationPendingOrders signals that orders have sat in pending too long.
	NotificationPendingOrders NotificationKind = "pending_orders"
)

// ReferenceKind identifies what a notification reference points to.
type ReferenceKind string

const (
	// ReferenceOrder points to an order.
	ReferenceOrder ReferenceKind = "order"
)

// Reference links a notification to the entity it is about.
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   string        `json:"id"`
}

// Notification is an entry on the admin dashboard notification feed.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	Reference *Reference       `json:"reference,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
