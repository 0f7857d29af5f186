// Package store provides storage backends for flowbot.
//
// It includes an in-memory store for tests and single-process deployments,
// plus SQLite and PostgreSQL backed stores for persistent deployments.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/surtifrio/flowbot/internal/models"
)

// Store defines the persistence operations consumed by the flow engine,
// the order materializer, and the admin API.
type Store interface {
	// GetSession retrieves the session for an identity, or nil if none exists.
	GetSession(identity string) (*models.Session, error)

	// SaveSession stores or replaces the session for its identity.
	SaveSession(s models.Session) error

	// ListSessions returns all sessions. Used for timer recovery at startup.
	ListSessions() ([]models.Session, error)

	// AppendConversationEntry appends one transcript line.
	AppendConversationEntry(e models.ConversationEntry) error

	// GetConversation returns the transcript for an identity in append order.
	GetConversation(identity string) ([]models.ConversationEntry, error)

	// RecordMilestone appends one conversation milestone.
	RecordMilestone(m models.Milestone) error

	// GetMilestones returns the milestones for an identity in append order.
	GetMilestones(identity string) ([]models.Milestone, error)

	// CreateOrder persists a new order.
	CreateOrder(o models.Order) error

	// GetOrder retrieves an order by ID, or nil if none exists.
	GetOrder(id string) (*models.Order, error)

	// ListOrders returns all orders, newest first.
	ListOrders() ([]models.Order, error)

	// UpdateOrder replaces a persisted order by ID.
	UpdateOrder(o models.Order) error

	// AddNotification persists an admin notification.
	AddNotification(n models.Notification) error

	// ListNotifications returns all notifications, newest first.
	ListNotifications() ([]models.Notification, error)

	// MarkNotificationRead flags a notification as read.
	MarkNotificationRead(id string) error

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string (file path for SQLite)
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its shape.
// PostgreSQL DSNs use URL or key=value forms; anything else is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded in-memory Store.
type InMemoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]models.Session
	conversations map[string][]models.ConversationEntry
	milestones    map[string][]models.Milestone
	orders        map[string]models.Order
	orderSeq      []string
	notifications map[string]models.Notification
	notifSeq      []string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:      make(map[string]models.Session),
		conversations: make(map[string][]models.ConversationEntry),
		milestones:    make(map[string][]models.Milestone),
		orders:        make(map[string]models.Order),
		notifications: make(map[string]models.Notification),
	}
}

// GetSession retrieves the session for an identity, or nil if none exists.
func (s *InMemoryStore) GetSession(identity string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[identity]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// SaveSession stores or replaces the session for its identity.
func (s *InMemoryStore) SaveSession(sess models.Session) error {
	if sess.Identity == "" {
		return models.ErrEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Identity] = sess
	return nil
}

// ListSessions returns all sessions sorted by identity.
func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Identity < sessions[j].Identity })
	return sessions, nil
}

// AppendConversationEntry appends one transcript line.
func (s *InMemoryStore) AppendConversationEntry(e models.ConversationEntry) error {
	if e.Identity == "" {
		return models.ErrEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[e.Identity] = append(s.conversations[e.Identity], e)
	return nil
}

// GetConversation returns the transcript for an identity in append order.
func (s *InMemoryStore) GetConversation(identity string) ([]models.ConversationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.conversations[identity]
	out := make([]models.ConversationEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// RecordMilestone appends one conversation milestone.
func (s *InMemoryStore) RecordMilestone(m models.Milestone) error {
	if m.Identity == "" {
		return models.ErrEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.milestones[m.Identity] = append(s.milestones[m.Identity], m)
	return nil
}

// GetMilestones returns the milestones for an identity in append order.
func (s *InMemoryStore) GetMilestones(identity string) ([]models.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms := s.milestones[identity]
	out := make([]models.Milestone, len(ms))
	copy(out, ms)
	return out, nil
}

// CreateOrder persists a new order.
func (s *InMemoryStore) CreateOrder(o models.Order) error {
	if o.ID == "" {
		return fmt.Errorf("order ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	s.orders[o.ID] = o
	s.orderSeq = append(s.orderSeq, o.ID)
	return nil
}

// GetOrder retrieves an order by ID, or nil if none exists.
func (s *InMemoryStore) GetOrder(id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// ListOrders returns all orders, newest first.
func (s *InMemoryStore) ListOrders() ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0, len(s.orderSeq))
	for i := len(s.orderSeq) - 1; i >= 0; i-- {
		out = append(out, s.orders[s.orderSeq[i]])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateOrder replaces a persisted order by ID.
func (s *InMemoryStore) UpdateOrder(o models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; !exists {
		return fmt.Errorf("order %s not found", o.ID)
	}
	s.orders[o.ID] = o
	return nil
}

// AddNotification persists an admin notification.
func (s *InMemoryStore) AddNotification(n models.Notification) error {
	if n.ID == "" {
		return fmt.Errorf("notification ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = n
	s.notifSeq = append(s.notifSeq, n.ID)
	return nil
}

// ListNotifications returns all notifications, newest first.
func (s *InMemoryStore) ListNotifications() ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Notification, 0, len(s.notifSeq))
	for i := len(s.notifSeq) - 1; i >= 0; i-- {
		out = append(out, s.notifications[s.notifSeq[i]])
	}
	return out, nil
}

// MarkNotificationRead flags a notification as read.
func (s *InMemoryStore) MarkNotificationRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("notification %s not found", id)
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
