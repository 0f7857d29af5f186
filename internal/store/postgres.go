// Package store provides storage backends for flowbot.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/surtifrio/flowbot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetSession retrieves the session for an identity, or nil if none exists.
func (s *PostgresStore) GetSession(identity string) (*models.Session, error) {
	query := `SELECT identity, current_flow, fields, cart, started_at, last_message_at
			  FROM sessions WHERE identity = $1`

	var sess models.Session
	var fieldsJSON, cartJSON sql.NullString

	err := s.db.QueryRow(query, identity).Scan(
		&sess.Identity, &sess.CurrentFlow, &fieldsJSON, &cartJSON,
		&sess.StartedAt, &sess.LastMessageAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query session for %s: %w", identity, err)
	}

	decodeSessionColumns(&sess, fieldsJSON.String, cartJSON.String)
	slog.Debug("PostgresStore GetSession found", "identity", identity, "currentFlow", sess.CurrentFlow)
	return &sess, nil
}

// SaveSession stores or replaces the session for its identity.
func (s *PostgresStore) SaveSession(sess models.Session) error {
	if sess.Identity == "" {
		return models.ErrEmptyIdentity
	}
	fieldsJSON, cartJSON, err := sessionColumns(sess)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "identity", sess.Identity)
		return err
	}

	query := `
		INSERT INTO sessions (identity, current_flow, fields, cart, started_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity) DO UPDATE SET
			current_flow = EXCLUDED.current_flow,
			fields = EXCLUDED.fields,
			cart = EXCLUDED.cart,
			last_message_at = EXCLUDED.last_message_at`
	_, err = s.db.Exec(query, sess.Identity, sess.CurrentFlow,
		nilIfEmpty(fieldsJSON), nilIfEmpty(cartJSON), sess.StartedAt, sess.LastMessageAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "identity", sess.Identity)
		return fmt.Errorf("failed to save session for %s: %w", sess.Identity, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "identity", sess.Identity, "currentFlow", sess.CurrentFlow)
	return nil
}

// ListSessions returns all sessions ordered by identity.
func (s *PostgresStore) ListSessions() ([]models.Session, error) {
	query := `SELECT identity, current_flow, fields, cart, started_at, last_message_at
			  FROM sessions ORDER BY identity`

	rows, err := s.db.Query(query)
	if err != nil {
		slog.Error("PostgresStore ListSessions failed", "error", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		var fieldsJSON, cartJSON sql.NullString
		if err := rows.Scan(&sess.Identity, &sess.CurrentFlow, &fieldsJSON, &cartJSON,
			&sess.StartedAt, &sess.LastMessageAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		decodeSessionColumns(&sess, fieldsJSON.String, cartJSON.String)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AppendConversationEntry appends one transcript line.
func (s *PostgresStore) AppendConversationEntry(e models.ConversationEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_entries (identity, role, text, interaction_kind, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		e.Identity, e.Role, e.Text, nilIfEmpty(e.InteractionKind), e.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AppendConversationEntry failed", "error", err, "identity", e.Identity)
		return fmt.Errorf("failed to insert conversation entry for %s: %w", e.Identity, err)
	}
	slog.Debug("PostgresStore AppendConversationEntry succeeded", "identity", e.Identity, "role", e.Role)
	return nil
}

// GetConversation returns the transcript for an identity in append order.
func (s *PostgresStore) GetConversation(identity string) ([]models.ConversationEntry, error) {
	rows, err := s.db.Query(
		`SELECT identity, role, text, interaction_kind, timestamp FROM conversation_entries WHERE identity = $1 ORDER BY id`,
		identity)
	if err != nil {
		slog.Error("PostgresStore GetConversation query failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", identity, err)
	}
	defer rows.Close()

	var entries []models.ConversationEntry
	for rows.Next() {
		var e models.ConversationEntry
		var kind sql.NullString
		if err := rows.Scan(&e.Identity, &e.Role, &e.Text, &kind, &e.Timestamp); err != nil {
			slog.Error("PostgresStore GetConversation scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		e.InteractionKind = kind.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetConversation rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	slog.Debug("PostgresStore GetConversation succeeded", "identity", identity, "count", len(entries))
	return entries, nil
}

// RecordMilestone appends one conversation milestone.
func (s *PostgresStore) RecordMilestone(m models.Milestone) error {
	_, err := s.db.Exec(
		`INSERT INTO milestones (identity, kind, content, timestamp) VALUES ($1, $2, $3, $4)`,
		m.Identity, m.Kind, m.Content, m.Timestamp)
	if err != nil {
		slog.Error("PostgresStore RecordMilestone failed", "error", err, "identity", m.Identity, "kind", m.Kind)
		return fmt.Errorf("failed to insert milestone for %s: %w", m.Identity, err)
	}
	slog.Debug("PostgresStore RecordMilestone succeeded", "identity", m.Identity, "kind", m.Kind)
	return nil
}

// GetMilestones returns the milestones for an identity in append order.
func (s *PostgresStore) GetMilestones(identity string) ([]models.Milestone, error) {
	rows, err := s.db.Query(
		`SELECT identity, kind, content, timestamp FROM milestones WHERE identity = $1 ORDER BY id`, identity)
	if err != nil {
		slog.Error("PostgresStore GetMilestones query failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query milestones for %s: %w", identity, err)
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		var m models.Milestone
		if err := rows.Scan(&m.Identity, &m.Kind, &m.Content, &m.Timestamp); err != nil {
			slog.Error("PostgresStore GetMilestones scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan milestone row: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetMilestones rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate milestone rows: %w", err)
	}
	slog.Debug("PostgresStore GetMilestones succeeded", "identity", identity, "count", len(milestones))
	return milestones, nil
}

// CreateOrder persists a new order.
func (s *PostgresStore) CreateOrder(o models.Order) error {
	itemsJSON, historyJSON, err := orderColumns(o)
	if err != nil {
		slog.Error("PostgresStore CreateOrder marshal failed", "error", err, "orderID", o.ID)
		return err
	}

	query := `
		INSERT INTO orders (id, phone, client_type, business_name, city, address, contact_person,
			line_items, total, assigned_coordinator, coordinator_phone, status, notes, status_history, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = s.db.Exec(query, o.ID, o.Phone, o.ClientType, nilIfEmpty(o.BusinessName),
		nilIfEmpty(o.City), nilIfEmpty(o.Address), nilIfEmpty(o.ContactPerson),
		itemsJSON, o.Total, o.AssignedCoordinator, o.CoordinatorPhone, o.Status,
		nilIfEmpty(o.Notes), nilIfEmpty(historyJSON), o.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateOrder failed", "error", err, "orderID", o.ID)
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}
	slog.Debug("PostgresStore CreateOrder succeeded", "orderID", o.ID, "total", o.Total)
	return nil
}

// GetOrder retrieves an order by ID, or nil if none exists.
func (s *PostgresStore) GetOrder(id string) (*models.Order, error) {
	row := s.db.QueryRow(
		`SELECT id, phone, client_type, business_name, city, address, contact_person,
			line_items, total, assigned_coordinator, coordinator_phone, status, notes, status_history, created_at
		 FROM orders WHERE id = $1`, id)

	o, err := scanOrderRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetOrder not found", "orderID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOrder failed", "error", err, "orderID", id)
		return nil, err
	}
	return o, nil
}

// ListOrders returns all orders, newest first.
func (s *PostgresStore) ListOrders() ([]models.Order, error) {
	rows, err := s.db.Query(
		`SELECT id, phone, client_type, business_name, city, address, contact_person,
			line_items, total, assigned_coordinator, coordinator_phone, status, notes, status_history, created_at
		 FROM orders ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListOrders query failed", "error", err)
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			slog.Error("PostgresStore ListOrders scan failed", "error", err)
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListOrders rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate order rows: %w", err)
	}
	slog.Debug("PostgresStore ListOrders succeeded", "count", len(orders))
	return orders, nil
}

// UpdateOrder replaces a persisted order by ID.
func (s *PostgresStore) UpdateOrder(o models.Order) error {
	itemsJSON, historyJSON, err := orderColumns(o)
	if err != nil {
		slog.Error("PostgresStore UpdateOrder marshal failed", "error", err, "orderID", o.ID)
		return err
	}

	query := `
		UPDATE orders SET phone = $1, client_type = $2, business_name = $3, city = $4, address = $5,
			contact_person = $6, line_items = $7, total = $8, assigned_coordinator = $9,
			coordinator_phone = $10, status = $11, notes = $12, status_history = $13
		WHERE id = $14`
	res, err := s.db.Exec(query, o.Phone, o.ClientType, nilIfEmpty(o.BusinessName),
		nilIfEmpty(o.City), nilIfEmpty(o.Address), nilIfEmpty(o.ContactPerson),
		itemsJSON, o.Total, o.AssignedCoordinator, o.CoordinatorPhone, o.Status,
		nilIfEmpty(o.Notes), nilIfEmpty(historyJSON), o.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateOrder failed", "error", err, "orderID", o.ID)
		return fmt.Errorf("failed to update order %s: %w", o.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("order %s not found", o.ID)
	}
	slog.Debug("PostgresStore UpdateOrder succeeded", "orderID", o.ID, "status", o.Status)
	return nil
}

// AddNotification persists an admin notification.
func (s *PostgresStore) AddNotification(n models.Notification) error {
	var refKind, refID interface{}
	if n.Reference != nil {
		refKind, refID = string(n.Reference.Kind), n.Reference.ID
	}
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, kind, message, reference_kind, reference_id, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.Kind, n.Message, refKind, refID, n.Read, n.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddNotification failed", "error", err, "notificationID", n.ID)
		return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
	}
	slog.Debug("PostgresStore AddNotification succeeded", "notificationID", n.ID, "kind", n.Kind)
	return nil
}

// ListNotifications returns all notifications, newest first.
func (s *PostgresStore) ListNotifications() ([]models.Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, message, reference_kind, reference_id, read, created_at
		 FROM notifications ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListNotifications query failed", "error", err)
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			slog.Error("PostgresStore ListNotifications scan failed", "error", err)
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListNotifications rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate notification rows: %w", err)
	}
	slog.Debug("PostgresStore ListNotifications succeeded", "count", len(notifications))
	return notifications, nil
}

// MarkNotificationRead flags a notification as read.
func (s *PostgresStore) MarkNotificationRead(id string) error {
	res, err := s.db.Exec(`UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore MarkNotificationRead failed", "error", err, "notificationID", id)
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("notification %s not found", id)
	}
	slog.Debug("PostgresStore MarkNotificationRead succeeded", "notificationID", id)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
