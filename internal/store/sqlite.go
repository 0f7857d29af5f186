// Package store provides storage backends for flowbot.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/surtifrio/flowbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetSession retrieves the session for an identity, or nil if none exists.
func (s *SQLiteStore) GetSession(identity string) (*models.Session, error) {
	query := `SELECT identity, current_flow, fields, cart, started_at, last_message_at
			  FROM sessions WHERE identity = ?`

	var sess models.Session
	var fieldsJSON, cartJSON sql.NullString

	err := s.db.QueryRow(query, identity).Scan(
		&sess.Identity, &sess.CurrentFlow, &fieldsJSON, &cartJSON,
		&sess.StartedAt, &sess.LastMessageAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query session for %s: %w", identity, err)
	}

	decodeSessionColumns(&sess, fieldsJSON.String, cartJSON.String)
	slog.Debug("SQLiteStore GetSession found", "identity", identity, "currentFlow", sess.CurrentFlow)
	return &sess, nil
}

// SaveSession stores or replaces the session for its identity.
func (s *SQLiteStore) SaveSession(sess models.Session) error {
	if sess.Identity == "" {
		return models.ErrEmptyIdentity
	}
	fieldsJSON, cartJSON, err := sessionColumns(sess)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "identity", sess.Identity)
		return err
	}

	query := `
		INSERT OR REPLACE INTO sessions (identity, current_flow, fields, cart, started_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, sess.Identity, sess.CurrentFlow,
		nilIfEmpty(fieldsJSON), nilIfEmpty(cartJSON), sess.StartedAt, sess.LastMessageAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "identity", sess.Identity)
		return fmt.Errorf("failed to save session for %s: %w", sess.Identity, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "identity", sess.Identity, "currentFlow", sess.CurrentFlow)
	return nil
}

// ListSessions returns all sessions ordered by identity.
func (s *SQLiteStore) ListSessions() ([]models.Session, error) {
	query := `SELECT identity, current_flow, fields, cart, started_at, last_message_at
			  FROM sessions ORDER BY identity`

	rows, err := s.db.Query(query)
	if err != nil {
		slog.Error("SQLiteStore ListSessions failed", "error", err)
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
func (s *SQLiteStore) AppendConversationEntry(e models.ConversationEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_entries (identity, role, text, interaction_kind, timestamp) VALUES (?, ?, ?, ?, ?)`,
		e.Identity, e.Role, e.Text, nilIfEmpty(e.InteractionKind), e.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AppendConversationEntry failed", "error", err, "identity", e.Identity)
		return fmt.Errorf("failed to insert conversation entry for %s: %w", e.Identity, err)
	}
	slog.Debug("SQLiteStore AppendConversationEntry succeeded", "identity", e.Identity, "role", e.Role)
	return nil
}

// GetConversation returns the transcript for an identity in append order.
func (s *SQLiteStore) GetConversation(identity string) ([]models.ConversationEntry, error) {
	rows, err := s.db.Query(
		`SELECT identity, role, text, interaction_kind, timestamp FROM conversation_entries WHERE identity = ? ORDER BY id`,
		identity)
	if err != nil {
		slog.Error("SQLiteStore GetConversation query failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", identity, err)
	}
	defer rows.Close()

	var entries []models.ConversationEntry
	for rows.Next() {
		var e models.ConversationEntry
		var kind sql.NullString
		if err := rows.Scan(&e.Identity, &e.Role, &e.Text, &kind, &e.Timestamp); err != nil {
			slog.Error("SQLiteStore GetConversation scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		e.InteractionKind = kind.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetConversation rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	slog.Debug("SQLiteStore GetConversation succeeded", "identity", identity, "count", len(entries))
	return entries, nil
}

// RecordMilestone appends one conversation milestone.
func (s *SQLiteStore) RecordMilestone(m models.Milestone) error {
	_, err := s.db.Exec(
		`INSERT INTO milestones (identity, kind, content, timestamp) VALUES (?, ?, ?, ?)`,
		m.Identity, m.Kind, m.Content, m.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore RecordMilestone failed", "error", err, "identity", m.Identity, "kind", m.Kind)
		return fmt.Errorf("failed to insert milestone for %s: %w", m.Identity, err)
	}
	slog.Debug("SQLiteStore RecordMilestone succeeded", "identity", m.Identity, "kind", m.Kind)
	return nil
}

// GetMilestones returns the milestones for an identity in append order.
func (s *SQLiteStore) GetMilestones(identity string) ([]models.Milestone, error) {
	rows, err := s.db.Query(
		`SELECT identity, kind, content, timestamp FROM milestones WHERE identity = ? ORDER BY id`, identity)
	if err != nil {
		slog.Error("SQLiteStore GetMilestones query failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query milestones for %s: %w", identity, err)
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		var m models.Milestone
		if err := rows.Scan(&m.Identity, &m.Kind, &m.Content, &m.Timestamp); err != nil {
			slog.Error("SQLiteStore GetMilestones scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan milestone row: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetMilestones rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate milestone rows: %w", err)
	}
	slog.Debug("SQLiteStore GetMilestones succeeded", "identity", identity, "count", len(milestones))
	return milestones, nil
}

// CreateOrder persists a new order.
func (s *SQLiteStore) CreateOrder(o models.Order) error {
	itemsJSON, historyJSON, err := orderColumns(o)
	if err != nil {
		slog.Error("SQLiteStore CreateOrder marshal failed", "error", err, "orderID", o.ID)
		return err
	}

	query := `
		INSERT INTO orders (id, phone, client_type, business_name, city, address, contact_person,
			line_items, total, assigned_coordinator, coordinator_phone, status, notes, status_history, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, o.ID, o.Phone, o.ClientType, nilIfEmpty(o.BusinessName),
		nilIfEmpty(o.City), nilIfEmpty(o.Address), nilIfEmpty(o.ContactPerson),
		itemsJSON, o.Total, o.AssignedCoordinator, o.CoordinatorPhone, o.Status,
		nilIfEmpty(o.Notes), nilIfEmpty(historyJSON), o.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateOrder failed", "error", err, "orderID", o.ID)
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}
	slog.Debug("SQLiteStore CreateOrder succeeded", "orderID", o.ID, "total", o.Total)
	return nil
}

// GetOrder retrieves an order by ID, or nil if none exists.
func (s *SQLiteStore) GetOrder(id string) (*models.Order, error) {
	row := s.db.QueryRow(
		`SELECT id, phone, client_type, business_name, city, address, contact_person,
			line_items, total, assigned_coordinator, coordinator_phone, status, notes, status_history, created_at
		 FROM orders WHERE id = ?`, id)

	o, err := scanOrderRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetOrder not found", "orderID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOrder failed", "error", err, "orderID", id)
		return nil, err
	}
	return o, nil
}

// ListOrders returns all orders, newest first.
func (s *SQLiteStore) ListOrders() ([]models.Order, error) {
	rows, err := s.db.Query(
		`SELECT id, phone, client_type, business_name, city, address, contact_person,
			line_items, total, assigned_coordinator, coordinator_phone, status, notes, status_history, created_at
		 FROM orders ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListOrders query failed", "error", err)
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			slog.Error("SQLiteStore ListOrders scan failed", "error", err)
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListOrders rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate order rows: %w", err)
	}
	slog.Debug("SQLiteStore ListOrders succeeded", "count", len(orders))
	return orders, nil
}

// UpdateOrder replaces a persisted order by ID.
func (s *SQLiteStore) UpdateOrder(o models.Order) error {
	itemsJSON, historyJSON, err := orderColumns(o)
	if err != nil {
		slog.Error("SQLiteStore UpdateOrder marshal failed", "error", err, "orderID", o.ID)
		return err
	}

	query := `
		UPDATE orders SET phone = ?, client_type = ?, business_name = ?, city = ?, address = ?,
			contact_person = ?, line_items = ?, total = ?, assigned_coordinator = ?,
			coordinator_phone = ?, status = ?, notes = ?, status_history = ?
		WHERE id = ?`
	res, err := s.db.Exec(query, o.Phone, o.ClientType, nilIfEmpty(o.BusinessName),
		nilIfEmpty(o.City), nilIfEmpty(o.Address), nilIfEmpty(o.ContactPerson),
		itemsJSON, o.Total, o.AssignedCoordinator, o.CoordinatorPhone, o.Status,
		nilIfEmpty(o.Notes), nilIfEmpty(historyJSON), o.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateOrder failed", "error", err, "orderID", o.ID)
		return fmt.Errorf("failed to update order %s: %w", o.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("order %s not found", o.ID)
	}
	slog.Debug("SQLiteStore UpdateOrder succeeded", "orderID", o.ID, "status", o.Status)
	return nil
}

// AddNotification persists an admin notification.
func (s *SQLiteStore) AddNotification(n models.Notification) error {
	var refKind, refID interface{}
	if n.Reference != nil {
		refKind, refID = string(n.Reference.Kind), n.Reference.ID
	}
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, kind, message, reference_kind, reference_id, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Kind, n.Message, refKind, refID, n.Read, n.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddNotification failed", "error", err, "notificationID", n.ID)
		return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
	}
	slog.Debug("SQLiteStore AddNotification succeeded", "notificationID", n.ID, "kind", n.Kind)
	return nil
}

// ListNotifications returns all notifications, newest first.
func (s *SQLiteStore) ListNotifications() ([]models.Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, message, reference_kind, reference_id, read, created_at
		 FROM notifications ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListNotifications query failed", "error", err)
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			slog.Error("SQLiteStore ListNotifications scan failed", "error", err)
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListNotifications rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate notification rows: %w", err)
	}
	slog.Debug("SQLiteStore ListNotifications succeeded", "count", len(notifications))
	return notifications, nil
}

// MarkNotificationRead flags a notification as read.
func (s *SQLiteStore) MarkNotificationRead(id string) error {
	res, err := s.db.Exec(`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore MarkNotificationRead failed", "error", err, "notificationID", id)
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("notification %s not found", id)
	}
	slog.Debug("SQLiteStore MarkNotificationRead succeeded", "notificationID", id)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
