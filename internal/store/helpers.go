package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/surtifrio/flowbot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalJSON encodes v as a JSON string, returning "" for nil-ish values.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	return string(b), nil
}

// sessionColumns converts a session's map and cart fields to JSON strings.
func sessionColumns(s models.Session) (fieldsJSON, cartJSON string, err error) {
	if len(s.Fields) > 0 {
		fieldsJSON, err = marshalJSON(s.Fields)
		if err != nil {
			return "", "", err
		}
	}
	if len(s.Cart) > 0 {
		cartJSON, err = marshalJSON(s.Cart)
		if err != nil {
			return "", "", err
		}
	}
	return fieldsJSON, cartJSON, nil
}

// decodeSessionColumns fills a session's map and cart fields from JSON strings.
func decodeSessionColumns(s *models.Session, fieldsJSON, cartJSON string) {
	if fieldsJSON != "" {
		s.Fields = make(map[string]string)
		if err := json.Unmarshal([]byte(fieldsJSON), &s.Fields); err != nil {
			// Corrupt column: keep an empty map rather than failing the read
			s.Fields = make(map[string]string)
		}
	}
	if cartJSON != "" {
		if err := json.Unmarshal([]byte(cartJSON), &s.Cart); err != nil {
			s.Cart = nil
		}
	}
}

// orderColumns converts an order's line items and status history to JSON strings.
func orderColumns(o models.Order) (itemsJSON, historyJSON string, err error) {
	itemsJSON, err = marshalJSON(o.LineItems)
	if err != nil {
		return "", "", err
	}
	if len(o.StatusHistory) > 0 {
		historyJSON, err = marshalJSON(o.StatusHistory)
		if err != nil {
			return "", "", err
		}
	}
	return itemsJSON, historyJSON, nil
}

// decodeOrderColumns fills an order's line items and status history from JSON strings.
func decodeOrderColumns(o *models.Order, itemsJSON, historyJSON string) error {
	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &o.LineItems); err != nil {
			return fmt.Errorf("failed to unmarshal order %s line items: %w", o.ID, err)
		}
	}
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &o.StatusHistory); err != nil {
			return fmt.Errorf("failed to unmarshal order %s status history: %w", o.ID, err)
		}
	}
	return nil
}

// scanOrder scans an Order from sql.Rows.
func scanOrder(rows *sql.Rows) (*models.Order, error) {
	var o models.Order
	var businessName, city, address, contactPerson, notes, itemsJSON, historyJSON sql.NullString
	err := rows.Scan(
		&o.ID, &o.Phone, &o.ClientType, &businessName, &city, &address, &contactPerson,
		&itemsJSON, &o.Total, &o.AssignedCoordinator, &o.CoordinatorPhone, &o.Status,
		&notes, &historyJSON, &o.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan order failed: %w", err)
	}
	o.BusinessName = businessName.String
	o.City = city.String
	o.Address = address.String
	o.ContactPerson = contactPerson.String
	o.Notes = notes.String
	if err := decodeOrderColumns(&o, itemsJSON.String, historyJSON.String); err != nil {
		return nil, err
	}
	return &o, nil
}

// scanOrderRow scans an Order from a single sql.Row.
func scanOrderRow(row *sql.Row) (*models.Order, error) {
	var o models.Order
	var businessName, city, address, contactPerson, notes, itemsJSON, historyJSON sql.NullString
	err := row.Scan(
		&o.ID, &o.Phone, &o.ClientType, &businessName, &city, &address, &contactPerson,
		&itemsJSON, &o.Total, &o.AssignedCoordinator, &o.CoordinatorPhone, &o.Status,
		&notes, &historyJSON, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.BusinessName = businessName.String
	o.City = city.String
	o.Address = address.String
	o.ContactPerson = contactPerson.String
	o.Notes = notes.String
	if err := decodeOrderColumns(&o, itemsJSON.String, historyJSON.String); err != nil {
		return nil, err
	}
	return &o, nil
}

// scanNotification scans a Notification from sql.Rows.
func scanNotification(rows *sql.Rows) (*models.Notification, error) {
	var n models.Notification
	var refKind, refID sql.NullString
	err := rows.Scan(&n.ID, &n.Kind, &n.Message, &refKind, &refID, &n.Read, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan notification failed: %w", err)
	}
	if refKind.Valid && refID.Valid {
		n.Reference = &models.Reference{Kind: models.ReferenceKind(refKind.String), ID: refID.String}
	}
	return &n, nil
}
