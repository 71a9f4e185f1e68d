package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact is one address-book entry.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AddContact stores a contact. Name is required; email and phone may be
// empty. Returns the contact ID.
func (s *Store) AddContact(ctx context.Context, c Contact) (string, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return "", fmt.Errorf("contact name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, name, email, phone, created_at) VALUES (?, ?, ?, ?, strftime('%s','now'))`,
		id, c.Name, strings.TrimSpace(c.Email), strings.TrimSpace(c.Phone))
	if err != nil {
		return "", fmt.Errorf("insert contact: %w", err)
	}
	return id, nil
}

// SearchContacts matches query against name, email, and phone,
// case-insensitively on substrings. An empty query lists everyone.
func (s *Store) SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	sql := `SELECT id, name, email, phone, created_at FROM contacts`
	args := []interface{}{}
	if q := strings.TrimSpace(query); q != "" {
		pattern := "%" + q + "%"
		sql += ` WHERE name LIKE ? OR email LIKE ? OR phone LIKE ?`
		args = append(args, pattern, pattern, pattern)
	}
	sql += ` ORDER BY name COLLATE NOCASE LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("contact query: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		var created int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteContact removes a contact by ID.
func (s *Store) DeleteContact(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("contact %s not found", id)
	}
	return nil
}
