// Package memory persists long-lived notes in SQLite and serves full-text
// recall over them. Notes survive conversation truncation and session
// resets; the core document references them, tools read and write them.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Note is one remembered fact.
type Note struct {
	ID        string    `json:"id"`
	Session   string    `json:"session"`
	Text      string    `json:"text"`
	Tags      string    `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchHit is a note plus its BM25-derived relevance score.
type SearchHit struct {
	Note
	Score float64 `json:"score"`
}

// Store is a SQLite-backed note store with an FTS5 search index.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("memory store opened", "path", path)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			session TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_session ON notes(session)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			text,
			tags,
			id UNINDEXED,
			tokenize='porter unicode61'
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_name ON contacts(name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 50)], err)
		}
	}
	return nil
}

// Save stores a note and indexes it for search. Returns the note ID.
func (s *Store) Save(ctx context.Context, session, text, tags string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("note text is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notes (id, session, text, tags, created_at) VALUES (?, ?, ?, ?, strftime('%s','now'))`,
		id, session, text, tags); err != nil {
		return "", fmt.Errorf("insert note: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notes_fts (text, tags, id) VALUES (?, ?, ?)`,
		text, tags, id); err != nil {
		return "", fmt.Errorf("index note: %w", err)
	}
	return id, tx.Commit()
}

// Search runs an FTS5 match and returns hits ranked by relevance. The BM25
// rank is folded to a [0,1] score with 1/(1+|rank|).
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 6
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.session, n.text, n.tags, n.created_at,
			1.0 / (1.0 + abs(f.rank)) AS score
		FROM notes_fts f
		JOIN notes n ON n.id = f.id
		WHERE notes_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var created int64
		if err := rows.Scan(&h.ID, &h.Session, &h.Text, &h.Tags, &created, &h.Score); err != nil {
			return nil, err
		}
		h.CreatedAt = time.Unix(created, 0).UTC()
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Recent returns the newest notes, optionally scoped to a session.
func (s *Store) Recent(ctx context.Context, session string, limit int) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	query := `SELECT id, session, text, tags, created_at FROM notes`
	args := []interface{}{}
	if session != "" {
		query += ` WHERE session = ?`
		args = append(args, session)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var created int64
		if err := rows.Scan(&n.ID, &n.Session, &n.Text, &n.Tags, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = time.Unix(created, 0).UTC()
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Delete removes a note and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("unindex note: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("note %s not found", id)
	}
	return tx.Commit()
}

// Count returns the number of stored notes.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n)
	return n, err
}

func (s *Store) Close() error { return s.db.Close() }

// ftsQuery quotes each term so user punctuation cannot break the FTS5
// match grammar.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, ``) + `"`
	}
	return strings.Join(fields, " ")
}
