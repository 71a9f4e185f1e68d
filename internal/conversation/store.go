package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Record is the durable form of a conversation: a human-readable JSON file
// that round-trips losslessly through Persist/Load.
type Record struct {
	Version  int       `json:"version"`
	Session  string    `json:"session"`
	SavedAt  time.Time `json:"saved_at"`
	Messages []Message `json:"messages"`
}

const recordVersion = 1

// Store persists conversations under a sessions directory. File names are
// the sha256 of the session tag so arbitrary tags stay filesystem-safe.
type Store struct {
	dir string
}

// NewStore creates the sessions directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(tag string) string {
	sum := sha256.Sum256([]byte(tag))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

// Persist writes the conversation to disk. The write goes through a temp
// file and rename so a crash never leaves a torn record.
func (s *Store) Persist(c *Conversation) error {
	rec := Record{
		Version:  recordVersion,
		Session:  c.Session(),
		SavedAt:  time.Now(),
		Messages: c.History(),
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	path := s.pathFor(c.Session())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit conversation: %w", err)
	}
	return nil
}

// Load restores a conversation by session tag. Returns (nil, nil) when no
// record exists. The loaded history reproduces History() bit-for-bit.
func (s *Store) Load(tag string) (*Conversation, error) {
	data, err := os.ReadFile(s.pathFor(tag))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse conversation record: %w", err)
	}

	c := &Conversation{
		session:  rec.Session,
		messages: rec.Messages,
		pending:  make(map[string]bool),
	}
	// Rebuild the pending set from the tail so appends after load still
	// enforce referential integrity.
	for i := len(rec.Messages) - 1; i >= 0; i-- {
		m := rec.Messages[i]
		if m.Role == "tool" {
			continue
		}
		if m.Role == "assistant" {
			answered := make(map[string]bool)
			for j := i + 1; j < len(rec.Messages); j++ {
				if rec.Messages[j].Role == "tool" {
					answered[rec.Messages[j].ToolCallID] = true
				}
			}
			for _, tc := range m.ToolCalls {
				if !answered[tc.ID] {
					c.pending[tc.ID] = true
				}
			}
		}
		break
	}
	return c, nil
}

// Delete removes the persisted record for a session tag.
func (s *Store) Delete(tag string) error {
	err := os.Remove(s.pathFor(tag))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// SessionInfo summarizes one persisted conversation.
type SessionInfo struct {
	Session  string    `json:"session"`
	SavedAt  time.Time `json:"saved_at"`
	Messages int       `json:"messages"`
}

// List returns summaries for all persisted conversations, newest first.
func (s *Store) List() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var infos []SessionInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		infos = append(infos, SessionInfo{
			Session:  rec.Session,
			SavedAt:  rec.SavedAt,
			Messages: len(rec.Messages),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].SavedAt.After(infos[j].SavedAt) })
	return infos, nil
}
