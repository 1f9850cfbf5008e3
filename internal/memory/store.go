// Package memory stores tagged context memories in SQLite.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxDataBytes caps the encoded size of one memory's data.
const DefaultMaxDataBytes = 1 << 20

// timeLayout is fixed-width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Memory is one stored memory.
type Memory struct {
	ID        string          `json:"id"`
	Context   string          `json:"context"`
	Data      json.RawMessage `json:"data"`
	Tags      []string        `json:"tags"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists memories and their tags.
type Store struct {
	db           *sql.DB
	maxDataBytes int
	now          func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:           db,
		maxDataBytes: DefaultMaxDataBytes,
		now:          time.Now,
	}
}

// Inject stores data under contextName with tags. Tags are trimmed and
// deduplicated; empty tags are dropped.
func (s *Store) Inject(ctx context.Context, contextName string, data any, tags []string) (*Memory, error) {
	contextName = strings.TrimSpace(contextName)
	if contextName == "" {
		return nil, fmt.Errorf("memory context is empty")
	}
	if data == nil {
		return nil, fmt.Errorf("memory data is empty")
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode memory data: %w", err)
	}
	if len(encoded) > s.maxDataBytes {
		return nil, fmt.Errorf("memory data exceeds max size (%d bytes)", s.maxDataBytes)
	}

	tags = normalizeTags(tags)
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode memory tags: %w", err)
	}

	m := &Memory{
		ID:        uuid.NewString(),
		Context:   contextName,
		Data:      encoded,
		Tags:      tags,
		CreatedAt: s.now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO memories(id, context, data, tags, created_at)
VALUES(?, ?, ?, ?, ?);
`, m.ID, m.Context, string(encoded), string(tagsJSON), m.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, "INSERT INTO memory_tags(memory_id, tag) VALUES(?, ?);", m.ID, tag); err != nil {
			return nil, fmt.Errorf("insert memory tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return m, nil
}

// Retrieve returns memories newest first. A non-empty tag restricts the result
// to memories carrying that tag.
func (s *Store) Retrieve(ctx context.Context, tag string) ([]Memory, error) {
	tag = strings.TrimSpace(tag)

	var (
		rows *sql.Rows
		err  error
	)
	if tag == "" {
		rows, err = s.db.QueryContext(ctx, `
SELECT id, context, data, tags, created_at
FROM memories
ORDER BY created_at DESC, id;
`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
SELECT m.id, m.context, m.data, m.tags, m.created_at
FROM memories m
JOIN memory_tags t ON t.memory_id = m.id
WHERE t.tag = ?
ORDER BY m.created_at DESC, m.id;
`, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	memories := []Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return memories, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var (
		m          Memory
		data       string
		tagsJSON   string
		createdAtS string
	)
	if err := row.Scan(&m.ID, &m.Context, &data, &tagsJSON, &createdAtS); err != nil {
		return nil, err
	}

	if !json.Valid([]byte(data)) {
		return nil, fmt.Errorf("stored data is invalid JSON for memory=%q", m.ID)
	}
	m.Data = json.RawMessage(data)

	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for memory=%q: %w", m.ID, err)
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtS)
	if err != nil {
		return nil, fmt.Errorf("parse memories.created_at: %w", err)
	}
	m.CreatedAt = createdAt
	return &m, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
