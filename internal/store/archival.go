package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkwan/memtier/internal/model"
	"github.com/mkwan/memtier/internal/vector"
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// InsertMemory stores a new archival memory. The embedding must match
// the configured dimension exactly; a mismatch is a configuration
// error, not a per-record condition to retry. Importance is clamped to
// [0, 1] on write.
func (s *SQLiteStore) InsertMemory(ctx context.Context, rec *model.ArchivalMemory) (string, error) {
	if rec.UserID == "" {
		return "", fmt.Errorf("insert memory: user_id is required")
	}
	if err := vector.Validate(rec.Embedding); err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	if len(rec.Embedding) != s.dim {
		return "", fmt.Errorf("insert memory: expected %d dims, got %d: %w",
			s.dim, len(rec.Embedding), ErrDimensionMismatch)
	}

	blob, err := vector.Encode(rec.Embedding)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	metaJSON, err := rec.Metadata.Encode()
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}

	id := s.newID()
	now := time.Now().UTC().Format(time.RFC3339)
	importance := model.ClampImportance(rec.Importance)

	var metaPtr *string
	if metaJSON != "" {
		metaPtr = &metaJSON
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO archival_memories
		   (id, user_id, chat_id, content, embedding, metadata, importance, created_at, updated_at, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		id, rec.UserID, rec.ChatID, rec.Content, blob, metaPtr, importance, now, now)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

// MergeMemory applies the duplicate policy to an existing record:
// importance is raised toward the candidate's (never lowered) and
// updated_at is refreshed. No new row is created.
func (s *SQLiteStore) MergeMemory(ctx context.Context, id string, imp float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE archival_memories
		 SET importance = MAX(importance, ?), updated_at = ?
		 WHERE id = ?`,
		model.ClampImportance(imp), now, id)
	if err != nil {
		return fmt.Errorf("merge memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("merge memory %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetMemory fetches one archival memory by id.
func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (*model.ArchivalMemory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, chat_id, content, embedding, metadata, importance,
		        created_at, updated_at, accessed_at, access_count
		 FROM archival_memories WHERE id = ?`, id)

	m, err := scanArchival(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// Touch increments access_count and stamps accessed_at in a single
// UPDATE, so concurrent readers never lose increments.
func (s *SQLiteStore) Touch(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`UPDATE archival_memories
		 SET access_count = access_count + 1, accessed_at = ?
		 WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("touch memory: %w", err)
	}
	return nil
}

// DeleteMemory removes one archival memory by id.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM archival_memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAllForUser wipes every archival memory for a user and returns
// the number of rows removed.
func (s *SQLiteStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM archival_memories WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete all for user: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanArchival(row scanner) (*model.ArchivalMemory, error) {
	var m model.ArchivalMemory
	var blob []byte
	var metaJSON, accessedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&m.ID, &m.UserID, &m.ChatID, &m.Content, &blob, &metaJSON,
		&m.Importance, &createdAt, &updatedAt, &accessedAt, &m.AccessCount)
	if err != nil {
		return nil, err
	}

	m.Embedding, err = vector.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("decode embedding for %s: %w", m.ID, err)
	}
	if metaJSON.Valid {
		m.Metadata, err = model.DecodeMetadata(metaJSON.String)
		if err != nil {
			return nil, err
		}
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if accessedAt.Valid {
		t, _ := time.Parse(time.RFC3339, accessedAt.String)
		m.AccessedAt = &t
	}
	return &m, nil
}
