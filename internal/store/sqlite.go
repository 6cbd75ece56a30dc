package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/mkwan/memtier/internal/model"
)

// SQLiteStore implements Store using SQLite. Vectors are stored as
// little-endian BLOBs; lexical relevance comes from an FTS5 index kept
// in sync by triggers.
type SQLiteStore struct {
	db           *sql.DB
	dim          int
	maxBlockSize int

	mu      sync.Mutex // guards entropy
	entropy *rand.Rand
}

// New opens or creates a SQLite database at cfg.Path. cfg.Dim is
// required; every stored embedding must match it.
func New(cfg Config) (*SQLiteStore, error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("store config: embedding dimension must be positive, got %d", cfg.Dim)
	}
	if cfg.MaxBlockSize <= 0 {
		cfg.MaxBlockSize = model.DefaultMaxBlockSize
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 2
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &SQLiteStore{
		db:           db,
		dim:          cfg.Dim,
		maxBlockSize: cfg.MaxBlockSize,
		entropy:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Dim returns the configured embedding dimensionality.
func (s *SQLiteStore) Dim() int { return s.dim }

// MaxBlockSize returns the soft content bound for core blocks.
func (s *SQLiteStore) MaxBlockSize() int { return s.maxBlockSize }

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS core_blocks (
		id         TEXT PRIMARY KEY,
		label      TEXT NOT NULL,
		chat_id    TEXT NOT NULL DEFAULT '',
		user_id    TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (label, chat_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_scope ON core_blocks(chat_id, user_id);

	CREATE TABLE IF NOT EXISTS archival_memories (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		chat_id      TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL,
		embedding    BLOB NOT NULL,
		metadata     TEXT,
		importance   REAL NOT NULL DEFAULT 0.5,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		accessed_at  TEXT,
		access_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_archival_user ON archival_memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_archival_user_chat ON archival_memories(user_id, chat_id);
	CREATE INDEX IF NOT EXISTS idx_archival_created ON archival_memories(created_at DESC);

	CREATE VIRTUAL TABLE IF NOT EXISTS archival_fts USING fts5(
		content,
		content=archival_memories,
		content_rowid=rowid
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 triggers for automatic sync
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS archival_ai AFTER INSERT ON archival_memories BEGIN
		INSERT INTO archival_fts(rowid, content) VALUES (new.rowid, new.content);
	END`)
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS archival_ad AFTER DELETE ON archival_memories BEGIN
		INSERT INTO archival_fts(archival_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	END`)
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS archival_au AFTER UPDATE OF content ON archival_memories BEGIN
		INSERT INTO archival_fts(archival_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		INSERT INTO archival_fts(rowid, content) VALUES (new.rowid, new.content);
	END`)

	return nil
}

// UpsertBlock writes a core block keyed on (label, chat_id, user_id).
// The write is last-write-wins under concurrent upserts for the same
// triple. Oversized content persists but returns ErrContentTooLong.
func (s *SQLiteStore) UpsertBlock(ctx context.Context, label string, scope model.Scope, content string) (string, error) {
	if label == "" {
		return "", fmt.Errorf("upsert block: label is required")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	id := s.newID()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO core_blocks (id, label, chat_id, user_id, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (label, chat_id, user_id) DO UPDATE SET
		   content = excluded.content,
		   updated_at = excluded.updated_at`,
		id, label, scope.ChatID, scope.UserID, content, now, now)
	if err != nil {
		return "", fmt.Errorf("upsert block: %w", err)
	}

	// The insert ID is discarded on conflict; read back the winner.
	var blockID string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM core_blocks WHERE label = ? AND chat_id = ? AND user_id = ?`,
		label, scope.ChatID, scope.UserID).Scan(&blockID)
	if err != nil {
		return "", fmt.Errorf("upsert block readback: %w", err)
	}

	if n := utf8.RuneCountInString(content); n > s.maxBlockSize {
		return blockID, fmt.Errorf("block %q is %d chars (max %d): %w",
			label, n, s.maxBlockSize, ErrContentTooLong)
	}
	return blockID, nil
}

// GetBlock resolves one block for a scope with chat -> user -> global
// precedence as a single ordered query; the first match wins.
func (s *SQLiteStore) GetBlock(ctx context.Context, label string, scope model.Scope) (*model.CoreMemoryBlock, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, chat_id, user_id, content, created_at, updated_at
		 FROM core_blocks
		 WHERE label = ? AND (
		   (chat_id = ? AND user_id = ?) OR
		   (chat_id = '' AND user_id = ?) OR
		   (chat_id = '' AND user_id = '')
		 )
		 ORDER BY CASE
		   WHEN chat_id != '' THEN 0
		   WHEN user_id != '' THEN 1
		   ELSE 2
		 END
		 LIMIT 1`,
		label, scope.ChatID, scope.UserID, scope.UserID)

	var b model.CoreMemoryBlock
	var createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.Label, &b.ChatID, &b.UserID, &b.Content, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("block %q: %w", label, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

// GetBlocks resolves all labels for a scope. Absent blocks map to "";
// absence is never an error.
func (s *SQLiteStore) GetBlocks(ctx context.Context, scope model.Scope, labels []string) (map[string]string, error) {
	if len(labels) == 0 {
		labels = model.DefaultLabels
	}
	out := make(map[string]string, len(labels))
	for _, label := range labels {
		b, err := s.GetBlock(ctx, label, scope)
		if err != nil {
			if isNotFound(err) {
				out[label] = ""
				continue
			}
			return nil, err
		}
		out[label] = b.Content
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
