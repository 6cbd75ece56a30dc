// Package store provides the memory storage interface and SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/mkwan/memtier/internal/model"
)

// Sentinel errors surfaced to callers. ErrContentTooLong is a warning
// condition: the write it accompanies has still been applied.
var (
	ErrNotFound          = errors.New("not found")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrContentTooLong    = errors.New("content exceeds max block size")
)

// Config configures a store. Dim is fixed at initialization and
// immutable for the life of the process; changing it requires a schema
// migration, not a runtime toggle.
type Config struct {
	Path         string
	Dim          int // required, embedding dimensionality for all rows
	MaxBlockSize int // soft bound for core block content, default model.DefaultMaxBlockSize
	MaxOpenConns int // default 4
	MaxIdleConns int // default 2
}

// SemanticParams holds parameters for vector similarity search.
type SemanticParams struct {
	Query         []float32
	Scope         model.Scope
	Limit         int
	MinImportance float64
}

// LexicalParams holds parameters for text relevance search.
type LexicalParams struct {
	Query string
	Scope model.Scope
	Limit int
}

// Store defines the persistence contract the rest of the engine uses.
type Store interface {
	// UpsertBlock writes a core block keyed on (label, chat_id, user_id).
	// Returns the block ID. Content over MaxBlockSize still persists but
	// returns ErrContentTooLong.
	UpsertBlock(ctx context.Context, label string, scope model.Scope, content string) (string, error)

	// GetBlock resolves one block with chat -> user -> global precedence.
	// Returns ErrNotFound when no block exists anywhere in the chain.
	GetBlock(ctx context.Context, label string, scope model.Scope) (*model.CoreMemoryBlock, error)

	// GetBlocks resolves every label for a scope; labels with no block
	// anywhere in the precedence chain map to "". Never errors on absence.
	GetBlocks(ctx context.Context, scope model.Scope, labels []string) (map[string]string, error)

	// InsertMemory stores a new archival memory. The embedding dimension
	// is validated against the configured dimension; a mismatch fails
	// with ErrDimensionMismatch.
	InsertMemory(ctx context.Context, rec *model.ArchivalMemory) (string, error)

	// MergeMemory treats a near-duplicate as an update: raises the
	// existing record's importance toward imp and refreshes updated_at.
	MergeMemory(ctx context.Context, id string, imp float64) error

	// GetMemory fetches one archival memory by id.
	GetMemory(ctx context.Context, id string) (*model.ArchivalMemory, error)

	// SemanticSearch ranks scope-visible memories by cosine similarity.
	SemanticSearch(ctx context.Context, p SemanticParams) ([]model.ScoredRecord, error)

	// LexicalSearch ranks scope-visible memories by text relevance.
	LexicalSearch(ctx context.Context, p LexicalParams) ([]model.ScoredRecord, error)

	// Touch atomically increments access_count and stamps accessed_at.
	Touch(ctx context.Context, id string) error

	DeleteMemory(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)

	Close() error
}
