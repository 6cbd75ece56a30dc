// Package manager exposes the agent-facing memory contract and wires
// the store, ranker, deduplicator and extraction pipeline together.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mkwan/memtier/internal/dedup"
	"github.com/mkwan/memtier/internal/embedding"
	"github.com/mkwan/memtier/internal/extract"
	"github.com/mkwan/memtier/internal/model"
	"github.com/mkwan/memtier/internal/rank"
	"github.com/mkwan/memtier/internal/store"
)

// ErrPatternNotFound is returned by search_replace when the find string
// is absent from the current block content. The block is left unchanged.
var ErrPatternNotFound = errors.New("search pattern not found in block")

// BlockOp is a core memory block mutation kind.
type BlockOp string

const (
	OpReplace       BlockOp = "replace"
	OpAppend        BlockOp = "append"
	OpSearchReplace BlockOp = "search_replace"
)

// BlockUpdate describes one core block mutation. Content is used by
// replace and append; Find/Replace by search_replace.
type BlockUpdate struct {
	Label   string  `json:"label"`
	Op      BlockOp `json:"operation"`
	Content string  `json:"content,omitempty"`
	Find    string  `json:"find,omitempty"`
	Replace string  `json:"replace,omitempty"`
}

// Config wires a Manager. Store is required. A nil Extractor falls back
// to the heuristic extractor; a nil Embedder disables the archival read
// and write paths (core blocks still work).
type Config struct {
	Store    *store.SQLiteStore
	Embedder embedding.Embedder

	Extractor      extract.Extractor
	Weights        *rank.Weights
	DedupThreshold float64

	// PromoteImportant mirrors facts at or above PromoteThreshold into
	// the scope's facts block so they stay always-visible.
	PromoteImportant bool
	PromoteThreshold float64
}

// Manager is the only component the agent-facing boundary talks to.
type Manager struct {
	store    *store.SQLiteStore
	embedder embedding.Embedder
	ranker   *rank.Ranker
	pipeline *extract.Pipeline
}

// New builds a Manager from config.
func New(cfg Config) *Manager {
	m := &Manager{
		store:    cfg.Store,
		embedder: cfg.Embedder,
	}

	var rankOpts []rank.Option
	if cfg.Weights != nil {
		rankOpts = append(rankOpts, rank.WithWeights(*cfg.Weights))
	}
	m.ranker = rank.New(cfg.Store, rankOpts...)

	extractor := cfg.Extractor
	if extractor == nil {
		extractor = extract.HeuristicExtractor{}
	}

	var pipeOpts []extract.PipelineOption
	if cfg.PromoteImportant {
		threshold := cfg.PromoteThreshold
		if threshold <= 0 {
			threshold = 0.8
		}
		pipeOpts = append(pipeOpts, extract.WithImportantHook(threshold, m.promoteFact))
	}
	m.pipeline = extract.NewPipeline(
		cfg.Store,
		cfg.Embedder,
		dedup.New(cfg.Store, cfg.DedupThreshold),
		extractor,
		pipeOpts...,
	)

	return m
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// GetCoreMemory resolves every default block label for a scope.
func (m *Manager) GetCoreMemory(ctx context.Context, scope model.Scope) (map[string]string, error) {
	return m.store.GetBlocks(ctx, scope, nil)
}

// FormatCoreMemoryForContext renders the core blocks into a single
// prompt-injectable string, skipping empty blocks.
func (m *Manager) FormatCoreMemoryForContext(ctx context.Context, scope model.Scope) (string, error) {
	blocks, err := m.store.GetBlocks(ctx, scope, nil)
	if err != nil {
		return "", err
	}
	return formatCoreBlocks(blocks), nil
}

// UpdateMemoryBlock applies one block mutation. Validation failures
// (unknown operation, absent search pattern, oversized content) are
// surfaced to the caller; oversized replace content still persists and
// comes back as a store.ErrContentTooLong warning.
func (m *Manager) UpdateMemoryBlock(ctx context.Context, scope model.Scope, u BlockUpdate) error {
	if u.Label == "" {
		return fmt.Errorf("update block: label is required")
	}

	switch u.Op {
	case OpReplace:
		_, err := m.store.UpsertBlock(ctx, u.Label, scope, u.Content)
		return err

	case OpAppend:
		current := m.currentContent(ctx, u.Label, scope)
		merged := u.Content
		if current != "" {
			merged = current + "\n" + u.Content
		}
		merged = truncateOldest(merged, m.store.MaxBlockSize())
		_, err := m.store.UpsertBlock(ctx, u.Label, scope, merged)
		return err

	case OpSearchReplace:
		if u.Find == "" {
			return fmt.Errorf("update block: search_replace requires a find string")
		}
		current := m.currentContent(ctx, u.Label, scope)
		if !strings.Contains(current, u.Find) {
			return fmt.Errorf("update block %q: find %q: %w", u.Label, u.Find, ErrPatternNotFound)
		}
		_, err := m.store.UpsertBlock(ctx, u.Label, scope, strings.ReplaceAll(current, u.Find, u.Replace))
		return err

	default:
		return fmt.Errorf("update block: unknown operation %q", u.Op)
	}
}

// currentContent reads the precedence-resolved content for a label, or
// "" when no block exists anywhere in the chain.
func (m *Manager) currentContent(ctx context.Context, label string, scope model.Scope) string {
	b, err := m.store.GetBlock(ctx, label, scope)
	if err != nil {
		return ""
	}
	return b.Content
}

// RetrieveRelevantMemories embeds the query, runs hybrid search and
// formats the results for prompt injection. Transient embed or search
// failures are logged and reported as no results; they never surface
// as a chat-facing error.
func (m *Manager) RetrieveRelevantMemories(ctx context.Context, query string, scope model.Scope, limit int) (string, error) {
	if m.embedder == nil {
		return "", fmt.Errorf("retrieve memories: embedding provider not configured")
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("[MEMORY] embed query failed: %v", err)
		return noMemoriesFound, nil
	}
	results, err := m.ranker.HybridSearch(ctx, query, vec, scope, limit)
	if err != nil {
		log.Printf("[MEMORY] hybrid search failed: %v", err)
		return noMemoriesFound, nil
	}
	return formatRetrieved(results), nil
}

// SearchMemories is the agent-tool-facing search. useHybrid=false falls
// back to pure semantic ranking. Errors are surfaced so the agent can
// react.
func (m *Manager) SearchMemories(ctx context.Context, query string, scope model.Scope, limit int, useHybrid bool) ([]model.ScoredRecord, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("search memories: embedding provider not configured")
	}
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	if useHybrid {
		return m.ranker.HybridSearch(ctx, query, vec, scope, limit)
	}

	results, err := m.store.SemanticSearch(ctx, store.SemanticParams{
		Query: vec,
		Scope: scope,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	for i := range results {
		if err := m.store.Touch(ctx, results[i].ID); err != nil {
			log.Printf("[MEMORY] touch %s failed: %v", results[i].ID, err)
		}
	}
	return results, nil
}

// ProcessMessageForMemories runs the extraction pipeline for one
// message.
func (m *Manager) ProcessMessageForMemories(ctx context.Context, msg model.Message, scope model.Scope) model.ExtractionReport {
	return m.pipeline.ProcessMessage(ctx, msg, scope)
}

// GetMemoryStats reports archival memory statistics for a scope.
func (m *Manager) GetMemoryStats(ctx context.Context, scope model.Scope) (*store.Stats, error) {
	return m.store.Stats(ctx, scope)
}

// DeleteMemory removes one archival memory by id.
func (m *Manager) DeleteMemory(ctx context.Context, id string) error {
	return m.store.DeleteMemory(ctx, id)
}

// DeleteAllForUser wipes a user's archival memories.
func (m *Manager) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	return m.store.DeleteAllForUser(ctx, userID)
}

// promoteFact appends a high-importance fact to the scope's facts
// block so it stays in working memory.
func (m *Manager) promoteFact(ctx context.Context, fact model.ExtractedFact, scope model.Scope) {
	line := fact.Content
	if fact.Category != "" {
		line = "[" + fact.Category + "] " + fact.Content
	}
	err := m.UpdateMemoryBlock(ctx, scope, BlockUpdate{
		Label:   model.LabelFacts,
		Op:      OpAppend,
		Content: line,
	})
	if err != nil {
		log.Printf("[MEMORY] promote fact failed: %v", err)
	}
}
