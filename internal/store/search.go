package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mkwan/memtier/internal/model"
	"github.com/mkwan/memtier/internal/vector"
)

// SemanticSearch ranks scope-visible memories by cosine similarity to
// the query vector. Pure vector ranking; no lexical component.
func (s *SQLiteStore) SemanticSearch(ctx context.Context, p SemanticParams) ([]model.ScoredRecord, error) {
	if err := vector.Validate(p.Query); err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	if len(p.Query) != s.dim {
		return nil, fmt.Errorf("semantic search: expected %d dims, got %d: %w",
			s.dim, len(p.Query), ErrDimensionMismatch)
	}
	if p.Scope.UserID == "" {
		return nil, fmt.Errorf("semantic search: user_id is required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT id, user_id, chat_id, content, embedding, metadata, importance,
	                 created_at, updated_at, accessed_at, access_count
	          FROM archival_memories WHERE user_id = ?`
	args := []interface{}{p.Scope.UserID}
	if p.Scope.ChatID != "" {
		// Cross-chat memories (empty chat_id) stay visible in every chat.
		query += " AND (chat_id = ? OR chat_id = '')"
		args = append(args, p.Scope.ChatID)
	}
	if p.MinImportance > 0 {
		query += " AND importance >= ?"
		args = append(args, p.MinImportance)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	var results []model.ScoredRecord
	for rows.Next() {
		m, err := scanArchival(rows)
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
		sim := vector.Cosine(p.Query, m.Embedding)
		results = append(results, model.ScoredRecord{
			ArchivalMemory: *m,
			Score:          sim,
			Semantic:       sim,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	sortScored(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// LexicalSearch ranks scope-visible memories by FTS5 bm25 relevance,
// independent of embeddings. The raw bm25 rank (lower is better) is
// normalized into (0, 1) so it composes with the other score terms.
func (s *SQLiteStore) LexicalSearch(ctx context.Context, p LexicalParams) ([]model.ScoredRecord, error) {
	if p.Scope.UserID == "" {
		return nil, fmt.Errorf("lexical search: user_id is required")
	}
	match := ftsQuery(p.Query)
	if match == "" {
		return nil, nil
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT m.id, m.user_id, m.chat_id, m.content, m.embedding, m.metadata,
	                 m.importance, m.created_at, m.updated_at, m.accessed_at, m.access_count,
	                 bm25(archival_fts) AS rank
	          FROM archival_fts
	          JOIN archival_memories m ON m.rowid = archival_fts.rowid
	          WHERE archival_fts MATCH ? AND m.user_id = ?`
	args := []interface{}{match, p.Scope.UserID}
	if p.Scope.ChatID != "" {
		query += " AND (m.chat_id = ? OR m.chat_id = '')"
		args = append(args, p.Scope.ChatID)
	}
	query += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var results []model.ScoredRecord
	for rows.Next() {
		var m model.ArchivalMemory
		var blob []byte
		var metaJSON, accessedAt sql.NullString
		var createdAt, updatedAt string
		var rank float64

		err := rows.Scan(&m.ID, &m.UserID, &m.ChatID, &m.Content, &blob, &metaJSON,
			&m.Importance, &createdAt, &updatedAt, &accessedAt, &m.AccessCount, &rank)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
		if m.Embedding, err = vector.Decode(blob); err != nil {
			return nil, fmt.Errorf("lexical search: decode embedding for %s: %w", m.ID, err)
		}
		if metaJSON.Valid {
			if m.Metadata, err = model.DecodeMetadata(metaJSON.String); err != nil {
				return nil, fmt.Errorf("lexical search: %w", err)
			}
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if accessedAt.Valid {
			t, _ := time.Parse(time.RFC3339, accessedAt.String)
			m.AccessedAt = &t
		}

		score := normalizeBM25(rank)
		results = append(results, model.ScoredRecord{
			ArchivalMemory: m,
			Score:          score,
			Lexical:        score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return results, nil
}

// normalizeBM25 maps a bm25 rank (lower is better, negative for good
// matches) into (0, 1).
func normalizeBM25(rank float64) float64 {
	rel := -rank
	if rel < 0 {
		rel = 0
	}
	return rel / (1 + rel)
}

// ftsQuery turns free text into a safe FTS5 match expression: each
// term quoted, OR-joined so partial matches still rank.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

// sortScored orders by score descending; equal scores break toward the
// more recently created record so ranking stays deterministic.
func sortScored(results []model.ScoredRecord) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
}
