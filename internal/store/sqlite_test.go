package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mkwan/memtier/internal/model"
)

const testDim = 4

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Config{Path: filepath.Join(dir, "test.db"), Dim: testDim})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testVec(vals ...float32) []float32 {
	vec := make([]float32, testDim)
	copy(vec, vals)
	return vec
}

func TestUpsertBlockIdempotentKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := model.Scope{ChatID: "c1", UserID: "u1"}

	id1, err := s.UpsertBlock(ctx, "persona", scope, "first")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	id2, err := s.UpsertBlock(ctx, "persona", scope, "second")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same block id on upsert, got %s and %s", id1, id2)
	}

	b, err := s.GetBlock(ctx, "persona", scope)
	if err != nil {
		t.Fatalf("get block: %v", err)
	}
	if b.Content != "second" {
		t.Errorf("expected second write to win, got %q", b.Content)
	}
}

func TestGetBlockPrecedence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.UpsertBlock(ctx, "user", model.Scope{}, "global"); err != nil {
		t.Fatalf("upsert global: %v", err)
	}
	if _, err := s.UpsertBlock(ctx, "user", model.Scope{UserID: "u1"}, "user-level"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if _, err := s.UpsertBlock(ctx, "user", model.Scope{ChatID: "c1", UserID: "u1"}, "chat-level"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}

	b, err := s.GetBlock(ctx, "user", model.Scope{ChatID: "c1", UserID: "u1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.Content != "chat-level" {
		t.Errorf("chat scope: expected chat-level, got %q", b.Content)
	}

	b, _ = s.GetBlock(ctx, "user", model.Scope{ChatID: "other", UserID: "u1"})
	if b.Content != "user-level" {
		t.Errorf("unmatched chat: expected user-level fallback, got %q", b.Content)
	}

	b, _ = s.GetBlock(ctx, "user", model.Scope{UserID: "u2"})
	if b.Content != "global" {
		t.Errorf("unknown user: expected global fallback, got %q", b.Content)
	}

	if _, err := s.GetBlock(ctx, "missing", model.Scope{UserID: "u1"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing label: expected ErrNotFound, got %v", err)
	}
}

func TestGetBlocksAbsentLabelsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := model.Scope{UserID: "u1"}

	if _, err := s.UpsertBlock(ctx, "persona", scope, "helpful assistant"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	blocks, err := s.GetBlocks(ctx, scope, nil)
	if err != nil {
		t.Fatalf("get blocks: %v", err)
	}
	if len(blocks) != len(model.DefaultLabels) {
		t.Fatalf("expected %d labels, got %d", len(model.DefaultLabels), len(blocks))
	}
	if blocks["persona"] != "helpful assistant" {
		t.Errorf("expected persona content, got %q", blocks["persona"])
	}
	if blocks["facts"] != "" {
		t.Errorf("absent label should map to empty string, got %q", blocks["facts"])
	}
}

func TestUpsertBlockOversizeWarningStillWrites(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db"), Dim: testDim, MaxBlockSize: 10})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer s.Close()

	scope := model.Scope{UserID: "u1"}
	content := strings.Repeat("x", 25)

	_, err = s.UpsertBlock(ctx, "context", scope, content)
	if !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong warning, got %v", err)
	}

	b, err := s.GetBlock(ctx, "context", scope)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.Content != content {
		t.Error("oversized content should still persist in full")
	}

	// The bound counts characters, not bytes: 10 two-byte runes fit a
	// 10-char bound.
	if _, err := s.UpsertBlock(ctx, "persona", scope, strings.Repeat("é", 10)); err != nil {
		t.Errorf("10 multibyte chars within the bound should not warn: %v", err)
	}
	if _, err := s.UpsertBlock(ctx, "persona", scope, strings.Repeat("é", 11)); !errors.Is(err, ErrContentTooLong) {
		t.Errorf("11 chars over a 10-char bound should warn, got %v", err)
	}
}

func TestInsertMemoryValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMemory(ctx, &model.ArchivalMemory{
		Content:   "no user",
		Embedding: testVec(1),
	})
	if err == nil {
		t.Error("expected error for missing user_id")
	}

	_, err = s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID:    "u1",
		Content:   "wrong dims",
		Embedding: []float32{1, 2},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestInsertMemoryClampsImportance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID:     "u1",
		Content:    "over the top",
		Embedding:  testVec(1),
		Importance: 3.5,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	m, err := s.GetMemory(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Importance != 1 {
		t.Errorf("expected importance clamped to 1, got %v", m.Importance)
	}
	if m.AccessCount != 0 {
		t.Errorf("expected access_count 0 on insert, got %d", m.AccessCount)
	}
	if m.AccessedAt != nil {
		t.Error("expected nil accessed_at on insert")
	}
}

func TestMergeMemoryRaisesImportance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID: "u1", Content: "fact", Embedding: testVec(1), Importance: 0.6,
	})

	if err := s.MergeMemory(ctx, id, 0.9); err != nil {
		t.Fatalf("merge up: %v", err)
	}
	m, _ := s.GetMemory(ctx, id)
	if m.Importance != 0.9 {
		t.Errorf("expected importance raised to 0.9, got %v", m.Importance)
	}

	// Merging a lower importance never lowers the stored value.
	if err := s.MergeMemory(ctx, id, 0.3); err != nil {
		t.Fatalf("merge down: %v", err)
	}
	m, _ = s.GetMemory(ctx, id)
	if m.Importance != 0.9 {
		t.Errorf("expected importance to stay 0.9, got %v", m.Importance)
	}

	if err := s.MergeMemory(ctx, "nope", 0.5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTouchConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID: "u1", Content: "popular", Embedding: testVec(1),
	})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Touch(ctx, id); err != nil {
				t.Errorf("touch: %v", err)
			}
		}()
	}
	wg.Wait()

	m, err := s.GetMemory(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.AccessCount != n {
		t.Errorf("expected access_count %d, got %d", n, m.AccessCount)
	}
	if m.AccessedAt == nil {
		t.Error("expected accessed_at to be set")
	}
}

func TestDeleteMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID: "u1", Content: "ephemeral", Embedding: testVec(1),
	})
	if err := s.DeleteMemory(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetMemory(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteMemory(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		s.InsertMemory(ctx, &model.ArchivalMemory{
			UserID: "u1", Content: "mine", Embedding: testVec(1),
		})
	}
	s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID: "u2", Content: "theirs", Embedding: testVec(1),
	})

	n, err := s.DeleteAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 deleted, got %d", n)
	}

	left, err := s.SemanticSearch(ctx, SemanticParams{Query: testVec(1), Scope: model.Scope{UserID: "u2"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(left) != 1 {
		t.Errorf("expected u2's memory untouched, got %d results", len(left))
	}
}
