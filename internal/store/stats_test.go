package store

import (
	"context"
	"testing"

	"github.com/mkwan/memtier/internal/model"
)

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID: "u1", Content: "a", Embedding: testVec(1), Importance: 0.4,
		Metadata: model.Metadata{"category": model.String("preference")},
	})
	s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID: "u1", ChatID: "c1", Content: "b", Embedding: testVec(1), Importance: 0.8,
		Metadata: model.Metadata{"category": model.String("preference")},
	})
	s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID: "u1", Content: "c", Embedding: testVec(1), Importance: 0.6,
	})
	s.InsertMemory(ctx, &model.ArchivalMemory{
		UserID: "u2", Content: "not counted", Embedding: testVec(1),
	})
	s.UpsertBlock(ctx, "persona", model.Scope{UserID: "u1"}, "p")

	st, err := s.Stats(ctx, model.Scope{UserID: "u1"})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 3 {
		t.Errorf("expected total 3, got %d", st.Total)
	}
	if st.ChatScoped != 1 {
		t.Errorf("expected 1 chat-scoped, got %d", st.ChatScoped)
	}
	if st.AvgImportance < 0.59 || st.AvgImportance > 0.61 {
		t.Errorf("expected avg importance ~0.6, got %v", st.AvgImportance)
	}
	if st.ByCategory["preference"] != 2 {
		t.Errorf("expected 2 preference memories, got %d", st.ByCategory["preference"])
	}
	if st.ByCategory["uncategorized"] != 1 {
		t.Errorf("expected 1 uncategorized memory, got %d", st.ByCategory["uncategorized"])
	}
	if st.CoreBlocks != 1 {
		t.Errorf("expected 1 core block, got %d", st.CoreBlocks)
	}
}
