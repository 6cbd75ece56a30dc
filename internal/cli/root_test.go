package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mkwan/memtier/internal/manager"
	"github.com/mkwan/memtier/internal/model"
)

func TestOpenManagerFromEnv(t *testing.T) {
	t.Setenv("MEMTIER_DB", filepath.Join(t.TempDir(), "test.db"))
	t.Setenv("MEMTIER_EMBED_PROVIDER", "mock")
	t.Setenv("MEMTIER_EMBED_DIMS", "8")
	t.Setenv("ANTHROPIC_API_KEY", "")

	m, err := openManager()
	if err != nil {
		t.Fatalf("open manager: %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	scope := model.Scope{UserID: "default"}

	// Extraction falls back to the heuristic extractor and the write
	// path embeds through the cached mock provider.
	report := m.ProcessMessageForMemories(ctx, model.Message{
		Role:    "user",
		Content: "I work as a backend engineer at a payments startup",
	}, scope)
	if report.Created != 1 {
		t.Fatalf("expected 1 memory created, got %+v", report)
	}

	results, err := m.SearchMemories(ctx, "backend engineer payments", scope, 5, true)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected the stored memory to be searchable")
	}
}

func TestOpenManagerNoProvider(t *testing.T) {
	t.Setenv("MEMTIER_DB", filepath.Join(t.TempDir(), "test.db"))
	t.Setenv("MEMTIER_EMBED_PROVIDER", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	m, err := openManager()
	if err != nil {
		t.Fatalf("open manager: %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	scope := model.Scope{UserID: "default"}

	// No embedding provider: remember degrades to a no-op instead of
	// failing the command.
	report := m.ProcessMessageForMemories(ctx, model.Message{
		Role:    "user",
		Content: "I am a software engineer",
	}, scope)
	if report.Created != 0 || report.Updated != 0 {
		t.Errorf("expected empty report without a provider, got %+v", report)
	}

	if err := m.UpdateMemoryBlock(ctx, scope, manager.BlockUpdate{
		Label: "facts", Op: manager.OpAppend, Content: "blocks still work",
	}); err != nil {
		t.Fatalf("block update: %v", err)
	}
}
