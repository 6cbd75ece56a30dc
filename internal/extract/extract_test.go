package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/mkwan/memtier/internal/dedup"
	"github.com/mkwan/memtier/internal/embedding/mock"
	"github.com/mkwan/memtier/internal/model"
	"github.com/mkwan/memtier/internal/store"
)

type fakeWriter struct {
	inserted []*model.ArchivalMemory
	merged   map[string]float64
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{merged: map[string]float64{}}
}

func (f *fakeWriter) InsertMemory(ctx context.Context, rec *model.ArchivalMemory) (string, error) {
	f.inserted = append(f.inserted, rec)
	return "new-id", nil
}

func (f *fakeWriter) MergeMemory(ctx context.Context, id string, imp float64) error {
	f.merged[id] = imp
	return nil
}

type fakeProbe struct {
	hits []model.ScoredRecord
}

func (f *fakeProbe) SemanticSearch(ctx context.Context, p store.SemanticParams) ([]model.ScoredRecord, error) {
	return f.hits, nil
}

func facts(fs ...model.ExtractedFact) Func {
	return func(ctx context.Context, text string) ([]model.ExtractedFact, error) {
		return fs, nil
	}
}

func imp(v float64) *float64 { return &v }

func newTestPipeline(w Writer, probe *fakeProbe, e Extractor, opts ...PipelineOption) *Pipeline {
	return NewPipeline(w, mock.New(8), dedup.New(probe, 0), e, opts...)
}

func TestProcessMessageStoresNovelFact(t *testing.T) {
	w := newFakeWriter()
	p := newTestPipeline(w, &fakeProbe{}, facts(model.ExtractedFact{
		Content:    "prefers dark mode",
		Category:   "preference",
		Importance: imp(0.6),
		Tags:       []string{"editor"},
	}))
	scope := model.Scope{ChatID: "c1", UserID: "u1"}

	report := p.ProcessMessage(context.Background(), model.Message{Role: "user", Content: "I prefer dark mode"}, scope)
	if report.Created != 1 || report.Updated != 0 || report.Conflicts != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	if len(w.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(w.inserted))
	}
	rec := w.inserted[0]
	if rec.UserID != "u1" || rec.ChatID != "c1" {
		t.Errorf("expected scope on record, got user %q chat %q", rec.UserID, rec.ChatID)
	}
	if rec.Importance != 0.6 {
		t.Errorf("expected importance 0.6, got %v", rec.Importance)
	}
	if rec.Category() != "preference" {
		t.Errorf("expected category preference, got %q", rec.Category())
	}
	if len(rec.Embedding) != 8 {
		t.Errorf("expected 8-dim embedding, got %d", len(rec.Embedding))
	}
}

func TestProcessMessageSkipsNonUserRoles(t *testing.T) {
	w := newFakeWriter()
	p := newTestPipeline(w, &fakeProbe{}, facts(model.ExtractedFact{Content: "should not store"}))

	for _, role := range []string{"assistant", "system", "tool"} {
		report := p.ProcessMessage(context.Background(), model.Message{Role: role, Content: "text"}, model.Scope{UserID: "u1"})
		if report.Created != 0 {
			t.Errorf("role %s: expected nothing stored, got %+v", role, report)
		}
	}
	if len(w.inserted) != 0 {
		t.Errorf("expected no inserts, got %d", len(w.inserted))
	}
}

func TestProcessMessageNoEmbedder(t *testing.T) {
	w := newFakeWriter()
	p := NewPipeline(w, nil, dedup.New(&fakeProbe{}, 0), facts(model.ExtractedFact{Content: "should not store"}))

	report := p.ProcessMessage(context.Background(), model.Message{Role: "user", Content: "I am a software engineer"}, model.Scope{UserID: "u1"})
	if report.Created != 0 || report.Updated != 0 {
		t.Errorf("expected empty report without an embedder, got %+v", report)
	}
	if len(w.inserted) != 0 || len(w.merged) != 0 {
		t.Error("expected no writes without an embedder")
	}
}

func TestProcessMessageSwallowsExtractorError(t *testing.T) {
	w := newFakeWriter()
	p := newTestPipeline(w, &fakeProbe{}, Func(func(ctx context.Context, text string) ([]model.ExtractedFact, error) {
		return nil, errors.New("model unavailable")
	}))

	report := p.ProcessMessage(context.Background(), model.Message{Role: "user", Content: "hello there friend"}, model.Scope{UserID: "u1"})
	if report.Created != 0 || report.Updated != 0 {
		t.Errorf("expected empty report on extractor failure, got %+v", report)
	}
}

func TestProcessMessageMergesNearDuplicate(t *testing.T) {
	w := newFakeWriter()
	probe := &fakeProbe{hits: []model.ScoredRecord{{
		ArchivalMemory: model.ArchivalMemory{ID: "existing", Content: "likes dark themes"},
		Semantic:       0.92,
	}}}
	p := newTestPipeline(w, probe, facts(model.ExtractedFact{
		Content:    "prefers dark mode",
		Importance: imp(0.7),
	}))

	report := p.ProcessMessage(context.Background(), model.Message{Role: "user", Content: "msg"}, model.Scope{UserID: "u1"})
	if report.Updated != 1 || report.Created != 0 {
		t.Fatalf("expected merge, got %+v", report)
	}
	if w.merged["existing"] != 0.7 {
		t.Errorf("expected merge with importance 0.7, got %v", w.merged["existing"])
	}
	if len(w.inserted) != 0 {
		t.Error("near-duplicate must not insert a new row")
	}
}

func TestProcessMessageSkipsIdenticalContent(t *testing.T) {
	w := newFakeWriter()
	probe := &fakeProbe{hits: []model.ScoredRecord{{
		ArchivalMemory: model.ArchivalMemory{ID: "existing", Content: "prefers dark mode"},
		Semantic:       0.99,
	}}}
	p := newTestPipeline(w, probe, facts(model.ExtractedFact{Content: "prefers dark mode"}))

	report := p.ProcessMessage(context.Background(), model.Message{Role: "user", Content: "msg"}, model.Scope{UserID: "u1"})
	if report.Created != 0 || report.Updated != 0 {
		t.Errorf("byte-identical fact should be a no-op, got %+v", report)
	}
	if len(w.merged) != 0 || len(w.inserted) != 0 {
		t.Error("expected neither insert nor merge")
	}
}

func TestProcessMessageDefaultsImportance(t *testing.T) {
	w := newFakeWriter()
	p := newTestPipeline(w, &fakeProbe{}, facts(model.ExtractedFact{Content: "no importance given"}))

	p.ProcessMessage(context.Background(), model.Message{Role: "user", Content: "msg"}, model.Scope{UserID: "u1"})
	if len(w.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(w.inserted))
	}
	if w.inserted[0].Importance != DefaultImportance {
		t.Errorf("expected default importance %v, got %v", DefaultImportance, w.inserted[0].Importance)
	}
}

func TestProcessMessageExplicitZeroImportance(t *testing.T) {
	w := newFakeWriter()
	p := newTestPipeline(w, &fakeProbe{}, facts(model.ExtractedFact{Content: "trivial", Importance: imp(0)}))

	p.ProcessMessage(context.Background(), model.Message{Role: "user", Content: "msg"}, model.Scope{UserID: "u1"})
	if len(w.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(w.inserted))
	}
	if w.inserted[0].Importance != 0 {
		t.Errorf("explicit 0 must not be defaulted, got %v", w.inserted[0].Importance)
	}
}

func TestImportantHook(t *testing.T) {
	w := newFakeWriter()
	var hooked []string
	p := newTestPipeline(w, &fakeProbe{},
		facts(
			model.ExtractedFact{Content: "critical fact", Importance: imp(0.9)},
			model.ExtractedFact{Content: "minor fact", Importance: imp(0.3)},
		),
		WithImportantHook(0.8, func(ctx context.Context, fact model.ExtractedFact, scope model.Scope) {
			hooked = append(hooked, fact.Content)
		}),
	)

	p.ProcessMessage(context.Background(), model.Message{Role: "user", Content: "msg"}, model.Scope{UserID: "u1"})
	if len(hooked) != 1 || hooked[0] != "critical fact" {
		t.Errorf("expected only the critical fact hooked, got %v", hooked)
	}
}
