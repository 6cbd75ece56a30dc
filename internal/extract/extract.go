// Package extract turns conversation messages into archival memories.
package extract

import (
	"context"
	"log"
	"strings"

	"github.com/mkwan/memtier/internal/dedup"
	"github.com/mkwan/memtier/internal/embedding"
	"github.com/mkwan/memtier/internal/model"
)

// DefaultImportance is assigned when the extractor omits a score.
const DefaultImportance = 0.5

// Extractor produces zero or more candidate facts from text. An empty
// result is valid ("no facts found") and distinct from an error.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]model.ExtractedFact, error)
}

// Func adapts a plain function to the Extractor interface.
type Func func(ctx context.Context, text string) ([]model.ExtractedFact, error)

func (f Func) Extract(ctx context.Context, text string) ([]model.ExtractedFact, error) {
	return f(ctx, text)
}

// Writer is the slice of the store the pipeline writes through.
type Writer interface {
	InsertMemory(ctx context.Context, rec *model.ArchivalMemory) (string, error)
	MergeMemory(ctx context.Context, id string, imp float64) error
}

// Hook is called after a fact is stored or merged; the pipeline uses it
// to promote high-importance facts into core memory.
type Hook func(ctx context.Context, fact model.ExtractedFact, scope model.Scope)

// Pipeline routes extracted facts through deduplication into the store.
type Pipeline struct {
	store     Writer
	embedder  embedding.Embedder
	dedup     *dedup.Deduplicator
	extractor Extractor

	onImportant  Hook
	importantMin float64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithImportantHook installs a hook invoked for every stored or merged
// fact whose importance is at least min.
func WithImportantHook(min float64, h Hook) PipelineOption {
	return func(p *Pipeline) {
		p.importantMin = min
		p.onImportant = h
	}
}

// NewPipeline wires the extraction path together.
func NewPipeline(store Writer, embedder embedding.Embedder, d *dedup.Deduplicator, extractor Extractor, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:     store,
		embedder:  embedder,
		dedup:     d,
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessMessage extracts facts from one message and stores the novel
// ones. Only user-role messages are eligible; with no embedding
// provider configured the archival write path is disabled and the
// report stays empty. Extraction and embedding failures are logged and
// swallowed so conversation flow is never disrupted; each fact is
// stored all-or-nothing. Facts are processed
// in extractor order. Conflicts is reserved for contradiction
// detection and stays 0.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg model.Message, scope model.Scope) model.ExtractionReport {
	var report model.ExtractionReport

	if msg.Role != "user" || strings.TrimSpace(msg.Content) == "" {
		return report
	}
	if p.embedder == nil {
		log.Printf("[MEMORY] extraction skipped: no embedding provider configured")
		return report
	}

	facts, err := p.extractor.Extract(ctx, msg.Content)
	if err != nil {
		log.Printf("[MEMORY] extraction failed: %v", err)
		return report
	}
	if len(facts) == 0 {
		return report
	}

	for _, fact := range facts {
		if strings.TrimSpace(fact.Content) == "" {
			continue
		}
		importance := DefaultImportance
		if fact.Importance != nil {
			importance = model.ClampImportance(*fact.Importance)
		}

		vec, err := p.embedder.Embed(ctx, fact.Content)
		if err != nil {
			log.Printf("[MEMORY] embed fact failed: %v", err)
			continue
		}

		res, err := p.dedup.CheckDuplicate(ctx, vec, scope)
		if err != nil {
			log.Printf("[MEMORY] duplicate check failed: %v", err)
			continue
		}

		stored := false
		switch {
		case res.IsDuplicate && res.Existing != nil && res.Existing.Content == fact.Content:
			// Byte-identical fact, nothing to do.
		case res.IsDuplicate:
			if err := p.store.MergeMemory(ctx, res.ExistingID, importance); err != nil {
				log.Printf("[MEMORY] merge %s failed: %v", res.ExistingID, err)
				continue
			}
			report.Updated++
			stored = true
		default:
			rec := &model.ArchivalMemory{
				UserID:     scope.UserID,
				ChatID:     scope.ChatID,
				Content:    fact.Content,
				Embedding:  vec,
				Metadata:   factMetadata(fact),
				Importance: importance,
			}
			if _, err := p.store.InsertMemory(ctx, rec); err != nil {
				log.Printf("[MEMORY] insert fact failed: %v", err)
				continue
			}
			report.Created++
			stored = true
		}

		if stored && p.onImportant != nil && importance >= p.importantMin {
			p.onImportant(ctx, fact, scope)
		}
	}

	log.Printf("[MEMORY] processed message: %d created, %d updated", report.Created, report.Updated)
	return report
}

func factMetadata(fact model.ExtractedFact) model.Metadata {
	meta := model.Metadata{}
	if fact.Category != "" {
		meta["category"] = model.String(fact.Category)
	}
	if len(fact.Tags) > 0 {
		meta["tags"] = model.Strings(fact.Tags)
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
