// Package dedup implements the similarity-based novelty check that runs
// before every archival insert.
package dedup

import (
	"context"
	"fmt"

	"github.com/mkwan/memtier/internal/model"
	"github.com/mkwan/memtier/internal/store"
)

// DefaultThreshold is the cosine similarity at or above which a
// candidate fact is treated as a duplicate of an existing memory.
const DefaultThreshold = 0.85

// defaultProbeLimit is how many nearest neighbors the check inspects.
const defaultProbeLimit = 3

// Searcher is the slice of the store the deduplicator needs.
type Searcher interface {
	SemanticSearch(ctx context.Context, p store.SemanticParams) ([]model.ScoredRecord, error)
}

// Deduplicator probes the store for near-duplicates of a candidate.
type Deduplicator struct {
	store      Searcher
	threshold  float64
	probeLimit int
}

// New creates a Deduplicator. threshold <= 0 selects DefaultThreshold.
func New(s Searcher, threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{store: s, threshold: threshold, probeLimit: defaultProbeLimit}
}

// Result reports the outcome of a duplicate probe.
type Result struct {
	ExistingID  string
	Existing    *model.ArchivalMemory
	Similarity  float64
	IsDuplicate bool
}

// CheckDuplicate probes the top nearest neighbors within the same
// scope. The check is check-then-act without a transaction: a rare
// duplicate surviving a concurrent race is accepted, but the check
// always runs before insert on the normal path.
func (d *Deduplicator) CheckDuplicate(ctx context.Context, candidate []float32, scope model.Scope) (Result, error) {
	hits, err := d.store.SemanticSearch(ctx, store.SemanticParams{
		Query: candidate,
		Scope: scope,
		Limit: d.probeLimit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("duplicate check: %w", err)
	}
	if len(hits) == 0 {
		return Result{}, nil
	}

	best := hits[0]
	return Result{
		ExistingID:  best.ID,
		Existing:    &best.ArchivalMemory,
		Similarity:  best.Semantic,
		IsDuplicate: best.Semantic >= d.threshold,
	}, nil
}

// Threshold returns the configured similarity cutoff.
func (d *Deduplicator) Threshold() float64 { return d.threshold }
