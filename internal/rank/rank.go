// Package rank combines semantic and lexical search results into one
// ranked list.
package rank

import (
	"context"
	"fmt"
	"log"

	"github.com/mkwan/memtier/internal/model"
	"github.com/mkwan/memtier/internal/store"
)

// Weights are the hybrid score knobs. They are independent of each
// other and not required to sum to 1.
type Weights struct {
	Semantic   float64
	Lexical    float64
	Importance float64
	Recency    float64
}

// DefaultWeights returns the standard ranking weights.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.7, Lexical: 0.3, Importance: 0.2, Recency: 0.1}
}

// HybridScore combines the four signals linearly.
func HybridScore(semantic, lexical, importance, recency float64, w Weights) float64 {
	return w.Semantic*semantic + w.Lexical*lexical + w.Importance*importance + w.Recency*recency
}

// Searcher is the slice of the store the ranker needs.
type Searcher interface {
	SemanticSearch(ctx context.Context, p store.SemanticParams) ([]model.ScoredRecord, error)
	LexicalSearch(ctx context.Context, p store.LexicalParams) ([]model.ScoredRecord, error)
	Touch(ctx context.Context, id string) error
}

// Ranker runs both search legs and merges them by hybrid score.
type Ranker struct {
	store     Searcher
	weights   Weights
	overFetch int // each leg fetches overFetch*limit candidates
	clock     Clock
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithWeights overrides the default score weights.
func WithWeights(w Weights) Option {
	return func(r *Ranker) { r.weights = w }
}

// WithClock overrides the time source, used by tests to pin recency.
func WithClock(c Clock) Option {
	return func(r *Ranker) { r.clock = c }
}

// New creates a Ranker over the given store.
func New(s Searcher, opts ...Option) *Ranker {
	r := &Ranker{
		store:     s,
		weights:   DefaultWeights(),
		overFetch: 3,
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HybridSearch runs semantic and lexical search with over-fetch, joins
// the legs by record id (a missing side scores 0), ranks by
// HybridScore and truncates to limit. Every returned record is
// Touched so access tracking reflects what was surfaced.
func (r *Ranker) HybridSearch(ctx context.Context, queryText string, queryVec []float32, scope model.Scope, limit int) ([]model.ScoredRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	fetch := limit * r.overFetch

	semantic, err := r.store.SemanticSearch(ctx, store.SemanticParams{
		Query: queryVec,
		Scope: scope,
		Limit: fetch,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	lexical, err := r.store.LexicalSearch(ctx, store.LexicalParams{
		Query: queryText,
		Scope: scope,
		Limit: fetch,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	merged := make(map[string]*model.ScoredRecord, len(semantic)+len(lexical))
	for i := range semantic {
		rec := semantic[i]
		rec.Lexical = 0
		merged[rec.ID] = &rec
	}
	for i := range lexical {
		if rec, ok := merged[lexical[i].ID]; ok {
			rec.Lexical = lexical[i].Lexical
			continue
		}
		rec := lexical[i]
		rec.Semantic = 0
		merged[rec.ID] = &rec
	}

	now := r.clock.Now()
	results := make([]model.ScoredRecord, 0, len(merged))
	for _, rec := range merged {
		recency := RecencyBoost(rec.CreatedAt, now)
		rec.Score = HybridScore(rec.Semantic, rec.Lexical, rec.Importance, recency, r.weights)
		results = append(results, *rec)
	}

	sortByScore(results)
	if len(results) > limit {
		results = results[:limit]
	}

	for i := range results {
		if err := r.store.Touch(ctx, results[i].ID); err != nil {
			log.Printf("[RANK] touch %s failed: %v", results[i].ID, err)
		}
	}
	return results, nil
}
