package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachingEmbedder wraps an Embedder with an in-process ristretto cache
// keyed on the input text. Extraction re-embeds candidate facts and the
// read path re-embeds repeated queries; the cache keeps those off the
// network.
type CachingEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachingEmbedder wraps inner with a cache holding roughly
// maxEntries vectors. maxEntries <= 0 defaults to 4096.
func NewCachingEmbedder(inner Embedder, maxEntries int64) (*CachingEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &CachingEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

func (c *CachingEmbedder) Dims() int { return c.inner.Dims() }

// Wait blocks until buffered cache writes are applied. Tests use it to
// make hit behavior deterministic.
func (c *CachingEmbedder) Wait() { c.cache.Wait() }

// Close releases cache resources.
func (c *CachingEmbedder) Close() { c.cache.Close() }
