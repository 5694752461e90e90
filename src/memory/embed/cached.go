package embed

import (
	"context"
	"time"

	"github.com/ctxmem/ctxmem/src/cache"
)

// CachedEmbedder wraps another Embedder with an LRU+TTL cache so repeated
// texts are embedded once.
type CachedEmbedder struct {
	inner Embedder
	cache *cache.LRUCache
}

// NewCachedEmbedder caches up to size embeddings for ttl.
func NewCachedEmbedder(inner Embedder, size int, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: cache.NewLRUCache(size, ttl),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.HashKey(text)
	if cached, ok := c.cache.Get(key); ok {
		if vec, isVec := cached.([]float32); isVec {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec)
	return vec, nil
}
