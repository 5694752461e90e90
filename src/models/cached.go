package models

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/ctxmem/ctxmem/src/cache"
)

// CachedModel wraps a Model and caches Generate calls by prompt hash.
type CachedModel struct {
	Model Model
	Cache *cache.LRUCache
}

func NewCachedModel(model Model, size int, ttl time.Duration) *CachedModel {
	return &CachedModel{
		Model: model,
		Cache: cache.NewLRUCache(size, ttl),
	}
}

// Generate checks the cache before calling the underlying model.
func (c *CachedModel) Generate(ctx context.Context, prompt string) (string, error) {
	key := cache.HashKey(prompt)
	if val, ok := c.Cache.Get(key); ok {
		if text, ok := val.(string); ok {
			return text, nil
		}
	}

	text, err := c.Model.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.Cache.Set(key, text)
	return text, nil
}

var _ Model = (*CachedModel)(nil)

// TryCreateCachedModel checks env vars and wraps the model if caching is
// enabled. CTXMEM_MODEL_CACHE_SIZE must be a positive integer;
// CTXMEM_MODEL_CACHE_TTL is in seconds and defaults to five minutes.
func TryCreateCachedModel(model Model) Model {
	sizeStr := os.Getenv("CTXMEM_MODEL_CACHE_SIZE")
	if sizeStr == "" {
		return model
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return model
	}

	ttl := 300 * time.Second
	if ttlStr := os.Getenv("CTXMEM_MODEL_CACHE_TTL"); ttlStr != "" {
		if sec, err := strconv.Atoi(ttlStr); err == nil && sec > 0 {
			ttl = time.Duration(sec) * time.Second
		}
	}
	return NewCachedModel(model, size, ttl)
}
