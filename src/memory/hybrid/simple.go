package hybrid

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ctxmem/ctxmem/src/memory/embed"
	"github.com/ctxmem/ctxmem/src/memory/model"
	"github.com/ctxmem/ctxmem/src/memory/store"
)

// SimpleStore is the vector-only long-term store. It satisfies the same
// interface as HybridStore so the orchestrator can swap between them, but
// every graph-flavored call returns empty results.
type SimpleStore struct {
	vec      store.VectorIndex
	embedder embed.Embedder
	logger   *log.Logger
}

var _ LongTermStore = (*SimpleStore)(nil)

// NewSimpleStore wraps a vector index as a long-term store.
func NewSimpleStore(vec store.VectorIndex, embedder embed.Embedder) (*SimpleStore, error) {
	if vec == nil {
		return nil, fmt.Errorf("vector index is nil")
	}
	if embedder == nil {
		embedder = embed.AutoEmbedder()
	}
	return &SimpleStore{
		vec:      vec,
		embedder: embedder,
		logger:   log.New(os.Stderr, "simple-store: ", log.LstdFlags),
	}, nil
}

// Add writes the record to the vector index.
func (s *SimpleStore) Add(ctx context.Context, content string, metadata map[string]any, embedding []float32) (model.KnowledgeRef, error) {
	if content == "" {
		return model.KnowledgeRef{}, fmt.Errorf("%w: empty content", model.ErrMalformedItem)
	}
	if len(embedding) == 0 {
		var err error
		embedding, err = s.embedder.Embed(ctx, content)
		if err != nil {
			return model.KnowledgeRef{}, fmt.Errorf("embed content: %w", err)
		}
	}
	meta := model.CloneMetadata(metadata)
	vectorID, err := s.vec.Add(ctx, content, embedding, meta)
	if err != nil {
		return model.KnowledgeRef{}, err
	}
	return model.KnowledgeRef{VectorID: vectorID}, nil
}

// Query always runs vector search, whatever strategy is asked for.
func (s *SimpleStore) Query(ctx context.Context, query string, opts QueryOptions) (Result, error) {
	opts = opts.withDefaults()
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return Result{Strategy: StrategyVectorOnly}, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.vec.Search(ctx, embedding, opts.TopK)
	if err != nil {
		s.logger.Printf("vector search: %v", err)
		return Result{Strategy: StrategyVectorOnly}, nil
	}
	return Result{
		SemanticMatches: hits,
		CombinedScore:   combinedScore(len(hits), 0),
		Strategy:        StrategyVectorOnly,
	}, nil
}

// Related has no graph to walk.
func (s *SimpleStore) Related(ctx context.Context, entityID string, relTypes []string, maxDepth int) ([]RelatedEntity, error) {
	return nil, nil
}

// FindPath has no graph to walk.
func (s *SimpleStore) FindPath(ctx context.Context, startID, endID string, maxLength int) ([]model.GraphPath, error) {
	return nil, nil
}

// Count reports the number of vector entries.
func (s *SimpleStore) Count(ctx context.Context) (int, error) {
	return s.vec.Count(ctx)
}

// Clear empties the vector index.
func (s *SimpleStore) Clear(ctx context.Context) error {
	return s.vec.Clear(ctx)
}
