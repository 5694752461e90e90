package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// InMemoryIndex implements VectorIndex for tests and lightweight deployments.
// Entries live in an id-keyed arena with a side list preserving insertion
// order.
type InMemoryIndex struct {
	mu      sync.RWMutex
	records map[string]indexEntry
	order   []string
}

type indexEntry struct {
	content   string
	embedding []float32
	metadata  map[string]any
	createdAt time.Time
}

// NewInMemoryIndex constructs an empty in-process vector index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{records: make(map[string]indexEntry)}
}

// Add stores the entry and returns its generated identifier.
func (s *InMemoryIndex) Add(_ context.Context, content string, embedding []float32, metadata map[string]any) (string, error) {
	if content == "" {
		return "", fmt.Errorf("%w: empty content", model.ErrMalformedItem)
	}
	id := "vec_" + uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = indexEntry{
		content:   content,
		embedding: append([]float32(nil), embedding...),
		metadata:  model.CloneMetadata(metadata),
		createdAt: time.Now().UTC(),
	}
	s.order = append(s.order, id)
	return id, nil
}

// Search ranks entries carrying an embedding by cosine similarity.
func (s *InMemoryIndex) Search(_ context.Context, queryEmbedding []float32, topK int) ([]model.KnowledgeHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]model.KnowledgeHit, 0, len(s.records))
	for _, id := range s.order {
		entry := s.records[id]
		if len(entry.embedding) == 0 {
			continue
		}
		hits = append(hits, model.KnowledgeHit{
			VectorID:  id,
			Content:   entry.content,
			Embedding: entry.embedding,
			Metadata:  model.CloneMetadata(entry.metadata),
			Score:     model.CosineSimilarity(queryEmbedding, entry.embedding),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK < len(hits) {
		hits = hits[:topK]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// GetByID fetches a single entry, returning ErrNotFound on a miss.
func (s *InMemoryIndex) GetByID(_ context.Context, id string) (model.KnowledgeHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.records[id]
	if !ok {
		return model.KnowledgeHit{}, fmt.Errorf("vector entry %s: %w", id, model.ErrNotFound)
	}
	return model.KnowledgeHit{
		VectorID:  id,
		Content:   entry.content,
		Embedding: entry.embedding,
		Metadata:  model.CloneMetadata(entry.metadata),
	}, nil
}

// Delete removes an entry. Deleting a missing id is a no-op.
func (s *InMemoryIndex) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return nil
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count reports the number of stored entries.
func (s *InMemoryIndex) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear removes every entry.
func (s *InMemoryIndex) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]indexEntry)
	s.order = nil
	return nil
}
