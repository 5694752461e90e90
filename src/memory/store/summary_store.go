package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// SummaryStore keeps summarized conversation chunks in a bounded FIFO buffer.
type SummaryStore struct {
	mu        sync.RWMutex
	maxChunks int
	chunks    []model.SummaryChunk
	clock     func() time.Time
}

// SummarySnapshot is the round-trip representation of the store.
type SummarySnapshot struct {
	Chunks    []model.SummaryChunk `json:"chunks"`
	MaxChunks int                  `json:"max_chunks"`
}

// NewSummaryStore builds a chunk buffer bounded to maxChunks entries.
func NewSummaryStore(maxChunks int) *SummaryStore {
	if maxChunks <= 0 {
		maxChunks = 100
	}
	return &SummaryStore{maxChunks: maxChunks, clock: time.Now}
}

// WithClock overrides the time source.
func (s *SummaryStore) WithClock(clock func() time.Time) *SummaryStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// AddChunk appends a summarized chunk, evicting the oldest once full.
func (s *SummaryStore) AddChunk(summary string, metadata map[string]any) error {
	if summary == "" {
		return fmt.Errorf("%w: empty summary", model.ErrMalformedItem)
	}
	chunk := model.SummaryChunk{
		Summary:   summary,
		CreatedAt: s.clock().UTC(),
		Metadata:  model.CloneMetadata(metadata),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	for len(s.chunks) > s.maxChunks {
		s.chunks = s.chunks[1:]
	}
	return nil
}

// RecentChunks returns the last n chunks in chronological order.
func (s *SummaryStore) RecentChunks(n int) []model.SummaryChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.chunks) {
		n = len(s.chunks)
	}
	out := make([]model.SummaryChunk, n)
	copy(out, s.chunks[len(s.chunks)-n:])
	return out
}

// SearchByEmbedding ranks chunks carrying an embedding by cosine similarity
// to the query vector, descending.
func (s *SummaryStore) SearchByEmbedding(queryEmbedding []float32, topK int) []model.ScoredChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scored := make([]model.ScoredChunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		embedding := chunk.Embedding()
		if len(embedding) == 0 {
			continue
		}
		scored = append(scored, model.ScoredChunk{
			Chunk:    chunk,
			Score:    model.CosineSimilarity(queryEmbedding, embedding),
			HasScore: true,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

// SearchByKeywords scores each chunk by the fraction of requested keywords
// found in its summary text. Chunks matching nothing are excluded.
func (s *SummaryStore) SearchByKeywords(keywords []string, topK int) []model.ScoredChunk {
	if len(keywords) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	scored := make([]model.ScoredChunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		summary := strings.ToLower(chunk.Summary)
		matches := 0
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(summary, strings.ToLower(kw)) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		scored = append(scored, model.ScoredChunk{
			Chunk:    chunk,
			Score:    float64(matches) / float64(len(keywords)),
			HasScore: true,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

// Len reports the number of stored chunks.
func (s *SummaryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// MaxChunks returns the configured capacity.
func (s *SummaryStore) MaxChunks() int { return s.maxChunks }

// Clear drops every chunk.
func (s *SummaryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
}

// Snapshot captures the contents and capacity settings.
func (s *SummaryStore) Snapshot() SummarySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]model.SummaryChunk, len(s.chunks))
	copy(chunks, s.chunks)
	return SummarySnapshot{Chunks: chunks, MaxChunks: s.maxChunks}
}

// RestoreSummaryStore rebuilds a store from a snapshot.
func RestoreSummaryStore(snap SummarySnapshot) *SummaryStore {
	s := NewSummaryStore(snap.MaxChunks)
	s.chunks = append(s.chunks, snap.Chunks...)
	for len(s.chunks) > s.maxChunks {
		s.chunks = s.chunks[1:]
	}
	return s
}
