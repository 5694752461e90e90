package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// RecentWindowStore holds the most recent conversation turns in a bounded
// FIFO buffer. Items past their TTL are filtered out lazily on every read;
// there is no background expiry.
type RecentWindowStore struct {
	mu       sync.RWMutex
	maxCount int
	ttl      time.Duration
	items    []model.MemoryItem
	clock    func() time.Time
}

// RecentWindowSnapshot is the round-trip representation of the store.
type RecentWindowSnapshot struct {
	Items      []model.MemoryItem `json:"items"`
	MaxCount   int                `json:"max_count"`
	TTLSeconds float64            `json:"ttl_seconds"`
}

// NewRecentWindowStore builds a window bounded to maxCount items with the
// given TTL. A zero or negative TTL disables expiry.
func NewRecentWindowStore(maxCount int, ttl time.Duration) *RecentWindowStore {
	if maxCount <= 0 {
		maxCount = 10
	}
	return &RecentWindowStore{
		maxCount: maxCount,
		ttl:      ttl,
		clock:    time.Now,
	}
}

// WithClock overrides the time source, used by expiry tests.
func (s *RecentWindowStore) WithClock(clock func() time.Time) *RecentWindowStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Add appends a message, evicting the oldest once the window is full.
func (s *RecentWindowStore) Add(role model.Role, content string, metadata map[string]any) error {
	if !role.Valid() {
		return fmt.Errorf("%w: role %q", model.ErrMalformedItem, role)
	}
	if content == "" {
		return fmt.Errorf("%w: empty content", model.ErrMalformedItem)
	}
	item := model.MemoryItem{
		Role:      role,
		Content:   content,
		CreatedAt: s.clock().UTC(),
		Metadata:  model.CloneMetadata(metadata),
	}
	if item.Metadata != nil {
		item.Embedding = model.VectorFromAny(item.Metadata["embedding"])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	for len(s.items) > s.maxCount {
		s.items = s.items[1:]
	}
	return nil
}

// Recent returns the last n non-expired messages in chronological order. If a
// query embedding is supplied the window is ranked by cosine similarity
// instead; falling back to recency when it is nil is expected behavior, not
// an error.
func (s *RecentWindowStore) Recent(n int, queryEmbedding []float32) []model.MemoryItem {
	if len(queryEmbedding) > 0 {
		scored := s.SearchByEmbedding(queryEmbedding, n)
		items := make([]model.MemoryItem, len(scored))
		for i, sc := range scored {
			items[i] = sc.Item
		}
		return items
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := s.liveLocked()
	if n <= 0 || n > len(live) {
		n = len(live)
	}
	out := make([]model.MemoryItem, n)
	copy(out, live[len(live)-n:])
	return out
}

// SearchByEmbedding ranks non-expired messages by cosine similarity to the
// query vector, descending. Messages without an embedding are skipped.
func (s *RecentWindowStore) SearchByEmbedding(queryEmbedding []float32, topK int) []model.ScoredMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := s.liveLocked()
	scored := make([]model.ScoredMessage, 0, len(live))
	for _, item := range live {
		if len(item.Embedding) == 0 {
			continue
		}
		scored = append(scored, model.ScoredMessage{
			Item:     item,
			Score:    model.CosineSimilarity(queryEmbedding, item.Embedding),
			HasScore: true,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

// Len reports the number of non-expired messages.
func (s *RecentWindowStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.liveLocked())
}

// MaxCount returns the configured window capacity.
func (s *RecentWindowStore) MaxCount() int { return s.maxCount }

// Clear drops every message.
func (s *RecentWindowStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Snapshot captures the live contents and capacity settings.
func (s *RecentWindowStore) Snapshot() RecentWindowSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := s.liveLocked()
	items := make([]model.MemoryItem, len(live))
	copy(items, live)
	return RecentWindowSnapshot{
		Items:      items,
		MaxCount:   s.maxCount,
		TTLSeconds: s.ttl.Seconds(),
	}
}

// RestoreRecentWindow rebuilds a store from a snapshot.
func RestoreRecentWindow(snap RecentWindowSnapshot) *RecentWindowStore {
	s := NewRecentWindowStore(snap.MaxCount, time.Duration(snap.TTLSeconds*float64(time.Second)))
	s.items = append(s.items, snap.Items...)
	for len(s.items) > s.maxCount {
		s.items = s.items[1:]
	}
	return s
}

// liveLocked filters out expired items without mutating the buffer. Callers
// must hold at least a read lock.
func (s *RecentWindowStore) liveLocked() []model.MemoryItem {
	if s.ttl <= 0 {
		return s.items
	}
	now := s.clock()
	live := make([]model.MemoryItem, 0, len(s.items))
	for _, item := range s.items {
		if now.Sub(item.CreatedAt) < s.ttl {
			live = append(live, item)
		}
	}
	return live
}
