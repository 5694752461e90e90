// Package memory is the tiered context memory of a conversational agent: a
// bounded recent window, a bounded summary store, and a hybrid long-term
// knowledge store, assembled into prompt context per turn.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/ctxmem/ctxmem/src/memory/aggregate"
	"github.com/ctxmem/ctxmem/src/memory/compress"
	"github.com/ctxmem/ctxmem/src/memory/embed"
	"github.com/ctxmem/ctxmem/src/memory/hybrid"
	"github.com/ctxmem/ctxmem/src/memory/model"
	"github.com/ctxmem/ctxmem/src/memory/preprocess"
	"github.com/ctxmem/ctxmem/src/memory/store"
	"github.com/ctxmem/ctxmem/src/memory/summarize"
)

// Manager owns the three tiers and sequences promotion and context assembly.
//
// All mutation runs under one mutex: promotion is a read-then-write sequence
// over two tiers and must not interleave with another writer.
type Manager struct {
	mu       sync.Mutex
	recent   *store.RecentWindowStore
	chunks   *store.SummaryStore
	longterm hybrid.LongTermStore

	embedder   embed.Embedder
	summarizer summarize.Summarizer
	aggregator *aggregate.Aggregator
	compressor *compress.Compressor

	opts          Options
	queryStrategy hybrid.Strategy
	counter       int
	logger        *log.Logger
}

// NewManager validates the options and wires the tiers. The long-term store
// may be nil; the knowledge tier is then skipped.
func NewManager(opts Options, longterm hybrid.LongTermStore, embedder embed.Embedder, summarizer summarize.Summarizer) (*Manager, error) {
	opts = opts.withDefaults()

	agg, err := aggregate.New(aggregate.Config{
		RecentWeight:    opts.RecentWeight,
		SummaryWeight:   opts.SummaryWeight,
		KnowledgeWeight: opts.KnowledgeWeight,
		DedupThreshold:  opts.DedupThreshold,
	})
	if err != nil {
		return nil, err
	}

	strategy, err := compress.ParseStrategy(opts.CompressionStrategy)
	if err != nil {
		return nil, err
	}
	comp, err := compress.New(opts.MaxTokens,
		compress.WithStrategy(strategy),
		compress.WithPreserveRecent(opts.PreserveRecent),
	)
	if err != nil {
		return nil, err
	}

	queryStrategy, err := hybrid.ParseStrategy(opts.QueryStrategy)
	if err != nil {
		return nil, err
	}

	if embedder == nil {
		embedder = embed.AutoEmbedder()
	}
	if summarizer == nil {
		summarizer = summarize.HeuristicSummarizer{}
	}

	return &Manager{
		recent:        store.NewRecentWindowStore(opts.MaxRecent, opts.RecentTTL),
		chunks:        store.NewSummaryStore(opts.MaxChunks),
		longterm:      longterm,
		embedder:      embedder,
		summarizer:    summarizer,
		aggregator:    agg,
		compressor:    comp,
		opts:          opts,
		queryStrategy: queryStrategy,
		logger:        log.New(os.Stderr, "memory: ", log.LstdFlags),
	}, nil
}

// WithLogger overrides the default logger.
func (m *Manager) WithLogger(logger *log.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// AddMessage appends a turn to the recent window. Every SummarizeEvery adds,
// the window is summarized into a chunk inline; the call blocks on the
// summarizer and embedder for that turn.
//
// A failed promotion keeps the counter, so the next add retries; the window
// messages stay available either way.
func (m *Manager) AddMessage(ctx context.Context, role model.Role, content string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.recent.Add(role, content, metadata); err != nil {
		return err
	}
	m.counter++
	if m.counter < m.opts.SummarizeEvery {
		return nil
	}
	if err := m.promoteLocked(ctx); err != nil {
		m.logger.Printf("promotion deferred: %v", err)
		return nil
	}
	m.counter = 0
	return nil
}

// promoteLocked condenses the live recent window into one summary chunk.
func (m *Manager) promoteLocked(ctx context.Context) error {
	window := m.recent.Recent(m.recent.Len(), nil)
	if len(window) == 0 {
		return nil
	}
	summary, err := m.summarizer.Summarize(ctx, window)
	if err != nil {
		return fmt.Errorf("summarize window: %w", err)
	}
	embedding, err := m.embedder.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}
	return m.chunks.AddChunk(summary, map[string]any{
		"embedding":            embedding,
		"topics":               m.summarizer.KeyTopics(window, 10),
		"source_message_count": len(window),
	})
}

// MessageCounter reports how many adds have happened since the last
// successful promotion.
func (m *Manager) MessageCounter() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter
}

// ContextRequest tunes a single GetContext call. Zero depths fall back to the
// configured defaults.
type ContextRequest struct {
	Query              string
	RecentResults      int
	ChunkResults       int
	UseKnowledge       bool
	UseEmbeddingSearch bool
}

// ContextResult is the assembled context plus its retrieval metrics.
type ContextResult struct {
	Compressed model.CompressedContext
	Prompt     string
	Query      preprocess.Query

	RecentCount    int
	SummaryCount   int
	KnowledgeCount int
	Duplicates     int
}

// GetContext runs retrieve, aggregate, compress. A failure in any single
// tier's retrieval degrades that tier to empty; the call always returns a
// context.
func (m *Manager) GetContext(ctx context.Context, req ContextRequest) ContextResult {
	if req.RecentResults <= 0 {
		req.RecentResults = m.opts.RecentResults
	}
	if req.ChunkResults <= 0 {
		req.ChunkResults = m.opts.ChunkResults
	}
	query := preprocess.Prepare(req.Query)

	var queryEmbedding []float32
	if req.UseEmbeddingSearch && query.Text != "" {
		emb, err := m.embedder.Embed(ctx, query.Text)
		if err != nil {
			m.logger.Printf("embed query, falling back to recency: %v", err)
		} else {
			queryEmbedding = emb
		}
	}

	// Tier stores are internally synchronized; the mutex only pins the
	// pointers against a concurrent Restore.
	m.mu.Lock()
	recentStore, chunkStore := m.recent, m.chunks
	m.mu.Unlock()

	recent := m.retrieveRecent(recentStore, req, queryEmbedding)
	summaries := m.retrieveSummaries(chunkStore, req, query, queryEmbedding)
	knowledge := m.retrieveKnowledge(ctx, req, query)

	agg := m.aggregator.Aggregate(recent, summaries, knowledge, queryEmbedding)
	compressed := m.compressor.Compress(agg.Items)

	return ContextResult{
		Compressed:     compressed,
		Prompt:         aggregate.FormatForLLM(compressed.Items),
		Query:          query,
		RecentCount:    agg.RecentCount,
		SummaryCount:   agg.SummaryCount,
		KnowledgeCount: agg.KnowledgeCount,
		Duplicates:     agg.Duplicates,
	}
}

func (m *Manager) retrieveRecent(recent *store.RecentWindowStore, req ContextRequest, queryEmbedding []float32) []model.ScoredMessage {
	if len(queryEmbedding) > 0 {
		// Turns only carry embeddings when the caller supplied them; when
		// none do, recency is the documented fallback.
		if scored := recent.SearchByEmbedding(queryEmbedding, req.RecentResults); len(scored) > 0 {
			return scored
		}
	}
	items := recent.Recent(req.RecentResults, nil)
	scored := make([]model.ScoredMessage, 0, len(items))
	for _, item := range items {
		scored = append(scored, model.ScoredMessage{Item: item})
	}
	return scored
}

func (m *Manager) retrieveSummaries(chunks *store.SummaryStore, req ContextRequest, query preprocess.Query, queryEmbedding []float32) []model.ScoredChunk {
	if len(queryEmbedding) > 0 {
		if scored := chunks.SearchByEmbedding(queryEmbedding, req.ChunkResults); len(scored) > 0 {
			return scored
		}
	}
	if len(query.Keywords) > 0 {
		if scored := chunks.SearchByKeywords(query.Keywords, req.ChunkResults); len(scored) > 0 {
			return scored
		}
	}
	recent := chunks.RecentChunks(req.ChunkResults)
	scored := make([]model.ScoredChunk, 0, len(recent))
	for _, chunk := range recent {
		scored = append(scored, model.ScoredChunk{Chunk: chunk})
	}
	return scored
}

func (m *Manager) retrieveKnowledge(ctx context.Context, req ContextRequest, query preprocess.Query) []model.KnowledgeHit {
	if !req.UseKnowledge || m.longterm == nil || query.Text == "" {
		return nil
	}
	res, err := m.longterm.Query(ctx, query.Text, hybrid.QueryOptions{
		Strategy:    m.queryStrategy,
		ExpandGraph: true,
	})
	if err != nil {
		m.logger.Printf("knowledge tier: %v", err)
		return nil
	}
	hits := res.SemanticMatches
	if len(hits) == 0 {
		// Graph-only results still carry usable content.
		for i, node := range res.GraphRelations {
			if node.Content == "" {
				continue
			}
			hits = append(hits, model.KnowledgeHit{
				VectorID: node.VectorID,
				Content:  node.Content,
				Rank:     i + 1,
			})
		}
	}
	return hits
}

// Remember writes a fact straight into the long-term knowledge store.
func (m *Manager) Remember(ctx context.Context, content string, metadata map[string]any) (model.KnowledgeRef, error) {
	if m.longterm == nil {
		return model.KnowledgeRef{}, fmt.Errorf("no long-term store configured")
	}
	return m.longterm.Add(ctx, content, metadata, nil)
}

// ClearAll empties every tier. Callers never observe one tier cleared and
// another not; all mutation shares the manager mutex. The long-term backend
// goes first: if it fails, the bounded tiers are left untouched and the call
// errors with nothing cleared.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.longterm != nil {
		if err := m.longterm.Clear(ctx); err != nil {
			return fmt.Errorf("clear long-term store: %w", err)
		}
	}
	m.recent.Clear()
	m.chunks.Clear()
	m.counter = 0
	return nil
}

// Stats reports tier sizes.
type Stats struct {
	RecentMessages int `json:"recent_messages"`
	SummaryChunks  int `json:"summary_chunks"`
	KnowledgeCount int `json:"knowledge_count"`
	MessageCounter int `json:"message_counter"`
}

func (m *Manager) Stats(ctx context.Context) Stats {
	m.mu.Lock()
	stats := Stats{
		RecentMessages: m.recent.Len(),
		SummaryChunks:  m.chunks.Len(),
		MessageCounter: m.counter,
	}
	longterm := m.longterm
	m.mu.Unlock()

	if longterm != nil {
		if n, err := longterm.Count(ctx); err == nil {
			stats.KnowledgeCount = n
		}
	}
	return stats
}

// Snapshot is the round-trip representation of the bounded tiers. The
// long-term store persists itself in its backends and is not part of it.
type Snapshot struct {
	Recent         store.RecentWindowSnapshot `json:"recent"`
	Summaries      store.SummarySnapshot      `json:"summaries"`
	MessageCounter int                        `json:"message_counter"`
}

// Snapshot captures the bounded tiers for external persistence.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Recent:         m.recent.Snapshot(),
		Summaries:      m.chunks.Snapshot(),
		MessageCounter: m.counter,
	}
}

// Restore replaces the bounded tiers with the snapshot's contents.
func (m *Manager) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = store.RestoreRecentWindow(snap.Recent)
	m.chunks = store.RestoreSummaryStore(snap.Summaries)
	m.counter = snap.MessageCounter
}
