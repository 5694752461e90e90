package hybrid

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ctxmem/ctxmem/src/concurrent"
	"github.com/ctxmem/ctxmem/src/memory/embed"
	"github.com/ctxmem/ctxmem/src/memory/model"
	"github.com/ctxmem/ctxmem/src/memory/store"
)

// HybridStore keeps every knowledge record in two backends at once: a vector
// index for semantic search and a graph for relationships, tied together by
// the entity/vector identifier pair.
//
// Either backend may be down; queries degrade to whatever the healthy side
// returns. Writes are kept consistent with a compensating delete plus a
// repair journal for deletes that themselves fail.
type HybridStore struct {
	vec      store.VectorIndex
	graph    store.GraphBackend
	embedder embed.Embedder
	pool     *concurrent.WorkerPool
	logger   *log.Logger
	timeout  time.Duration

	mu      sync.Mutex
	pending []string // graph entity ids awaiting a compensating delete
}

var _ LongTermStore = (*HybridStore)(nil)

// NewHybridStore wires the two backends together.
func NewHybridStore(vec store.VectorIndex, graph store.GraphBackend, embedder embed.Embedder) (*HybridStore, error) {
	if vec == nil {
		return nil, fmt.Errorf("vector index is nil")
	}
	if graph == nil {
		return nil, fmt.Errorf("graph backend is nil")
	}
	if embedder == nil {
		embedder = embed.AutoEmbedder()
	}
	return &HybridStore{
		vec:      vec,
		graph:    graph,
		embedder: embedder,
		pool:     concurrent.NewWorkerPool(4),
		logger:   log.New(os.Stderr, "hybrid-store: ", log.LstdFlags),
		timeout:  10 * time.Second,
	}, nil
}

// WithLogger overrides the default logger.
func (s *HybridStore) WithLogger(logger *log.Logger) *HybridStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithBackendTimeout bounds each backend call issued by a query.
func (s *HybridStore) WithBackendTimeout(d time.Duration) *HybridStore {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Add writes the record to both backends and returns the identifier pair.
//
// Order matters: the graph entity is created first so the vector entry can
// carry its id. If the vector write fails, the fresh graph entity is deleted
// again so the record never stays half-visible; a failed compensating delete
// lands in the repair journal, drained by Repair and before every later Add.
func (s *HybridStore) Add(ctx context.Context, content string, metadata map[string]any, embedding []float32) (model.KnowledgeRef, error) {
	if content == "" {
		return model.KnowledgeRef{}, fmt.Errorf("%w: empty content", model.ErrMalformedItem)
	}
	s.repairPending(ctx)

	if len(embedding) == 0 {
		var err error
		embedding, err = s.embedder.Embed(ctx, content)
		if err != nil {
			return model.KnowledgeRef{}, fmt.Errorf("embed content: %w", err)
		}
	}
	meta := model.CloneMetadata(metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	category := model.StringFromAny(meta["category"])
	links := model.RelationLinksFromMetadata(meta)

	entityID := model.StringFromAny(meta["id"])
	if entityID == "" {
		entityID = "entity_" + uuid.NewString()
	}
	node := model.GraphNode{
		ID:       entityID,
		Category: category,
		Content:  truncate(content, 200),
	}
	if err := s.graph.CreateEntity(ctx, node); err != nil {
		return model.KnowledgeRef{}, fmt.Errorf("graph entity: %w", err)
	}

	meta["entity_id"] = entityID
	delete(meta, "links")
	vectorID, err := s.vec.Add(ctx, content, embedding, meta)
	if err != nil {
		// Roll the graph side back so the record is not half-visible.
		if delErr := s.graph.DeleteEntity(ctx, entityID); delErr != nil {
			s.logger.Printf("compensating delete failed for %s: %v", entityID, delErr)
			s.enqueuePending(entityID)
		}
		return model.KnowledgeRef{}, fmt.Errorf("vector entry: %w", err)
	}

	if err := s.graph.SetVectorLink(ctx, entityID, vectorID); err != nil {
		s.logger.Printf("vector link for %s: %v", entityID, err)
	}
	for _, link := range links {
		if err := s.graph.Relate(ctx, entityID, link.Target, link.Type); err != nil {
			// A bad link rejects only itself, never the record.
			s.logger.Printf("relate %s-[%s]->%s: %v", entityID, link.Type, link.Target, err)
		}
	}
	return model.KnowledgeRef{VectorID: vectorID, EntityID: entityID}, nil
}

// Repair retries compensating deletes that failed earlier.
func (s *HybridStore) Repair(ctx context.Context) {
	s.repairPending(ctx)
}

// PendingRepairs reports how many half-written records still await cleanup.
func (s *HybridStore) PendingRepairs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *HybridStore) enqueuePending(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, entityID)
}

func (s *HybridStore) repairPending(ctx context.Context) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	var remaining []string
	for _, id := range pending {
		if err := s.graph.DeleteEntity(ctx, id); err != nil {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) > 0 {
		s.mu.Lock()
		s.pending = append(s.pending, remaining...)
		s.mu.Unlock()
	}
}

// Query runs the planner under the requested strategy.
func (s *HybridStore) Query(ctx context.Context, query string, opts QueryOptions) (Result, error) {
	opts = opts.withDefaults()
	switch opts.Strategy {
	case StrategyVectorFirst:
		return s.vectorFirst(ctx, query, opts), nil
	case StrategyGraphFirst:
		return s.graphFirst(ctx, query, opts), nil
	case StrategyParallel:
		return s.parallel(ctx, query, opts), nil
	case StrategyVectorOnly:
		return Result{
			SemanticMatches: s.vectorSearch(ctx, query, opts.TopK),
			Strategy:        StrategyVectorOnly,
		}, nil
	case StrategyGraphOnly:
		return Result{
			GraphRelations: s.graphSearch(ctx, query, opts.TopK),
			Strategy:       StrategyGraphOnly,
		}, nil
	}
	return Result{}, model.NewConfigError("query_strategy", fmt.Sprintf("unknown strategy %q", opts.Strategy))
}

// vectorFirst starts broad with semantic search, then walks the graph out
// from the hits' linked entities.
func (s *HybridStore) vectorFirst(ctx context.Context, query string, opts QueryOptions) Result {
	matches := s.vectorSearch(ctx, query, opts.TopK)
	result := Result{
		SemanticMatches: matches,
		Strategy:        StrategyVectorFirst,
		Metadata:        map[string]any{"expanded": false},
	}
	if !opts.ExpandGraph || len(matches) == 0 {
		result.CombinedScore = combinedScore(len(matches), 0)
		return result
	}
	var entityIDs []string
	for _, hit := range matches {
		if id := hit.EntityID(); id != "" {
			entityIDs = append(entityIDs, id)
		}
	}
	if len(entityIDs) > 0 {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		relations, err := s.graph.Expand(cctx, entityIDs, 50)
		cancel()
		if err != nil {
			s.logger.Printf("graph expand: %v", err)
		} else {
			result.GraphRelations = relations
		}
		result.Metadata["expanded"] = true
		result.Metadata["entity_count"] = len(entityIDs)
	}
	result.CombinedScore = combinedScore(len(result.SemanticMatches), len(result.GraphRelations))
	return result
}

// graphFirst starts precise with a graph text match, then pulls in the full
// content of each node's linked vector entry.
func (s *HybridStore) graphFirst(ctx context.Context, query string, opts QueryOptions) Result {
	relations := s.graphSearch(ctx, query, 0)
	var matches []model.KnowledgeHit
	for _, node := range relations {
		if node.VectorID == "" || len(matches) >= opts.TopK {
			continue
		}
		hit, err := s.vec.GetByID(ctx, node.VectorID)
		if err != nil {
			continue
		}
		matches = append(matches, hit)
	}
	return Result{
		SemanticMatches: matches,
		GraphRelations:  relations,
		CombinedScore:   combinedScore(len(matches), len(relations)),
		Strategy:        StrategyGraphFirst,
		Metadata:        map[string]any{"vector_enriched": len(matches) > 0},
	}
}

// parallel queries both backends concurrently. Both calls are read-only and
// share no state, so a plain fork-join is enough; each side is bounded by the
// backend timeout and degrades to empty on failure.
func (s *HybridStore) parallel(ctx context.Context, query string, opts QueryOptions) Result {
	var (
		matches   []model.KnowledgeHit
		relations []model.GraphNode
	)
	concurrent.ForkJoin(ctx,
		func(ctx context.Context) error {
			return s.pool.Do(ctx, func() error {
				matches = s.vectorSearch(ctx, query, opts.TopK)
				return nil
			})
		},
		func(ctx context.Context) error {
			return s.pool.Do(ctx, func() error {
				relations = s.graphSearch(ctx, query, opts.TopK)
				return nil
			})
		},
	)
	return Result{
		SemanticMatches: matches,
		GraphRelations:  relations,
		CombinedScore:   combinedScore(len(matches), len(relations)),
		Strategy:        StrategyParallel,
		Metadata:        map[string]any{"parallel": true},
	}
}

// Related walks outward from an entity and enriches each neighbor with its
// linked vector content.
func (s *HybridStore) Related(ctx context.Context, entityID string, relTypes []string, maxDepth int) ([]RelatedEntity, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	nodes, err := s.graph.Related(cctx, entityID, relTypes, maxDepth, 20)
	cancel()
	if err != nil {
		s.logger.Printf("graph related: %v", err)
		return nil, nil
	}
	related := make([]RelatedEntity, 0, len(nodes))
	for _, node := range nodes {
		enriched := RelatedEntity{Node: node}
		if node.VectorID != "" {
			if hit, getErr := s.vec.GetByID(ctx, node.VectorID); getErr == nil {
				enriched.Content = hit.Content
				enriched.Embedding = hit.Embedding
			}
		}
		related = append(related, enriched)
	}
	return related, nil
}

// FindPath runs a bounded shortest-path search between two entities.
func (s *HybridStore) FindPath(ctx context.Context, startID, endID string, maxLength int) ([]model.GraphPath, error) {
	if maxLength <= 0 {
		maxLength = 5
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	paths, err := s.graph.FindPath(cctx, startID, endID, maxLength)
	if err != nil {
		s.logger.Printf("graph path: %v", err)
		return nil, nil
	}
	return paths, nil
}

// Count reports the number of vector entries.
func (s *HybridStore) Count(ctx context.Context) (int, error) {
	return s.vec.Count(ctx)
}

// Clear empties both backends.
func (s *HybridStore) Clear(ctx context.Context) error {
	if err := s.vec.Clear(ctx); err != nil {
		return err
	}
	return s.graph.Clear(ctx)
}

func (s *HybridStore) vectorSearch(ctx context.Context, query string, topK int) []model.KnowledgeHit {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Printf("embed query: %v", err)
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	hits, err := s.vec.Search(cctx, embedding, topK)
	if err != nil {
		s.logger.Printf("vector search: %v", err)
		return nil
	}
	return hits
}

func (s *HybridStore) graphSearch(ctx context.Context, query string, limit int) []model.GraphNode {
	if limit <= 0 {
		limit = 10
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	nodes, err := s.graph.SearchText(cctx, query, limit)
	if err != nil {
		s.logger.Printf("graph search: %v", err)
		return nil
	}
	return nodes
}

// combinedScore folds the two hit counts into a single [0,1] confidence. The
// exact shape is a heuristic; it only promises to grow with either count and
// stay clamped.
func combinedScore(vectorHits, graphHits int) float64 {
	if vectorHits == 0 && graphHits == 0 {
		return 0
	}
	vec := float64(vectorHits) / 10
	if vec > 1 {
		vec = 1
	}
	graph := float64(graphHits) / 10
	if graph > 1 {
		graph = 1
	}
	return (vec + graph) / 2
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
