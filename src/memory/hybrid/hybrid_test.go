package hybrid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ctxmem/ctxmem/src/memory/embed"
	"github.com/ctxmem/ctxmem/src/memory/model"
)

type fakeIndex struct {
	entries map[string]model.KnowledgeHit
	order   []string
	nextID  int
	addErr  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: map[string]model.KnowledgeHit{}}
}

func (f *fakeIndex) Add(ctx context.Context, content string, embedding []float32, metadata map[string]any) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.nextID++
	id := fmt.Sprintf("vec_%d", f.nextID)
	f.entries[id] = model.KnowledgeHit{
		VectorID:  id,
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
	}
	f.order = append(f.order, id)
	return id, nil
}

func (f *fakeIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]model.KnowledgeHit, error) {
	var hits []model.KnowledgeHit
	for _, id := range f.order {
		if len(hits) >= topK {
			break
		}
		hit := f.entries[id]
		hit.Score = 1
		hits = append(hits, hit)
	}
	return hits, nil
}

func (f *fakeIndex) GetByID(ctx context.Context, id string) (model.KnowledgeHit, error) {
	hit, ok := f.entries[id]
	if !ok {
		return model.KnowledgeHit{}, model.ErrNotFound
	}
	return hit, nil
}

func (f *fakeIndex) Delete(ctx context.Context, id string) error {
	delete(f.entries, id)
	return nil
}

func (f *fakeIndex) Count(ctx context.Context) (int, error) { return len(f.entries), nil }

func (f *fakeIndex) Clear(ctx context.Context) error {
	f.entries = map[string]model.KnowledgeHit{}
	f.order = nil
	return nil
}

type fakeGraph struct {
	nodes     map[string]model.GraphNode
	relations map[string][]string
	deleted   []string
	deleteErr error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: map[string]model.GraphNode{}, relations: map[string][]string{}}
}

func (f *fakeGraph) CreateEntity(ctx context.Context, node model.GraphNode) error {
	f.nodes[node.ID] = node
	return nil
}

func (f *fakeGraph) SetVectorLink(ctx context.Context, entityID, vectorID string) error {
	node, ok := f.nodes[entityID]
	if !ok {
		return model.ErrNotFound
	}
	node.VectorID = vectorID
	f.nodes[entityID] = node
	return nil
}

func (f *fakeGraph) Relate(ctx context.Context, fromID, toID, relType string) error {
	f.relations[fromID] = append(f.relations[fromID], toID)
	return nil
}

func (f *fakeGraph) DeleteEntity(ctx context.Context, entityID string) error {
	if f.deleteErr != nil {
		f.deleted = append(f.deleted, entityID)
		return f.deleteErr
	}
	delete(f.nodes, entityID)
	f.deleted = append(f.deleted, entityID)
	return nil
}

func (f *fakeGraph) SearchText(ctx context.Context, query string, limit int) ([]model.GraphNode, error) {
	var out []model.GraphNode
	for _, node := range f.nodes {
		if len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(node.Content), strings.ToLower(query)) {
			out = append(out, node)
		}
	}
	return out, nil
}

func (f *fakeGraph) Expand(ctx context.Context, entityIDs []string, limit int) ([]model.GraphNode, error) {
	var out []model.GraphNode
	for _, id := range entityIDs {
		for _, neighbor := range f.relations[id] {
			if node, ok := f.nodes[neighbor]; ok {
				out = append(out, node)
			}
		}
	}
	return out, nil
}

func (f *fakeGraph) Related(ctx context.Context, entityID string, relTypes []string, maxDepth, limit int) ([]model.GraphNode, error) {
	return f.Expand(ctx, []string{entityID}, limit)
}

func (f *fakeGraph) FindPath(ctx context.Context, startID, endID string, maxLength int) ([]model.GraphPath, error) {
	return nil, nil
}

func (f *fakeGraph) Clear(ctx context.Context) error {
	f.nodes = map[string]model.GraphNode{}
	f.relations = map[string][]string{}
	return nil
}

func newTestStore(t *testing.T) (*HybridStore, *fakeIndex, *fakeGraph) {
	t.Helper()
	vec := newFakeIndex()
	graph := newFakeGraph()
	s, err := NewHybridStore(vec, graph, embed.DummyEmbedder{})
	if err != nil {
		t.Fatalf("NewHybridStore: %v", err)
	}
	return s, vec, graph
}

func TestAddLinksBothBackends(t *testing.T) {
	s, vec, graph := newTestStore(t)
	ref, err := s.Add(context.Background(), "Go is a programming language", map[string]any{"category": "fact"}, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ref.VectorID == "" || ref.EntityID == "" {
		t.Fatalf("incomplete ref: %+v", ref)
	}
	hit, err := vec.GetByID(context.Background(), ref.VectorID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if hit.EntityID() != ref.EntityID {
		t.Fatalf("vector entry links %q, want %q", hit.EntityID(), ref.EntityID)
	}
	node, ok := graph.nodes[ref.EntityID]
	if !ok {
		t.Fatalf("graph entity %s missing", ref.EntityID)
	}
	if node.VectorID != ref.VectorID {
		t.Fatalf("graph entity links %q, want %q", node.VectorID, ref.VectorID)
	}
}

func TestAddCompensatesOnVectorFailure(t *testing.T) {
	s, vec, graph := newTestStore(t)
	vec.addErr = errors.New("index down")
	_, err := s.Add(context.Background(), "doomed record", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(graph.nodes) != 0 {
		t.Fatalf("graph entity survived the rollback: %v", graph.nodes)
	}
	if len(graph.deleted) != 1 {
		t.Fatalf("deleted = %v, want one compensating delete", graph.deleted)
	}
}

func TestAddJournalsFailedCompensation(t *testing.T) {
	s, vec, graph := newTestStore(t)
	vec.addErr = errors.New("index down")
	graph.deleteErr = errors.New("graph down")
	if _, err := s.Add(context.Background(), "doomed record", nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if s.PendingRepairs() != 1 {
		t.Fatalf("PendingRepairs = %d, want 1", s.PendingRepairs())
	}
	graph.deleteErr = nil
	s.Repair(context.Background())
	if s.PendingRepairs() != 0 {
		t.Fatalf("PendingRepairs = %d after repair, want 0", s.PendingRepairs())
	}
	if len(graph.nodes) != 0 {
		t.Fatalf("orphan graph entity survived repair: %v", graph.nodes)
	}
}

func TestQueryVectorOnlyLeavesGraphEmpty(t *testing.T) {
	s, _, _ := newTestStore(t)
	if _, err := s.Add(context.Background(), "Go is a programming language", nil, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	res, err := s.Query(context.Background(), "programming", QueryOptions{Strategy: StrategyVectorOnly})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.SemanticMatches) == 0 {
		t.Fatal("no semantic matches")
	}
	if len(res.GraphRelations) != 0 {
		t.Fatalf("GraphRelations = %v, want empty", res.GraphRelations)
	}
	if res.Strategy != StrategyVectorOnly {
		t.Fatalf("Strategy = %q", res.Strategy)
	}
}

func TestQueryParallelHitsBothBackends(t *testing.T) {
	s, _, _ := newTestStore(t)
	if _, err := s.Add(context.Background(), "Go is a programming language", nil, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	res, err := s.Query(context.Background(), "programming", QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Strategy != StrategyParallel {
		t.Fatalf("default strategy = %q, want %q", res.Strategy, StrategyParallel)
	}
	if len(res.SemanticMatches) == 0 {
		t.Fatal("no semantic matches")
	}
	if len(res.GraphRelations) == 0 {
		t.Fatal("no graph relations")
	}
	if res.CombinedScore <= 0 || res.CombinedScore > 1 {
		t.Fatalf("CombinedScore = %v, want (0,1]", res.CombinedScore)
	}
}

func TestQueryVectorFirstExpandsGraph(t *testing.T) {
	s, _, graph := newTestStore(t)
	ref, err := s.Add(context.Background(), "Go is a programming language",
		map[string]any{"links": []any{map[string]any{"target": "entity_x", "type": "RELATED_TO"}}}, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	graph.nodes["entity_x"] = model.GraphNode{ID: "entity_x", Content: "neighbor"}
	res, err := s.Query(context.Background(), "programming", QueryOptions{Strategy: StrategyVectorFirst, ExpandGraph: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.GraphRelations) != 1 || res.GraphRelations[0].ID != "entity_x" {
		t.Fatalf("GraphRelations = %+v, want entity_x", res.GraphRelations)
	}
	if _, ok := graph.relations[ref.EntityID]; !ok {
		t.Fatalf("relation from %s missing", ref.EntityID)
	}
}

func TestQueryGraphFirstEnrichesFromVector(t *testing.T) {
	s, _, _ := newTestStore(t)
	if _, err := s.Add(context.Background(), "Go is a programming language created at Google", nil, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	res, err := s.Query(context.Background(), "programming", QueryOptions{Strategy: StrategyGraphFirst})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.GraphRelations) == 0 {
		t.Fatal("no graph relations")
	}
	if len(res.SemanticMatches) == 0 {
		t.Fatal("graph hits were not enriched with vector content")
	}
	if !strings.Contains(res.SemanticMatches[0].Content, "Google") {
		t.Fatalf("enriched content = %q, want the full record", res.SemanticMatches[0].Content)
	}
}

func TestQueryUnknownStrategy(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Query(context.Background(), "q", QueryOptions{Strategy: Strategy("sideways")})
	var cfgErr *model.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestCombinedScoreClamped(t *testing.T) {
	if got := combinedScore(0, 0); got != 0 {
		t.Fatalf("combinedScore(0,0) = %v", got)
	}
	if got := combinedScore(100, 100); got != 1 {
		t.Fatalf("combinedScore(100,100) = %v, want 1", got)
	}
	if combinedScore(5, 0) >= combinedScore(10, 0) {
		t.Fatal("score should grow with hit count")
	}
}

func TestSimpleStoreIgnoresGraphStrategies(t *testing.T) {
	vec := newFakeIndex()
	s, err := NewSimpleStore(vec, embed.DummyEmbedder{})
	if err != nil {
		t.Fatalf("NewSimpleStore: %v", err)
	}
	if _, err := s.Add(context.Background(), "Go is a programming language", nil, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	res, err := s.Query(context.Background(), "programming", QueryOptions{Strategy: StrategyGraphFirst})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Strategy != StrategyVectorOnly {
		t.Fatalf("Strategy = %q, want %q", res.Strategy, StrategyVectorOnly)
	}
	if len(res.SemanticMatches) == 0 {
		t.Fatal("no semantic matches")
	}
	related, err := s.Related(context.Background(), "entity_x", nil, 2)
	if err != nil || related != nil {
		t.Fatalf("Related = %v, %v, want empty", related, err)
	}
}

func TestParseStrategy(t *testing.T) {
	if got, err := ParseStrategy(""); err != nil || got != StrategyParallel {
		t.Fatalf("ParseStrategy(\"\") = %v, %v", got, err)
	}
	if got, err := ParseStrategy("vector_first"); err != nil || got != StrategyVectorFirst {
		t.Fatalf("ParseStrategy(vector_first) = %v, %v", got, err)
	}
	if _, err := ParseStrategy("bogus"); err == nil {
		t.Fatal("expected error for bogus strategy")
	}
}
