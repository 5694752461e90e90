package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// MemoryGraph implements GraphBackend in process. Nodes and edges are stored
// in id-keyed tables rather than pointer webs so snapshots and traversal stay
// cheap and deterministic.
type MemoryGraph struct {
	mu    sync.RWMutex
	nodes map[string]model.GraphNode
	edges map[string][]memoryEdge
	order []string
}

type memoryEdge struct {
	target  string
	relType string
}

// NewMemoryGraph constructs an empty in-process graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes: make(map[string]model.GraphNode),
		edges: make(map[string][]memoryEdge),
	}
}

// CreateEntity registers a node. Creating an existing id overwrites its
// properties but keeps its edges.
func (g *MemoryGraph) CreateEntity(_ context.Context, node model.GraphNode) error {
	if node.ID == "" {
		return fmt.Errorf("%w: entity without id", model.ErrMalformedItem)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[node.ID]; !exists {
		g.order = append(g.order, node.ID)
	}
	g.nodes[node.ID] = node
	return nil
}

// SetVectorLink records the vector-index identifier on an existing node.
func (g *MemoryGraph) SetVectorLink(_ context.Context, entityID, vectorID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[entityID]
	if !ok {
		return fmt.Errorf("entity %s: %w", entityID, model.ErrNotFound)
	}
	node.VectorID = vectorID
	g.nodes[entityID] = node
	return nil
}

// Relate adds a typed directed edge between two existing nodes.
func (g *MemoryGraph) Relate(_ context.Context, fromID, toID, relType string) error {
	if relType == "" {
		relType = "RELATED_TO"
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[fromID]; !ok {
		return fmt.Errorf("entity %s: %w", fromID, model.ErrNotFound)
	}
	if _, ok := g.nodes[toID]; !ok {
		return fmt.Errorf("entity %s: %w", toID, model.ErrNotFound)
	}
	g.edges[fromID] = append(g.edges[fromID], memoryEdge{target: toID, relType: relType})
	return nil
}

// DeleteEntity removes a node and every edge touching it.
func (g *MemoryGraph) DeleteEntity(_ context.Context, entityID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[entityID]; !ok {
		return nil
	}
	delete(g.nodes, entityID)
	delete(g.edges, entityID)
	for from, edges := range g.edges {
		kept := edges[:0]
		for _, e := range edges {
			if e.target != entityID {
				kept = append(kept, e)
			}
		}
		g.edges[from] = kept
	}
	for i, id := range g.order {
		if id == entityID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// SearchText matches nodes whose content or category contains the query,
// case-insensitively.
func (g *MemoryGraph) SearchText(_ context.Context, query string, limit int) ([]model.GraphNode, error) {
	needle := strings.ToLower(query)
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []model.GraphNode
	for _, id := range g.order {
		node := g.nodes[id]
		if strings.Contains(strings.ToLower(node.Content), needle) ||
			strings.Contains(strings.ToLower(node.Category), needle) {
			out = append(out, node)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Expand returns the one-hop neighborhood of the seed entities, following
// edges in both directions.
func (g *MemoryGraph) Expand(_ context.Context, entityIDs []string, limit int) ([]model.GraphNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seeds := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		seeds[id] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []model.GraphNode
	appendNode := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		if _, isSeed := seeds[id]; isSeed {
			return
		}
		if node, ok := g.nodes[id]; ok {
			seen[id] = struct{}{}
			out = append(out, node)
		}
	}
	for _, seed := range entityIDs {
		for _, e := range g.edges[seed] {
			appendNode(e.target)
		}
		for from, edges := range g.edges {
			for _, e := range edges {
				if e.target == seed {
					appendNode(from)
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Related walks outward from entityID up to maxDepth hops, optionally
// restricted to the given relationship types, treating edges as undirected.
func (g *MemoryGraph) Related(_ context.Context, entityID string, relTypes []string, maxDepth, limit int) ([]model.GraphNode, error) {
	if maxDepth <= 0 {
		return nil, nil
	}
	allowed := map[string]struct{}{}
	for _, t := range relTypes {
		allowed[t] = struct{}{}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[entityID]; !ok {
		return nil, nil
	}
	visited := map[string]struct{}{entityID: {}}
	frontier := []string{entityID}
	var out []model.GraphNode
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, neighbor := range g.neighborsLocked(id, allowed) {
				if _, dup := visited[neighbor]; dup {
					continue
				}
				visited[neighbor] = struct{}{}
				next = append(next, neighbor)
				out = append(out, g.nodes[neighbor])
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// FindPath runs a breadth-first shortest-path search bounded by maxLength
// hops. Paths come back ordered by ascending length, ties in discovery order.
func (g *MemoryGraph) FindPath(_ context.Context, startID, endID string, maxLength int) ([]model.GraphPath, error) {
	if maxLength <= 0 {
		return nil, nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[startID]; !ok {
		return nil, nil
	}
	if _, ok := g.nodes[endID]; !ok {
		return nil, nil
	}
	type queued struct {
		id   string
		path []string
	}
	visited := map[string]struct{}{startID: {}}
	queue := []queued{{id: startID, path: []string{startID}}}
	var paths []model.GraphPath
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.id == endID {
			paths = append(paths, g.materializePathLocked(cur.path))
			continue
		}
		if len(cur.path)-1 >= maxLength {
			continue
		}
		for _, neighbor := range g.neighborsLocked(cur.id, nil) {
			if _, dup := visited[neighbor]; dup {
				continue
			}
			visited[neighbor] = struct{}{}
			path := append(append([]string(nil), cur.path...), neighbor)
			queue = append(queue, queued{id: neighbor, path: path})
		}
	}
	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Length < paths[j].Length })
	return paths, nil
}

// Clear removes every node and edge.
func (g *MemoryGraph) Clear(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]model.GraphNode)
	g.edges = make(map[string][]memoryEdge)
	g.order = nil
	return nil
}

// neighborsLocked lists undirected neighbors of id, filtered by edge type
// when allowed is non-empty. Callers must hold at least a read lock.
func (g *MemoryGraph) neighborsLocked(id string, allowed map[string]struct{}) []string {
	var out []string
	for _, e := range g.edges[id] {
		if len(allowed) > 0 {
			if _, ok := allowed[e.relType]; !ok {
				continue
			}
		}
		out = append(out, e.target)
	}
	for from, edges := range g.edges {
		for _, e := range edges {
			if e.target != id {
				continue
			}
			if len(allowed) > 0 {
				if _, ok := allowed[e.relType]; !ok {
					continue
				}
			}
			out = append(out, from)
		}
	}
	sort.Strings(out)
	return out
}

func (g *MemoryGraph) materializePathLocked(ids []string) model.GraphPath {
	nodes := make([]model.GraphNode, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, g.nodes[id])
	}
	return model.GraphPath{Nodes: nodes, Length: len(ids) - 1}
}
